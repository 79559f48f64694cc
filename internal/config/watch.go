package config

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "classbot/pkg/logx"
)

const (
	reloadDebounce   = 300 * time.Millisecond
	rewatchBaseDelay = 250 * time.Millisecond
	rewatchMaxDelay  = 5 * time.Second
)

const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod

// Watch reloads the config whenever its file changes, until ctx ends.
//
// The parent directory is watched rather than the file so that editors that
// replace the file by rename are still seen. A watcher that dies is
// recreated with jittered backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir, name := filepath.Dir(m.path), filepath.Base(m.path)
	delay := rewatchBaseDelay

	for ctx.Err() == nil {
		w, err := openWatcher(dir)
		if err != nil {
			m.log.Warn("config watcher unavailable", logx.String("dir", dir), logx.Err(err))
		} else {
			delay = rewatchBaseDelay
			m.log.Debug("watching config", logx.String("dir", dir), logx.String("file", name))
			m.follow(ctx, w, name)
			_ = w.Close()
			if ctx.Err() != nil {
				break
			}
			m.log.Warn("config watcher stopped; recreating", logx.String("dir", dir))
		}

		wait := delay + rand.N(delay/2+1)
		delay = min(2*delay, rewatchMaxDelay)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	return nil
}

func openWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// follow consumes watcher events until ctx ends or the watcher breaks.
// Bursts of events collapse into one Reload after reloadDebounce.
func (m *ConfigManager) follow(ctx context.Context, w *fsnotify.Watcher, name string) {
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()
	arm := func() { debounce.Reset(reloadDebounce) }

	for {
		select {
		case <-ctx.Done():
			return
		case <-debounce.C:
			_ = m.Reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&relevantOps != 0 && strings.EqualFold(filepath.Base(ev.Name), name) {
				arm()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; reloading", logx.Err(err))
				arm()
				continue
			}
			if errors.Is(err, fsnotify.ErrClosed) {
				return
			}
			m.log.Warn("config watch error", logx.Err(err))
		}
	}
}
