// Package systemd speaks the sd_notify protocol. Every call is a no-op when
// the process is not started by systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "classbot/pkg/logx"
)

// Ready reports READY=1. sent is false outside systemd.
func Ready() (sent bool, err error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

// Stopping reports STOPPING=1.
func Stopping() (sent bool, err error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

// Status publishes a free-form status line shown by systemctl status.
func Status(msg string) (sent bool, err error) { return daemon.SdNotify(false, "STATUS="+msg) }

// Watchdog pings WATCHDOG=1 at half the unit's WatchdogSec until ctx is done.
// It returns immediately when the watchdog is not enabled.
func Watchdog(ctx context.Context, log logx.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Warn("watchdog notify failed", logx.Err(err))
			}
		}
	}
}
