package transport

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnknownPlatform = errors.New("unknown platform")

// Multi routes group listing and sends across several platforms.
type Multi struct {
	platforms []Platform
	byName    map[string]Platform
}

func NewMulti(platforms ...Platform) *Multi {
	m := &Multi{byName: map[string]Platform{}}
	for _, p := range platforms {
		if p == nil {
			continue
		}
		m.platforms = append(m.platforms, p)
		m.byName[p.Name()] = p
	}
	return m
}

func (m *Multi) Name() string { return "multi" }

// Len reports the number of registered platforms.
func (m *Multi) Len() int { return len(m.platforms) }

// Groups lists the groups of every platform.
// Any platform failure fails the whole listing so callers never act on a partial view.
func (m *Multi) Groups(ctx context.Context) ([]Group, error) {
	var out []Group
	for _, p := range m.platforms {
		gs, err := p.Groups(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s groups: %w", p.Name(), err)
		}
		out = append(out, gs...)
	}
	return out, nil
}

func (m *Multi) Send(ctx context.Context, g Group, msg Message) error {
	p, ok := m.byName[g.Platform]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPlatform, g.Platform)
	}
	return p.Send(ctx, g, msg)
}
