// Package routing decides, per course and destination group, whether to
// deliver and whom to mention.
package routing

import (
	"sync/atomic"

	"classbot/internal/config"
	"classbot/internal/transport"
)

// Resolution is the outcome for one (course, group) pair.
type Resolution struct {
	Deliver  bool
	Channel  *transport.Channel
	Mentions []transport.Role
	// Everyone is set when the broadcast-all role was selected.
	Everyone bool
}

// Tokens returns the rendered mention tokens, skipping empty ones.
func (r Resolution) Tokens() []string {
	out := make([]string, 0, len(r.Mentions))
	for _, m := range r.Mentions {
		if m.Mention != "" {
			out = append(out, m.Mention)
		}
	}
	return out
}

type Resolver struct {
	lookup atomic.Pointer[config.Lookup]
}

func NewResolver(l config.Lookup) *Resolver {
	r := &Resolver{}
	r.Apply(l)
	return r
}

// Apply swaps the configuration used by later Resolve calls.
func (r *Resolver) Apply(l config.Lookup) { r.lookup.Store(&l) }

func (r *Resolver) Resolve(course string, g transport.Group) Resolution {
	l := r.lookup.Load()
	if l.GroupBlacklisted(g.Name) || l.CourseBlacklisted(g.Name, course) {
		return Resolution{}
	}
	res := Resolution{Deliver: true, Channel: g.Channel}

	names, ok := l.RoleMentions(g.Name, course)
	if !ok {
		return everyone(res, g)
	}
	for _, name := range names {
		if name == config.EveryoneSentinel {
			return everyone(res, g)
		}
		// Unknown names are stale config, not an error.
		if role, found := g.RoleByName(name); found {
			res.Mentions = append(res.Mentions, role)
		}
	}
	return res
}

func everyone(res Resolution, g transport.Group) Resolution {
	res.Everyone = true
	res.Mentions = []transport.Role{g.Everyone}
	return res
}
