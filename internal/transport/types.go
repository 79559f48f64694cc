package transport

import (
	"context"
	"time"
)

// ChatTarget addresses a chat (and optional forum thread) on a chat platform.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// TextSender delivers plain text to a chat. The Telegram platform implements it
// and it backs the logx chat sink.
type TextSender interface {
	SendText(ctx context.Context, to ChatTarget, text string) error
}

// Role is a mentionable role of a destination group.
// Mention is the platform-rendered token (e.g. "<@&123>" or "@everyone").
type Role struct {
	ID      string
	Name    string
	Mention string
}

// Channel is the resolved notification channel of a group.
type Channel struct {
	ID     string
	Name   string
	Thread int
}

// Group is one independent destination (a Discord guild, a Telegram chat).
//
// Channel is nil when no notification channel could be resolved; delivery to
// such a group is skipped and reported as an error.
type Group struct {
	Platform string
	ID       string
	Name     string
	Channel  *Channel
	Roles    []Role
	// Everyone is the broadcast-all sentinel role of the group.
	Everyone Role
}

// Key identifies a group across platforms.
func (g Group) Key() string { return g.Platform + ":" + g.ID }

// RoleByName returns the role whose name matches exactly (case-sensitive).
func (g Group) RoleByName(name string) (Role, bool) {
	for _, r := range g.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

type Field struct {
	Name  string
	Value string
}

type Author struct {
	Name    string
	URL     string
	IconURL string
}

type Footer struct {
	Text    string
	IconURL string
}

// Document is a destination-agnostic rich notification body.
// Platforms render it into their native format (Discord embed, Telegram HTML).
type Document struct {
	Title       string
	Description string
	URL         string
	Color       int
	Timestamp   time.Time
	Footer      Footer
	Thumbnail   string
	Author      Author
	Fields      []Field
}

// Message is what gets sent to a group channel: a header line plus the document.
type Message struct {
	Header   string
	Document Document
}

// Platform is a destination messaging platform.
type Platform interface {
	Name() string
	// Groups lists the platform's destination groups with their resolved channel and roles.
	Groups(ctx context.Context) ([]Group, error)
	// Send posts m to the group's channel.
	Send(ctx context.Context, g Group, m Message) error
}
