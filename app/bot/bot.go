// Package bot defines transport-independent message and user types passed
// between the telegram listener, the detector and the storage layer.
package bot

import (
	"fmt"
	"strings"
	"time"
)

// Message is the primary record describing a single group message.
// It carries only what the spam pipeline needs, decoupled from the
// telegram API types.
type Message struct {
	ID       int
	ChatID   int64
	ThreadID int
	From     User
	Text     string    `json:",omitempty"`
	Caption  string    `json:",omitempty"`
	Sent     time.Time `json:",omitempty"`

	WithKeyboard bool `json:",omitempty"` // message carries an inline reply markup
	WithForward  bool `json:",omitempty"`
}

// User defines the author of a Message
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"user_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Content returns the checkable text of the message, preferring the body
// over the media caption.
func (m Message) Content() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// DisplayName returns user's display name or username or id
func DisplayName(msg Message) string {
	name := msg.From.DisplayName
	if name == "" {
		name = msg.From.Username
	}
	if name == "" {
		name = fmt.Sprintf("%d", msg.From.ID)
	}
	return strings.TrimSpace(name)
}
