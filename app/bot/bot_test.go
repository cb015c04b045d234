package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"display name set", Message{From: User{ID: 1, Username: "u", DisplayName: "John Doe"}}, "John Doe"},
		{"fallback to username", Message{From: User{ID: 1, Username: "jdoe"}}, "jdoe"},
		{"fallback to id", Message{From: User{ID: 123}}, "123"},
		{"trims spaces", Message{From: User{DisplayName: " John "}}, "John"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.msg))
		})
	}
}

func TestMessage_Content(t *testing.T) {
	assert.Equal(t, "body", Message{Text: "body", Caption: "cap"}.Content())
	assert.Equal(t, "cap", Message{Caption: "cap"}.Content())
	assert.Equal(t, "", Message{}.Content())
}
