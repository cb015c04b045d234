// Package events provides event handlers for the telegram bot. It
// receives group messages, runs them through the spam detector, applies
// the enforcement policy (audit record, delete, mute) and reports to the
// moderators' notification chat with manual override buttons.
package events

import (
	"strings"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"

	"github.com/stankin/antispam/app/bot"
)

//go:generate moq --out mocks/tb_api.go --pkg mocks --skip-ensure . TbAPI

// TbAPI is an interface for telegram bot API, only subset of methods used
type TbAPI interface {
	GetUpdatesChan(config tbapi.UpdateConfig) tbapi.UpdatesChannel
	Send(c tbapi.Chattable) (tbapi.Message, error)
	Request(c tbapi.Chattable) (*tbapi.APIResponse, error)
	GetChatMember(config tbapi.GetChatMemberConfig) (tbapi.ChatMember, error)
}

// system accounts whose messages are never checked: Telegram service
// notifications and the anonymous group bot
var systemUserIDs = []int64{777000, 1087968824}

func isSystemUser(id int64) bool {
	for _, sysID := range systemUserIDs {
		if id == sysID {
			return true
		}
	}
	return false
}

// transform converts a telegram message to the internal representation
func transform(msg *tbapi.Message) bot.Message {
	res := bot.Message{
		ID:           msg.MessageID,
		ChatID:       msg.Chat.ID,
		ThreadID:     msg.MessageThreadID,
		Text:         msg.Text,
		Caption:      msg.Caption,
		Sent:         time.Unix(int64(msg.Date), 0),
		WithKeyboard: msg.ReplyMarkup != nil && len(msg.ReplyMarkup.InlineKeyboard) > 0,
		WithForward:  msg.ForwardOrigin != nil,
	}
	if msg.From != nil {
		res.From = bot.User{
			ID:          msg.From.ID,
			Username:    msg.From.UserName,
			DisplayName: strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName),
		}
	}
	return res
}

// escapeHTML escapes user-provided text embedded into HTML notifications
func escapeHTML(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
