package events

import (
	"fmt"
	"strings"

	tbapi "github.com/OvyFlash/telegram-bot-api"
)

// callback data prefixes for the manual moderation buttons
const (
	cbDeleteMessage = "delete_message"
	cbMuteUser      = "mute_user"
	cbUnmuteUser    = "unmute_user"
	cbNotSpam       = "not_spam"
)

// spamKeyboard builds the moderation keyboard for a spam notification.
// Buttons for already-performed actions are omitted, a fully automated
// detection gets no keyboard at all.
func spamKeyboard(messageID int, userID int64, withDelete, withMute, withNotSpam bool) *tbapi.InlineKeyboardMarkup {
	var rows [][]tbapi.InlineKeyboardButton
	if withDelete {
		rows = append(rows, tbapi.NewInlineKeyboardRow(
			tbapi.NewInlineKeyboardButtonData("🗑 Удалить сообщение", fmt.Sprintf("%s:%d", cbDeleteMessage, messageID))))
	}
	if withMute {
		rows = append(rows, tbapi.NewInlineKeyboardRow(
			tbapi.NewInlineKeyboardButtonData("🔨 Ограничить пользователя", fmt.Sprintf("%s:%d", cbMuteUser, userID))))
	}
	if withNotSpam {
		rows = append(rows, tbapi.NewInlineKeyboardRow(
			tbapi.NewInlineKeyboardButtonData("✅ Не спам", fmt.Sprintf("%s:%d", cbNotSpam, userID))))
	}
	if len(rows) == 0 {
		return nil
	}
	res := tbapi.NewInlineKeyboardMarkup(rows...)
	return &res
}

// unmuteKeyboard builds the single-button keyboard for mute notifications
func unmuteKeyboard(userID int64) *tbapi.InlineKeyboardMarkup {
	res := tbapi.NewInlineKeyboardMarkup(tbapi.NewInlineKeyboardRow(
		tbapi.NewInlineKeyboardButtonData("🔓 Снять ограничение", fmt.Sprintf("%s:%d", cbUnmuteUser, userID))))
	return &res
}

// removeButton returns a copy of the keyboard without buttons whose
// callback data starts with the given prefix, nil when nothing is left
func removeButton(keyboard *tbapi.InlineKeyboardMarkup, prefix string) *tbapi.InlineKeyboardMarkup {
	if keyboard == nil {
		return nil
	}
	var rows [][]tbapi.InlineKeyboardButton
	for _, row := range keyboard.InlineKeyboard {
		var kept []tbapi.InlineKeyboardButton
		for _, btn := range row {
			if btn.CallbackData != nil && strings.HasPrefix(*btn.CallbackData, prefix) {
				continue
			}
			kept = append(kept, btn)
		}
		if len(kept) > 0 {
			rows = append(rows, kept)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	res := tbapi.NewInlineKeyboardMarkup(rows...)
	return &res
}
