package events

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/hashicorp/go-multierror"

	"github.com/stankin/antispam/app/storage"
)

// handleCallback dispatches a moderator's button press. Every handler is
// idempotent: re-clicking a button repeats or confirms the action instead
// of failing.
func (l *TelegramListener) handleCallback(ctx context.Context, cq *tbapi.CallbackQuery) error {
	action, idStr, ok := strings.Cut(cq.Data, ":")
	if !ok {
		l.answer(cq, "Неверные данные!")
		return fmt.Errorf("malformed callback data %q", cq.Data)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		l.answer(cq, "Неверные данные!")
		return fmt.Errorf("bad id in callback data %q: %w", cq.Data, err)
	}

	log.Printf("[DEBUG] callback %s:%d from %s", action, id, cq.From.UserName)
	switch action {
	case cbMuteUser:
		return l.cbMute(ctx, cq, id)
	case cbUnmuteUser:
		return l.cbUnmute(ctx, cq, id)
	case cbDeleteMessage:
		return l.cbDelete(cq, int(id))
	case cbNotSpam:
		return l.cbNotSpam(ctx, cq, id)
	default:
		l.answer(cq, "Неверные данные!")
		return fmt.Errorf("unknown callback action %q", action)
	}
}

// cbMute restricts the author with a duration derived from the current
// violation count
func (l *TelegramListener) cbMute(ctx context.Context, cq *tbapi.CallbackQuery, userID int64) error {
	off, err := l.Ledger.Restrict(ctx, userID)
	if err != nil {
		l.answer(cq, "Не удалось ограничить пользователя!")
		return fmt.Errorf("failed to restrict %d: %w", userID, err)
	}

	errs := new(multierror.Error)
	if err := l.restrictUser(userID, off.MuteExpiresAt); err != nil {
		errs = multierror.Append(errs, err)
	}

	mutedUntil := formatMutedUntil(off.MuteExpiresAt)
	l.editNotification(cq, fmt.Sprintf("\n<b>Ограничен до:</b> %s", mutedUntil), cbMuteUser)
	l.answer(cq, "Пользователь ограничен!")

	if err := l.Notifier.SendMute(ctx, userID, off.UserName, mutedUntil, off.Violations); err != nil {
		errs = multierror.Append(errs, err)
	}
	log.Printf("[INFO] user %d manually muted until %s (violation %d)", userID, mutedUntil, off.Violations)
	return errs.ErrorOrNil()
}

// cbUnmute lifts the restriction and clears the stored expiry, the
// violation count stays
func (l *TelegramListener) cbUnmute(ctx context.Context, cq *tbapi.CallbackQuery, userID int64) error {
	errs := new(multierror.Error)
	if err := l.unrestrictUser(userID); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := l.Ledger.Unmute(ctx, userID); err != nil {
		errs = multierror.Append(errs, err)
	}

	if errs.ErrorOrNil() != nil {
		l.answer(cq, "Не удалось снять ограничение!")
		return errs.ErrorOrNil()
	}

	l.clearNotificationKeyboard(cq, "\n<b>Ограничение снято вручную</b>")
	l.answer(cq, "Ограничение снято!")
	log.Printf("[INFO] user %d manually unmuted", userID)
	return nil
}

// cbDelete removes the offending message from the group. A message
// already gone keeps the handler successful for the moderator.
func (l *TelegramListener) cbDelete(cq *tbapi.CallbackQuery, messageID int) error {
	if _, err := l.TbAPI.Request(tbapi.NewDeleteMessage(l.ChatID, messageID)); err != nil {
		if !strings.Contains(err.Error(), "message to delete not found") {
			l.answer(cq, "Не удалось удалить сообщение!")
			return fmt.Errorf("failed to delete message %d: %w", messageID, err)
		}
		log.Printf("[DEBUG] message %d already deleted", messageID)
	}

	l.editNotification(cq, "\n\n<i>Сообщение удалено вручную</i>", cbDeleteMessage)
	l.answer(cq, "Сообщение удалено!")
	log.Printf("[INFO] message %d manually deleted", messageID)
	return nil
}

// cbNotSpam clears the author: whitelists them so further messages skip
// checks. The audit record of the detection is kept.
func (l *TelegramListener) cbNotSpam(ctx context.Context, cq *tbapi.CallbackQuery, userID int64) error {
	entry := storage.WhitelistedUser{
		UserID: userID,
		Reason: sql.NullString{String: "отмечен модератором как не спам", Valid: true},
	}
	if cq.Message != nil {
		entry.UserName = extractUserName(cq.Message.Text)
	}
	if cq.From != nil {
		entry.AddedBy = sql.NullInt64{Int64: cq.From.ID, Valid: true}
	}
	if err := l.Whitelist.Add(ctx, entry); err != nil {
		l.answer(cq, "Ошибка!")
		return fmt.Errorf("failed to whitelist %d: %w", userID, err)
	}

	l.clearNotificationKeyboard(cq, "\n\n<i>✅ Отмечено как не спам. Пользователь добавлен в белый список.</i>")
	l.answer(cq, "Отмечено как не спам. Пользователь добавлен в белый список.")
	log.Printf("[INFO] user %d marked as not spam and whitelisted", userID)
	return nil
}

// answer sends a toast to the moderator who pressed the button
func (l *TelegramListener) answer(cq *tbapi.CallbackQuery, text string) {
	if _, err := l.TbAPI.Request(tbapi.NewCallback(cq.ID, text)); err != nil {
		log.Printf("[WARN] failed to answer callback: %v", err)
	}
}

// editNotification appends a note to the notification message and drops
// the button with the given prefix from its keyboard
func (l *TelegramListener) editNotification(cq *tbapi.CallbackQuery, note, dropButton string) {
	if cq.Message == nil {
		return
	}
	edit := tbapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID, escapeHTML(cq.Message.Text)+note)
	edit.ParseMode = tbapi.ModeHTML
	edit.ReplyMarkup = removeButton(cq.Message.ReplyMarkup, dropButton)
	if _, err := l.TbAPI.Request(edit); err != nil {
		log.Printf("[WARN] failed to edit notification: %v", err)
	}
}

// clearNotificationKeyboard appends a note and removes the whole keyboard
func (l *TelegramListener) clearNotificationKeyboard(cq *tbapi.CallbackQuery, note string) {
	if cq.Message == nil {
		return
	}
	edit := tbapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID, escapeHTML(cq.Message.Text)+note)
	edit.ParseMode = tbapi.ModeHTML
	if _, err := l.TbAPI.Request(edit); err != nil {
		log.Printf("[WARN] failed to edit notification: %v", err)
	}
}

// extractUserName pulls the author name out of a notification text
func extractUserName(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if name, found := strings.CutPrefix(line, "Имя пользователя: "); found {
			return strings.TrimSpace(name)
		}
	}
	return ""
}
