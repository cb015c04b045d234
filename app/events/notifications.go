package events

import (
	"context"
	"fmt"
	"log"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/go-pkgz/repeater/v2"

	"github.com/stankin/antispam/app/bot"
	"github.com/stankin/antispam/app/detector"
	"github.com/stankin/antispam/app/ledger"
)

// timestamps in notifications use the original panel's format
const notifyTimeFormat = "02.01.2006 15:04:05"

// delivery retries: 3 attempts with exponential backoff 1s, 2s, 4s
const (
	notifyAttempts     = 3
	notifyInitialDelay = time.Second
)

// Notifier sends HTML notifications to the moderators' chat. Messages
// are routed to topic threads by confidence tier and delivery is retried
// with exponential backoff. A notification that can't be delivered after
// all attempts is logged and dropped, it never affects already committed
// enforcement actions.
type Notifier struct {
	TbAPI         TbAPI
	ChatID        int64 // moderators' notification chat
	SureThread    int   // confident spam detections
	UnsureThread  int   // spam detections below the sure threshold
	PartialThread int   // partial (email) detections
	MutedThread   int   // mute and unmute reports
}

// threadFor routes a verdict to its notification thread
func (n *Notifier) threadFor(verdict detector.Verdict, sure bool) int {
	switch {
	case verdict == detector.Partial:
		return n.PartialThread
	case verdict == detector.Spam && sure:
		return n.SureThread
	default:
		return n.UnsureThread
	}
}

// SendSpam delivers a spam notification to the thread matching the
// result's confidence tier
func (n *Notifier) SendSpam(ctx context.Context, text string, res detector.Result, keyboard *tbapi.InlineKeyboardMarkup) error {
	return n.send(ctx, n.threadFor(res.Verdict, res.Sure), text, keyboard)
}

// SendMute reports a mute to the muted thread with an unmute button
func (n *Notifier) SendMute(ctx context.Context, userID int64, userName, mutedUntil string, violations int) error {
	text := formatMuteNotification(time.Now(), userID, userName, mutedUntil, violations)
	return n.send(ctx, n.MutedThread, text, unmuteKeyboard(userID))
}

func (n *Notifier) send(ctx context.Context, threadID int, text string, keyboard *tbapi.InlineKeyboardMarkup) error {
	msg := tbapi.NewMessage(n.ChatID, text)
	msg.ParseMode = tbapi.ModeHTML
	msg.MessageThreadID = threadID
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}

	err := repeater.NewBackoff(notifyAttempts, notifyInitialDelay).Do(ctx, func() error {
		_, e := n.TbAPI.Send(msg)
		return e
	})
	if err != nil {
		return fmt.Errorf("failed to send notification to thread %d after %d attempts: %w", threadID, notifyAttempts, err)
	}
	log.Printf("[DEBUG] notification sent to thread %d", threadID)
	return nil
}

// formatSpamNotification renders the HTML report for a detected spam
// message. kbChecked is false when the reply markup check is disabled,
// in that case the keyboard line shows the check as off.
func formatSpamNotification(msg bot.Message, res detector.Result, kbChecked bool, violations int, autoDeleted bool, mutedUntil string) string {
	kbStatus := "Отключено"
	if kbChecked {
		kbStatus = "Нет"
		if msg.WithKeyboard {
			kbStatus = "Да"
		}
	}

	text := fmt.Sprintf(
		"<b>Дата:</b> %s\n"+
			"<b>ID пользователя:</b> <code>%d</code>\n"+
			"<b>Имя пользователя:</b> <code>%s</code>\n"+
			"<b>Текст сообщения:</b>\n<blockquote>%s</blockquote>\n"+
			"<b>Имеет inline-клавиатуру:</b> %s\n"+
			"<b>Вердикт классификатора:</b> <code>%.7f</code>\n"+
			"<b>Сигналы:</b> %s\n"+
			"<b>Количество нарушений:</b> %d",
		msg.Sent.Format(notifyTimeFormat), msg.From.ID, escapeHTML(bot.DisplayName(msg)),
		escapeHTML(msg.Content()), kbStatus, res.Prediction.Probs[1], res.Details(), violations)

	if autoDeleted {
		text += "\n<i>Сообщение удалено автоматически</i>"
	}
	if mutedUntil != "" {
		text += fmt.Sprintf("\n<b>Ограничен до:</b> %s", mutedUntil)
	}
	return text
}

// formatMuteNotification renders the HTML report for a muted user
func formatMuteNotification(now time.Time, userID int64, userName, mutedUntil string, violations int) string {
	return fmt.Sprintf(
		"<b>Дата:</b> %s\n"+
			"<b>ID пользователя:</b> <code>%d</code>\n"+
			"<b>Имя пользователя:</b> <code>%s</code>\n"+
			"<b>Дата окончания ограничения:</b> %s\n"+
			"<b>Количество нарушений:</b> %d",
		now.Format(notifyTimeFormat), userID, escapeHTML(userName), mutedUntil, violations)
}

// formatMutedUntil renders a mute expiry for humans, permanent mutes are
// shown as forever
func formatMutedUntil(expiry int64) string {
	if expiry <= 0 {
		return ""
	}
	if expiry >= ledger.PermanentMuteTimestamp {
		return "навсегда"
	}
	return time.Unix(expiry, 0).Format(notifyTimeFormat)
}
