package events

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	cache "github.com/go-pkgz/expirable-cache/v3"

	"github.com/stankin/antispam/app/bot"
	"github.com/stankin/antispam/app/detector"
	"github.com/stankin/antispam/app/ledger"
	"github.com/stankin/antispam/app/storage"
)

//go:generate moq --out mocks/detecting.go --pkg mocks --skip-ensure . Detecting
//go:generate moq --out mocks/spam_logger.go --pkg mocks --skip-ensure . SpamLogger

// Detecting is the spam detection pipeline used by the listener
type Detecting interface {
	Check(ctx context.Context, req detector.Request, cfg detector.Config) detector.Result
}

// SpamLogger writes detected spam to the audit log
type SpamLogger interface {
	Save(msg bot.Message, res detector.Result)
}

// SpamLoggerFunc adapts a function to SpamLogger
type SpamLoggerFunc func(msg bot.Message, res detector.Result)

// Save calls f(msg, res)
func (f SpamLoggerFunc) Save(msg bot.Message, res detector.Result) { f(msg, res) }

// TelegramListener listens to tg updates, passes group messages to the
// detector and executes the enforcement policy on its verdicts.
// Not thread safe.
type TelegramListener struct {
	TbAPI      TbAPI
	Detector   Detecting
	Settings   *storage.Settings
	Records    *storage.SpamRecords
	Whitelist  *storage.Whitelist
	Collected  *storage.Collected
	Users      *storage.Users
	Ledger     *ledger.Ledger
	Notifier   *Notifier
	SpamLogger SpamLogger
	ChatID     int64 // the moderated group
	Testing    bool  // testing mode checks admin messages too

	adminCache cache.Cache[int64, bool]
}

// Do processes all events, blocking call
func (l *TelegramListener) Do(ctx context.Context) error {
	log.Printf("[INFO] start telegram listener for chat %d", l.ChatID)
	if l.Testing {
		log.Printf("[WARN] testing mode, admin messages are checked too")
	}
	l.adminCache = cache.NewCache[int64, bool]().WithMaxKeys(1000).WithTTL(5 * time.Minute)

	u := tbapi.NewUpdate(0)
	u.Timeout = 60
	updates := l.TbAPI.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("telegram update chan closed")
			}

			if update.CallbackQuery != nil {
				if err := l.handleCallback(ctx, update.CallbackQuery); err != nil {
					log.Printf("[WARN] failed to process callback: %v", err)
				}
				continue
			}

			if update.Message == nil {
				continue
			}

			if update.Message.Chat.IsPrivate() && strings.HasPrefix(update.Message.Text, "/password") {
				if err := l.handlePasswordCommand(ctx, update.Message); err != nil {
					log.Printf("[WARN] failed to process /password command: %v", err)
				}
				continue
			}

			if err := l.procMessage(ctx, update.Message); err != nil {
				log.Printf("[WARN] failed to process message: %v", err)
			}
		}
	}
}

// procMessage runs a single group message through the pipeline. Errors
// are returned for logging only, a failed message never stops the loop.
func (l *TelegramListener) procMessage(ctx context.Context, tgMsg *tbapi.Message) error {
	if tgMsg.Chat.ID != l.ChatID || tgMsg.From == nil {
		return nil
	}
	msg := transform(tgMsg)

	if l.Settings.Bool(storage.KeyCollectMessages, false) && msg.Text != "" {
		if err := l.Collected.Add(ctx, msg.From.ID, msg.From.Username, msg.Text); err != nil {
			log.Printf("[WARN] failed to collect message: %v", err)
		}
	}

	if l.isPrivileged(msg.From.ID) {
		log.Printf("[DEBUG] message from privileged user %d skipped", msg.From.ID)
		return nil
	}

	whitelisted, err := l.Whitelist.Contains(ctx, msg.From.ID)
	if err != nil {
		return fmt.Errorf("failed to check whitelist: %w", err)
	}
	if whitelisted {
		log.Printf("[DEBUG] message from whitelisted user %d skipped", msg.From.ID)
		return nil
	}

	if msg.Content() == "" {
		return nil
	}

	cfg := detector.Config{
		ClassifierThreshold: l.Settings.Float(storage.KeyClassifierThreshold, 0.945),
		SureThreshold:       l.Settings.Float(storage.KeySureThreshold, 0.98),
		CheckReplyMarkup:    l.Settings.Bool(storage.KeyCheckReplyMarkup, true),
		CheckCas:            l.Settings.Bool(storage.KeyCheckCas, true),
		CheckLols:           l.Settings.Bool(storage.KeyCheckLols, true),
		EnableLLM:           l.Settings.Bool(storage.KeyEnableLLM, false),
	}
	req := detector.Request{Text: msg.Content(), UserID: msg.From.ID, UserName: msg.From.Username,
		WithKeyboard: msg.WithKeyboard}
	res := l.Detector.Check(ctx, req, cfg)
	if res.Verdict == detector.Clean {
		return nil
	}
	log.Printf("[INFO] message %d from %d detected as %s (sure=%v): %s",
		msg.ID, msg.From.ID, res.Verdict, res.Sure, res.Details())

	return l.enforce(ctx, msg, res, cfg)
}

// enforce persists the detection and applies automated actions. The
// audit record always lands first, later failures degrade to manual
// moderation but never lose the detection.
func (l *TelegramListener) enforce(ctx context.Context, msg bot.Message, res detector.Result, cfg detector.Config) error {
	rec := storage.SpamRecord{
		MessageID:   msg.ID,
		UserID:      msg.From.ID,
		UserName:    msg.From.Username,
		Text:        msg.Content(),
		Confidence:  res.Prediction.Probs[1],
		Verdict:     res.Verdict.String(),
		ReplyMarkup: replyMarkupStatus(msg.WithKeyboard, cfg.CheckReplyMarkup),
		Cas:         res.Cas.String(),
		Lols:        res.Lols.String(),
		LLM:         res.LLM.String(),
		Details:     res.Details(),
	}
	if err := l.Records.Add(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist spam record: %w", err)
	}
	if l.SpamLogger != nil {
		l.SpamLogger.Save(msg, res)
	}

	enableDeleting := l.Settings.Bool(storage.KeyEnableDeleting, true)
	enableAutomuting := l.Settings.Bool(storage.KeyEnableAutomuting, false)

	autoDeleted := false
	if enableDeleting && res.Verdict == detector.Spam && res.Sure {
		if _, err := l.TbAPI.Request(tbapi.NewDeleteMessage(l.ChatID, msg.ID)); err != nil {
			log.Printf("[WARN] failed to delete message %d: %v", msg.ID, err)
		} else {
			autoDeleted = true
			log.Printf("[INFO] message %d from %d deleted", msg.ID, msg.From.ID)
		}
	}

	// partial verdicts are for the moderators only, automated actions
	// need a sure spam verdict
	autoMute := enableAutomuting && enableDeleting && res.Verdict == detector.Spam && res.Sure
	off, err := l.Ledger.RecordViolation(ctx, msg.From.ID, msg.From.Username, autoMute)
	if err != nil {
		return fmt.Errorf("failed to record violation: %w", err)
	}

	mutedUntil := ""
	muteDone := false
	if autoMute {
		mutedUntil = formatMutedUntil(off.MuteExpiresAt)
		if err := l.restrictUser(msg.From.ID, off.MuteExpiresAt); err != nil {
			log.Printf("[WARN] failed to mute user %d: %v", msg.From.ID, err)
		} else {
			muteDone = true
			log.Printf("[INFO] user %d muted until %s", msg.From.ID, mutedUntil)
		}
	}

	text := formatSpamNotification(msg, res, cfg.CheckReplyMarkup, off.Violations, autoDeleted, mutedUntil)

	// fully automated detections need no buttons, everything else keeps
	// the remaining manual actions available
	var keyboard *tbapi.InlineKeyboardMarkup
	if !muteDone {
		keyboard = spamKeyboard(msg.ID, msg.From.ID, !autoDeleted, true, true)
	}
	if err := l.Notifier.SendSpam(ctx, text, res, keyboard); err != nil {
		log.Printf("[WARN] %v", err)
	}
	if muteDone {
		if err := l.Notifier.SendMute(ctx, msg.From.ID, msg.From.Username, mutedUntil, off.Violations); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}
	return nil
}

// isPrivileged reports whether the author's messages bypass checks:
// telegram system accounts and group admins, unless in testing mode
func (l *TelegramListener) isPrivileged(userID int64) bool {
	if isSystemUser(userID) {
		return true
	}
	if l.Testing {
		return false
	}
	if admin, ok := l.adminCache.Get(userID); ok {
		return admin
	}

	member, err := l.TbAPI.GetChatMember(tbapi.GetChatMemberConfig{
		ChatConfigWithUser: tbapi.ChatConfigWithUser{
			ChatConfig: tbapi.ChatConfig{ChatID: l.ChatID},
			UserID:     userID,
		},
	})
	if err != nil {
		log.Printf("[WARN] failed to get chat member %d: %v", userID, err)
		return false
	}
	admin := member.IsAdministrator() || member.IsCreator()
	l.adminCache.Set(userID, admin, 0)
	return admin
}

// restrictUser revokes the posting permission until the given timestamp
func (l *TelegramListener) restrictUser(userID int64, until int64) error {
	_, err := l.TbAPI.Request(tbapi.RestrictChatMemberConfig{
		ChatMemberConfig: tbapi.ChatMemberConfig{
			ChatConfig: tbapi.ChatConfig{ChatID: l.ChatID},
			UserID:     userID,
		},
		UntilDate:   until,
		Permissions: &tbapi.ChatPermissions{CanSendMessages: false},
	})
	if err != nil {
		return fmt.Errorf("failed to restrict user %d: %w", userID, err)
	}
	return nil
}

// unrestrictUser restores the default permissions
func (l *TelegramListener) unrestrictUser(userID int64) error {
	_, err := l.TbAPI.Request(tbapi.RestrictChatMemberConfig{
		ChatMemberConfig: tbapi.ChatMemberConfig{
			ChatConfig: tbapi.ChatConfig{ChatID: l.ChatID},
			UserID:     userID,
		},
		Permissions: &tbapi.ChatPermissions{
			CanSendMessages:       true,
			CanSendAudios:         true,
			CanSendDocuments:      true,
			CanSendPhotos:         true,
			CanSendVideos:         true,
			CanSendVideoNotes:     true,
			CanSendVoiceNotes:     true,
			CanSendPolls:          true,
			CanSendOtherMessages:  true,
			CanAddWebPagePreviews: true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to unrestrict user %d: %w", userID, err)
	}
	return nil
}

// handlePasswordCommand provisions admin panel credentials. Only admins
// of the moderated group can request a password, the reply goes to the
// requester's private chat.
func (l *TelegramListener) handlePasswordCommand(ctx context.Context, tgMsg *tbapi.Message) error {
	if tgMsg.From == nil {
		return nil
	}
	userID := tgMsg.From.ID

	member, err := l.TbAPI.GetChatMember(tbapi.GetChatMemberConfig{
		ChatConfigWithUser: tbapi.ChatConfigWithUser{
			ChatConfig: tbapi.ChatConfig{ChatID: l.ChatID},
			UserID:     userID,
		},
	})
	if err != nil || !(member.IsAdministrator() || member.IsCreator()) {
		reply := tbapi.NewMessage(tgMsg.Chat.ID, "Команда доступна только администраторам группы")
		if _, e := l.TbAPI.Send(reply); e != nil {
			return fmt.Errorf("failed to send reply: %w", e)
		}
		return nil
	}

	password, err := makePassword()
	if err != nil {
		return fmt.Errorf("failed to generate password: %w", err)
	}
	if err := l.Users.SetPassword(ctx, userID, tgMsg.From.UserName, password); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	reply := tbapi.NewMessage(tgMsg.Chat.ID,
		fmt.Sprintf("Учетные данные для панели:\n<b>Логин:</b> <code>%d</code>\n<b>Пароль:</b> <code>%s</code>",
			userID, password))
	reply.ParseMode = tbapi.ModeHTML
	if _, err := l.TbAPI.Send(reply); err != nil {
		return fmt.Errorf("failed to send credentials: %w", err)
	}
	log.Printf("[INFO] panel credentials issued to admin %d", userID)
	return nil
}

// replyMarkupStatus renders the reply-markup signal for the audit record
func replyMarkupStatus(withKeyboard, checked bool) string {
	switch {
	case !checked:
		return "disabled"
	case withKeyboard:
		return "yes"
	default:
		return "no"
	}
}

func makePassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
