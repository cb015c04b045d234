package events

import (
	"context"
	"testing"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stankin/antispam/app/events/mocks"
)

func makeCallback(data string, keyboard *tbapi.InlineKeyboardMarkup) *tbapi.CallbackQuery {
	return &tbapi.CallbackQuery{
		ID:   "cb-id",
		Data: data,
		From: &tbapi.User{ID: 1000, UserName: "moderator"},
		Message: &tbapi.Message{
			MessageID:   77,
			Chat:        tbapi.Chat{ID: -200},
			Text:        "Дата: 01.02.2026 10:30:00\nID пользователя: 555\nИмя пользователя: spammer",
			ReplyMarkup: keyboard,
		},
	}
}

// answered returns the toast texts sent back to the moderator
func answered(api *mocks.TbAPIMock) []string {
	var res []string
	for _, call := range api.RequestCalls() {
		if cb, ok := call.C.(tbapi.CallbackConfig); ok {
			res = append(res, cb.Text)
		}
	}
	return res
}

func TestHandleCallback_Mute(t *testing.T) {
	api := okAPI()
	l := makeTestListener(t, api, &mocks.DetectingMock{})
	ctx := context.Background()

	// a detection recorded the violation before any button shows up
	_, err := l.Ledger.RecordViolation(ctx, 555, "spammer", false)
	require.NoError(t, err)

	cq := makeCallback("mute_user:555", spamKeyboard(321, 555, true, true, true))
	require.NoError(t, l.handleCallback(ctx, cq))

	// restriction applied with the first-violation duration
	var restrict *tbapi.RestrictChatMemberConfig
	for _, call := range api.RequestCalls() {
		if r, ok := call.C.(tbapi.RestrictChatMemberConfig); ok {
			restrict = &r
			break
		}
	}
	require.NotNil(t, restrict)
	assert.Equal(t, int64(555), restrict.UserID)
	assert.InDelta(t, time.Now().Add(24*time.Hour).Unix(), restrict.UntilDate, 5)

	// notification updated, mute button dropped
	var edit *tbapi.EditMessageTextConfig
	for _, call := range api.RequestCalls() {
		if e, ok := call.C.(tbapi.EditMessageTextConfig); ok {
			edit = &e
			break
		}
	}
	require.NotNil(t, edit)
	assert.Contains(t, edit.Text, "Ограничен до:")
	require.NotNil(t, edit.ReplyMarkup)
	for _, row := range edit.ReplyMarkup.InlineKeyboard {
		for _, btn := range row {
			assert.NotContains(t, *btn.CallbackData, "mute_user")
		}
	}

	assert.Contains(t, answered(api), "Пользователь ограничен!")

	// mute report with unmute button goes to the muted thread
	require.Len(t, api.SendCalls(), 1)
	muteMsg := api.SendCalls()[0].C.(tbapi.MessageConfig)
	assert.Equal(t, 60, muteMsg.MessageThreadID)

	off, found, err := l.Ledger.Get(ctx, 555)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, off.Violations)
	assert.Positive(t, off.MuteExpiresAt)
}

func TestHandleCallback_MuteUnknownUser(t *testing.T) {
	api := okAPI()
	l := makeTestListener(t, api, &mocks.DetectingMock{})

	cq := makeCallback("mute_user:999", spamKeyboard(321, 999, true, true, true))
	require.Error(t, l.handleCallback(context.Background(), cq))
	assert.Contains(t, answered(api), "Не удалось ограничить пользователя!")
}

func TestHandleCallback_Unmute(t *testing.T) {
	api := okAPI()
	l := makeTestListener(t, api, &mocks.DetectingMock{})
	ctx := context.Background()

	_, err := l.Ledger.RecordViolation(ctx, 555, "spammer", true)
	require.NoError(t, err)

	cq := makeCallback("unmute_user:555", unmuteKeyboard(555))
	require.NoError(t, l.handleCallback(ctx, cq))

	// permissions restored in full
	var restrict *tbapi.RestrictChatMemberConfig
	for _, call := range api.RequestCalls() {
		if r, ok := call.C.(tbapi.RestrictChatMemberConfig); ok {
			restrict = &r
			break
		}
	}
	require.NotNil(t, restrict)
	assert.True(t, restrict.Permissions.CanSendMessages)
	assert.True(t, restrict.Permissions.CanSendPhotos)
	assert.Zero(t, restrict.UntilDate)

	assert.Contains(t, answered(api), "Ограничение снято!")

	// expiry cleared, violation count survives
	off, found, err := l.Ledger.Get(ctx, 555)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, off.Violations)
	assert.Zero(t, off.MuteExpiresAt)
}

func TestHandleCallback_Delete(t *testing.T) {
	api := okAPI()
	l := makeTestListener(t, api, &mocks.DetectingMock{})

	cq := makeCallback("delete_message:321", spamKeyboard(321, 555, true, true, true))
	require.NoError(t, l.handleCallback(context.Background(), cq))

	assert.Equal(t, tbapi.NewDeleteMessage(123, 321), api.RequestCalls()[0].C)
	assert.Contains(t, answered(api), "Сообщение удалено!")

	// delete button dropped, the rest stays
	var edit *tbapi.EditMessageTextConfig
	for _, call := range api.RequestCalls() {
		if e, ok := call.C.(tbapi.EditMessageTextConfig); ok {
			edit = &e
			break
		}
	}
	require.NotNil(t, edit)
	assert.Contains(t, edit.Text, "Сообщение удалено вручную")
	require.NotNil(t, edit.ReplyMarkup)
	assert.Len(t, edit.ReplyMarkup.InlineKeyboard, 2)
}

func TestHandleCallback_NotSpam(t *testing.T) {
	api := okAPI()
	l := makeTestListener(t, api, &mocks.DetectingMock{})
	ctx := context.Background()

	cq := makeCallback("not_spam:555", spamKeyboard(321, 555, true, true, true))
	require.NoError(t, l.handleCallback(ctx, cq))

	// the entry records which moderator cleared the user and why
	entry, found, err := l.Whitelist.Get(ctx, 555)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "spammer", entry.UserName)
	assert.Equal(t, int64(1000), entry.AddedBy.Int64)
	assert.True(t, entry.AddedBy.Valid)
	assert.True(t, entry.Reason.Valid)

	var edit *tbapi.EditMessageTextConfig
	for _, call := range api.RequestCalls() {
		if e, ok := call.C.(tbapi.EditMessageTextConfig); ok {
			edit = &e
			break
		}
	}
	require.NotNil(t, edit)
	assert.Contains(t, edit.Text, "Отмечено как не спам")
	assert.Nil(t, edit.ReplyMarkup)

	// pressing again is a no-op, stays whitelisted
	require.NoError(t, l.handleCallback(ctx, makeCallback("not_spam:555", nil)))
	whitelisted, err := l.Whitelist.Contains(ctx, 555)
	require.NoError(t, err)
	assert.True(t, whitelisted)
}

func TestHandleCallback_BadData(t *testing.T) {
	api := okAPI()
	l := makeTestListener(t, api, &mocks.DetectingMock{})
	ctx := context.Background()

	for _, data := range []string{"garbage", "mute_user:notanumber", "unknown_action:5"} {
		cq := makeCallback(data, nil)
		assert.Error(t, l.handleCallback(ctx, cq), data)
	}
	assert.Equal(t, []string{"Неверные данные!", "Неверные данные!", "Неверные данные!"}, answered(api))
}
