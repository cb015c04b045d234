package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpamKeyboard(t *testing.T) {
	t.Run("all buttons", func(t *testing.T) {
		kb := spamKeyboard(100, 555, true, true, true)
		require.NotNil(t, kb)
		require.Len(t, kb.InlineKeyboard, 3)
		assert.Equal(t, "🗑 Удалить сообщение", kb.InlineKeyboard[0][0].Text)
		assert.Equal(t, "delete_message:100", *kb.InlineKeyboard[0][0].CallbackData)
		assert.Equal(t, "🔨 Ограничить пользователя", kb.InlineKeyboard[1][0].Text)
		assert.Equal(t, "mute_user:555", *kb.InlineKeyboard[1][0].CallbackData)
		assert.Equal(t, "✅ Не спам", kb.InlineKeyboard[2][0].Text)
		assert.Equal(t, "not_spam:555", *kb.InlineKeyboard[2][0].CallbackData)
	})

	t.Run("without delete", func(t *testing.T) {
		kb := spamKeyboard(100, 555, false, true, true)
		require.NotNil(t, kb)
		require.Len(t, kb.InlineKeyboard, 2)
		assert.Equal(t, "mute_user:555", *kb.InlineKeyboard[0][0].CallbackData)
	})

	t.Run("no buttons", func(t *testing.T) {
		assert.Nil(t, spamKeyboard(100, 555, false, false, false))
	})
}

func TestUnmuteKeyboard(t *testing.T) {
	kb := unmuteKeyboard(555)
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 1)
	assert.Equal(t, "🔓 Снять ограничение", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "unmute_user:555", *kb.InlineKeyboard[0][0].CallbackData)
}

func TestRemoveButton(t *testing.T) {
	t.Run("drops matching button", func(t *testing.T) {
		kb := spamKeyboard(100, 555, true, true, true)
		res := removeButton(kb, cbMuteUser)
		require.NotNil(t, res)
		require.Len(t, res.InlineKeyboard, 2)
		assert.Equal(t, "delete_message:100", *res.InlineKeyboard[0][0].CallbackData)
		assert.Equal(t, "not_spam:555", *res.InlineKeyboard[1][0].CallbackData)
	})

	t.Run("last button removed", func(t *testing.T) {
		kb := unmuteKeyboard(555)
		assert.Nil(t, removeButton(kb, cbUnmuteUser))
	})

	t.Run("nil keyboard", func(t *testing.T) {
		assert.Nil(t, removeButton(nil, cbMuteUser))
	})

	t.Run("unknown prefix keeps all", func(t *testing.T) {
		kb := spamKeyboard(100, 555, true, true, true)
		res := removeButton(kb, "bogus")
		require.NotNil(t, res)
		assert.Len(t, res.InlineKeyboard, 3)
	})
}
