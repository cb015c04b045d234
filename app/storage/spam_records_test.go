package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpamRecords_AddAndRecent(t *testing.T) {
	ctx := context.Background()
	s, err := NewSpamRecords(ctx, newTestDB(t))
	require.NoError(t, err)

	rec := SpamRecord{
		MessageID:   42,
		UserID:      100,
		UserName:    "spammer",
		Text:        "buy crypto now",
		Confidence:  0.98765432199, // rounded to 7 decimals on write
		Verdict:     "spam",
		ReplyMarkup: "no",
		Cas:         "banned",
		Lols:        "clean",
		LLM:         "unknown",
		Details:     "classifier, cas",
	}
	require.NoError(t, s.Add(ctx, rec))
	require.NoError(t, s.Add(ctx, SpamRecord{UserID: 200, UserName: "other", Text: "partial hit", Verdict: "partial",
		CreatedAt: time.Now().Add(time.Second)}))

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "partial hit", recent[0].Text, "newest first")
	assert.Equal(t, "buy crypto now", recent[1].Text)
	assert.InDelta(t, 0.9876543, recent[1].Confidence, 1e-9)
	assert.Equal(t, 42, recent[1].MessageID)
	assert.False(t, recent[1].CreatedAt.IsZero())
}

func TestSpamRecords_SignalFlagsPreserved(t *testing.T) {
	ctx := context.Background()
	s, err := NewSpamRecords(ctx, newTestDB(t))
	require.NoError(t, err)

	// a checked-and-clean signal must stay distinguishable from a
	// disabled or failed one after the round trip
	require.NoError(t, s.Add(ctx, SpamRecord{UserID: 5, Verdict: "spam",
		ReplyMarkup: "disabled", Cas: "clean", Lols: "banned", LLM: "unknown"}))

	recent, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "disabled", recent[0].ReplyMarkup)
	assert.Equal(t, "clean", recent[0].Cas)
	assert.Equal(t, "banned", recent[0].Lols)
	assert.Equal(t, "unknown", recent[0].LLM)
}

func TestSpamRecords_CountForUser(t *testing.T) {
	ctx := context.Background()
	s, err := NewSpamRecords(ctx, newTestDB(t))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Add(ctx, SpamRecord{UserID: 7, Verdict: "spam"}))
	}
	require.NoError(t, s.Add(ctx, SpamRecord{UserID: 8, Verdict: "spam"}))

	count, err := s.CountForUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = s.CountForUser(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSpamRecords_RecentLimit(t *testing.T) {
	ctx := context.Background()
	s, err := NewSpamRecords(ctx, newTestDB(t))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Add(ctx, SpamRecord{UserID: int64(i), Verdict: "spam"}))
	}
	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
