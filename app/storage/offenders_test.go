package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffenders_GetMissing(t *testing.T) {
	ctx := context.Background()
	o, err := NewOffenders(ctx, newTestDB(t))
	require.NoError(t, err)

	_, found, err := o.Get(ctx, 123)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOffenders_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	o, err := NewOffenders(ctx, newTestDB(t))
	require.NoError(t, err)

	expiry := time.Now().Add(24 * time.Hour).Unix()
	require.NoError(t, o.Save(ctx, Offender{UserID: 1, UserName: "bad", Violations: 1, MuteExpiresAt: expiry}))

	got, found, err := o.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, got.Violations)
	assert.Equal(t, expiry, got.MuteExpiresAt)
	assert.True(t, got.Muted())

	// upsert replaces the row
	require.NoError(t, o.Save(ctx, Offender{UserID: 1, UserName: "bad", Violations: 2, MuteExpiresAt: expiry}))
	got, _, err = o.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Violations)
}

func TestOffenders_ClearMuteKeepsViolations(t *testing.T) {
	ctx := context.Background()
	o, err := NewOffenders(ctx, newTestDB(t))
	require.NoError(t, err)

	require.NoError(t, o.Save(ctx, Offender{UserID: 5, Violations: 3,
		MuteExpiresAt: time.Now().Add(time.Hour).Unix()}))
	require.NoError(t, o.ClearMute(ctx, 5))

	got, found, err := o.Get(ctx, 5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, got.Violations, "violation count survives unmute")
	assert.Zero(t, got.MuteExpiresAt)
	assert.False(t, got.Muted())

	// clearing an unknown user is not an error
	require.NoError(t, o.ClearMute(ctx, 999))
}

func TestOffenders_Muted(t *testing.T) {
	ctx := context.Background()
	o, err := NewOffenders(ctx, newTestDB(t))
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, o.Save(ctx, Offender{UserID: 1, Violations: 1, MuteExpiresAt: now.Add(time.Hour).Unix()}))
	require.NoError(t, o.Save(ctx, Offender{UserID: 2, Violations: 2, MuteExpiresAt: now.Add(48 * time.Hour).Unix()}))
	require.NoError(t, o.Save(ctx, Offender{UserID: 3, Violations: 1, MuteExpiresAt: now.Add(-time.Hour).Unix()})) // expired

	muted, err := o.Muted(ctx)
	require.NoError(t, err)
	require.Len(t, muted, 2)
	assert.Equal(t, int64(1), muted[0].UserID, "soonest expiry first")
	assert.Equal(t, int64(2), muted[1].UserID)
}
