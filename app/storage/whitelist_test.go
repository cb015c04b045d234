package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhitelist_AddAndContains(t *testing.T) {
	ctx := context.Background()
	w, err := NewWhitelist(ctx, newTestDB(t))
	require.NoError(t, err)

	found, err := w.Contains(ctx, 42)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, w.Add(ctx, WhitelistedUser{UserID: 42, UserName: "gooduser"}))
	found, err = w.Contains(ctx, 42)
	require.NoError(t, err)
	assert.True(t, found)

	// repeated add is a no-op
	require.NoError(t, w.Add(ctx, WhitelistedUser{UserID: 42, UserName: "gooduser"}))
	found, err = w.Contains(ctx, 42)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestWhitelist_ModeratorAndReasonStored(t *testing.T) {
	ctx := context.Background()
	w, err := NewWhitelist(ctx, newTestDB(t))
	require.NoError(t, err)

	require.NoError(t, w.Add(ctx, WhitelistedUser{
		UserID:   42,
		UserName: "gooduser",
		AddedBy:  sql.NullInt64{Int64: 1000, Valid: true},
		Reason:   sql.NullString{String: "marked not spam", Valid: true},
	}))

	entry, found, err := w.Get(ctx, 42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1000), entry.AddedBy.Int64)
	assert.True(t, entry.AddedBy.Valid)
	assert.Equal(t, "marked not spam", entry.Reason.String)
	assert.False(t, entry.AddedAt.IsZero())

	// entries without attribution keep both fields null
	require.NoError(t, w.Add(ctx, WhitelistedUser{UserID: 43, UserName: "other"}))
	entry, found, err = w.Get(ctx, 43)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, entry.AddedBy.Valid)
	assert.False(t, entry.Reason.Valid)

	_, found, err = w.Get(ctx, 99)
	require.NoError(t, err)
	assert.False(t, found)
}
