package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stankin/antispam/app/storage"
	"github.com/stankin/antispam/app/storage/engine"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := engine.NewSqlite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := storage.NewOffenders(context.Background(), db)
	require.NoError(t, err)
	return New(store)
}

func TestExpiryFor(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(24*time.Hour).Unix(), ExpiryFor(1, now))
	assert.Equal(t, now.Add(168*time.Hour).Unix(), ExpiryFor(2, now))
	assert.Equal(t, PermanentMuteTimestamp, ExpiryFor(3, now))
	assert.Equal(t, PermanentMuteTimestamp, ExpiryFor(10, now))
	assert.Equal(t, now.Add(24*time.Hour).Unix(), ExpiryFor(0, now), "count zero treated as first")
}

func TestLedger_RecordViolation_Escalation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	// first violation, 24h mute
	off, err := l.RecordViolation(ctx, 1, "spammer", true)
	require.NoError(t, err)
	assert.Equal(t, 1, off.Violations)
	assert.InDelta(t, time.Now().Add(24*time.Hour).Unix(), off.MuteExpiresAt, 5)

	// second violation, a week
	off, err = l.RecordViolation(ctx, 1, "spammer", true)
	require.NoError(t, err)
	assert.Equal(t, 2, off.Violations)
	assert.InDelta(t, time.Now().Add(168*time.Hour).Unix(), off.MuteExpiresAt, 5)

	// third and beyond, permanent
	off, err = l.RecordViolation(ctx, 1, "spammer", true)
	require.NoError(t, err)
	assert.Equal(t, 3, off.Violations)
	assert.Equal(t, PermanentMuteTimestamp, off.MuteExpiresAt)

	off, err = l.RecordViolation(ctx, 1, "spammer", true)
	require.NoError(t, err)
	assert.Equal(t, 4, off.Violations)
	assert.Equal(t, PermanentMuteTimestamp, off.MuteExpiresAt)
}

func TestLedger_RecordViolation_NoMute(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	// counting without muting leaves the expiry alone
	off, err := l.RecordViolation(ctx, 1, "u", false)
	require.NoError(t, err)
	assert.Equal(t, 1, off.Violations)
	assert.Zero(t, off.MuteExpiresAt)

	// an earlier mute survives a count-only violation
	_, err = l.Restrict(ctx, 1)
	require.NoError(t, err)
	off, err = l.RecordViolation(ctx, 1, "u", false)
	require.NoError(t, err)
	assert.Equal(t, 2, off.Violations)
	assert.NotZero(t, off.MuteExpiresAt)
}

func TestLedger_Restrict(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	// no row yet, nothing to restrict
	_, err := l.Restrict(ctx, 42)
	assert.Error(t, err)

	_, err = l.RecordViolation(ctx, 42, "u", false)
	require.NoError(t, err)

	off, err := l.Restrict(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, off.Violations, "restrict does not change the count")
	assert.InDelta(t, time.Now().Add(24*time.Hour).Unix(), off.MuteExpiresAt, 5)

	// re-click recomputes the same tier, still one violation
	off2, err := l.Restrict(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, off2.Violations)
	assert.InDelta(t, float64(off.MuteExpiresAt), float64(off2.MuteExpiresAt), 5)
}

func TestLedger_Unmute(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.RecordViolation(ctx, 7, "u", true)
	require.NoError(t, err)
	_, err = l.RecordViolation(ctx, 7, "u", true)
	require.NoError(t, err)

	require.NoError(t, l.Unmute(ctx, 7))
	off, found, err := l.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, off.Violations, "count survives unmute")
	assert.Zero(t, off.MuteExpiresAt)

	// next violation escalates from the kept count
	off, err = l.RecordViolation(ctx, 7, "u", true)
	require.NoError(t, err)
	assert.Equal(t, 3, off.Violations)
	assert.Equal(t, PermanentMuteTimestamp, off.MuteExpiresAt)

	// unknown user is a no-op
	assert.NoError(t, l.Unmute(ctx, 999))
}

func TestLedger_ConcurrentViolations(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := l.RecordViolation(ctx, 5, "flooder", false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	off, found, err := l.Get(ctx, 5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, n, off.Violations, "no lost increments")
}
