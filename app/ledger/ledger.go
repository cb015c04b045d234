// Package ledger tracks repeat offenders and decides mute durations.
// It owns the read-modify-write cycle over the muted_user table, the
// storage layer below it stays free of business rules.
package ledger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stankin/antispam/app/storage"
)

// PermanentMuteTimestamp is the far-future expiry marking a permanent
// mute, start of year 2100. Telegram treats restrictions longer than 366
// days as forever.
const PermanentMuteTimestamp = int64(4102455600)

// mute durations by violation count
const (
	firstMuteDuration  = 24 * time.Hour
	secondMuteDuration = 168 * time.Hour
)

// Store is the persistence needed by the ledger
type Store interface {
	Get(ctx context.Context, userID int64) (storage.Offender, bool, error)
	Save(ctx context.Context, off storage.Offender) error
	ClearMute(ctx context.Context, userID int64) error
}

// Ledger applies the graduated mute policy. All mutations for one author
// run under that author's lock, concurrent spam messages from the same
// account can't lose increments.
type Ledger struct {
	store Store

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates a ledger over the given store
func New(store Store) *Ledger {
	return &Ledger{store: store, locks: map[int64]*sync.Mutex{}}
}

// ExpiryFor returns the mute expiry for the given violation count
func ExpiryFor(count int, now time.Time) int64 {
	switch {
	case count <= 1:
		return now.Add(firstMuteDuration).Unix()
	case count == 2:
		return now.Add(secondMuteDuration).Unix()
	default:
		return PermanentMuteTimestamp
	}
}

// RecordViolation increments the author's violation count, called exactly
// once per detected spam message. When mute is true the expiry is set per
// the graduated policy, otherwise an existing expiry is left as is. The
// count itself always grows, it is never reset.
func (l *Ledger) RecordViolation(ctx context.Context, userID int64, userName string, mute bool) (storage.Offender, error) {
	unlock := l.lock(userID)
	defer unlock()

	off, found, err := l.store.Get(ctx, userID)
	if err != nil {
		return storage.Offender{}, fmt.Errorf("failed to get offender %d: %w", userID, err)
	}
	if !found {
		off = storage.Offender{UserID: userID, UserName: userName}
	}

	off.Violations++
	if userName != "" {
		off.UserName = userName
	}
	if mute {
		off.MuteExpiresAt = ExpiryFor(off.Violations, time.Now())
	}

	if err := l.store.Save(ctx, off); err != nil {
		return storage.Offender{}, fmt.Errorf("failed to save offender %d: %w", userID, err)
	}
	log.Printf("[INFO] violation %d recorded for user %d, mute expiry %d", off.Violations, userID, off.MuteExpiresAt)
	return off, nil
}

// Restrict sets the mute expiry from the current violation count without
// touching the count, used by the manual mute button. Re-clicking the
// button recomputes the same expiry, the operation is idempotent. Fails
// for authors with no recorded violations.
func (l *Ledger) Restrict(ctx context.Context, userID int64) (storage.Offender, error) {
	unlock := l.lock(userID)
	defer unlock()

	off, found, err := l.store.Get(ctx, userID)
	if err != nil {
		return storage.Offender{}, fmt.Errorf("failed to get offender %d: %w", userID, err)
	}
	if !found {
		return storage.Offender{}, fmt.Errorf("no violations recorded for user %d", userID)
	}

	off.MuteExpiresAt = ExpiryFor(off.Violations, time.Now())
	if err := l.store.Save(ctx, off); err != nil {
		return storage.Offender{}, fmt.Errorf("failed to save offender %d: %w", userID, err)
	}
	return off, nil
}

// Unmute clears the mute expiry but keeps the violation count, so the
// next violation still escalates. Unmuting a never-muted or unknown user
// is a no-op.
func (l *Ledger) Unmute(ctx context.Context, userID int64) error {
	unlock := l.lock(userID)
	defer unlock()

	if err := l.store.ClearMute(ctx, userID); err != nil {
		return fmt.Errorf("failed to unmute user %d: %w", userID, err)
	}
	log.Printf("[INFO] user %d unmuted, violation count kept", userID)
	return nil
}

// Get returns the current state for the author
func (l *Ledger) Get(ctx context.Context, userID int64) (storage.Offender, bool, error) {
	return l.store.Get(ctx, userID)
}

func (l *Ledger) lock(userID int64) func() {
	l.mu.Lock()
	lk, ok := l.locks[userID]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[userID] = lk
	}
	l.mu.Unlock()

	lk.Lock()
	return lk.Unlock
}
