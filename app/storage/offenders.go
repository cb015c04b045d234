package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stankin/antispam/app/storage/engine"
)

// Offenders keeps the per-author violation state: how many spam messages
// the author produced and until when they are muted. Rows are created on
// the first violation and never deleted; the violation count only grows.
type Offenders struct {
	*engine.SQL
	engine.RWLocker
}

// Offender is a single author's violation row. MuteExpiresAt is a unix
// timestamp in seconds, zero means not muted.
type Offender struct {
	UserID        int64     `db:"user_id"`
	UserName      string    `db:"user_name"`
	Violations    int       `db:"violations"`
	MuteExpiresAt int64     `db:"mute_expires_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Muted reports whether the offender is muted as of now
func (o Offender) Muted() bool {
	return o.MuteExpiresAt > time.Now().Unix()
}

// offenders queries
const (
	cmdCreateOffendersTable engine.DBCmd = iota + 200
	cmdCreateOffendersIndexes
	cmdUpsertOffender
)

var offendersQueries = engine.NewQueryMap().
	Add(cmdCreateOffendersTable, engine.Query{
		Sqlite: `CREATE TABLE IF NOT EXISTS muted_user (
			user_id INTEGER PRIMARY KEY,
			user_name TEXT NOT NULL DEFAULT '',
			violations INTEGER NOT NULL DEFAULT 0,
			mute_expires_at INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		Postgres: `CREATE TABLE IF NOT EXISTS muted_user (
			user_id BIGINT PRIMARY KEY,
			user_name TEXT NOT NULL DEFAULT '',
			violations INTEGER NOT NULL DEFAULT 0,
			mute_expires_at BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}).
	AddSame(cmdCreateOffendersIndexes, `
		CREATE INDEX IF NOT EXISTS idx_muted_user_expires ON muted_user(mute_expires_at)
	`).
	AddSame(cmdUpsertOffender, `INSERT INTO muted_user (user_id, user_name, violations, mute_expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			user_name = excluded.user_name,
			violations = excluded.violations,
			mute_expires_at = excluded.mute_expires_at,
			updated_at = excluded.updated_at`)

// NewOffenders creates the muted_user table if needed
func NewOffenders(ctx context.Context, db *engine.SQL) (*Offenders, error) {
	if db == nil {
		return nil, fmt.Errorf("no db provided")
	}
	cfg := engine.TableConfig{
		Name:          "muted_user",
		CreateTable:   cmdCreateOffendersTable,
		CreateIndexes: cmdCreateOffendersIndexes,
		QueriesMap:    offendersQueries,
	}
	if err := engine.InitTable(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("failed to init muted_user table: %w", err)
	}
	return &Offenders{SQL: db, RWLocker: db.MakeLock()}, nil
}

// Get returns the offender row and whether it exists
func (o *Offenders) Get(ctx context.Context, userID int64) (Offender, bool, error) {
	o.RLock()
	defer o.RUnlock()

	var res Offender
	query := o.Adopt("SELECT user_id, user_name, violations, mute_expires_at, updated_at FROM muted_user WHERE user_id = ?")
	err := o.GetContext(ctx, &res, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Offender{}, false, nil
	}
	if err != nil {
		return Offender{}, false, fmt.Errorf("failed to get offender %d: %w", userID, err)
	}
	return res, true, nil
}

// Save upserts the offender row as-is
func (o *Offenders) Save(ctx context.Context, off Offender) error {
	o.Lock()
	defer o.Unlock()

	query, err := offendersQueries.Pick(o.Type(), cmdUpsertOffender)
	if err != nil {
		return fmt.Errorf("failed to get upsert query: %w", err)
	}
	if _, err = o.ExecContext(ctx, o.Adopt(query), off.UserID, off.UserName, off.Violations,
		off.MuteExpiresAt, time.Now()); err != nil {
		return fmt.Errorf("failed to save offender %d: %w", off.UserID, err)
	}
	return nil
}

// ClearMute drops the mute expiry but keeps the violation count. Missing
// rows are not an error, clearing a never-muted user is a no-op.
func (o *Offenders) ClearMute(ctx context.Context, userID int64) error {
	o.Lock()
	defer o.Unlock()

	query := o.Adopt("UPDATE muted_user SET mute_expires_at = 0, updated_at = ? WHERE user_id = ?")
	if _, err := o.ExecContext(ctx, query, time.Now(), userID); err != nil {
		return fmt.Errorf("failed to clear mute for %d: %w", userID, err)
	}
	return nil
}

// Muted returns all currently muted offenders, soonest expiry first
func (o *Offenders) Muted(ctx context.Context) ([]Offender, error) {
	o.RLock()
	defer o.RUnlock()

	var res []Offender
	query := o.Adopt("SELECT user_id, user_name, violations, mute_expires_at, updated_at FROM muted_user WHERE mute_expires_at > ? ORDER BY mute_expires_at")
	if err := o.SelectContext(ctx, &res, query, time.Now().Unix()); err != nil {
		return nil, fmt.Errorf("failed to get muted users: %w", err)
	}
	return res, nil
}
