package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stankin/antispam/app/storage/engine"
)

// Whitelist is a storage for users cleared by a moderator. Whitelisted
// authors bypass all spam checks.
type Whitelist struct {
	*engine.SQL
	engine.RWLocker
}

// WhitelistedUser is a single whitelist entry. AddedBy keeps the id of
// the moderator who cleared the user, Reason is a free-form note, both
// are optional.
type WhitelistedUser struct {
	UserID   int64          `db:"user_id"`
	UserName string         `db:"user_name"`
	AddedBy  sql.NullInt64  `db:"added_by"`
	Reason   sql.NullString `db:"reason"`
	AddedAt  time.Time      `db:"added_at"`
}

// whitelist queries
const (
	cmdCreateWhitelistTable engine.DBCmd = iota + 300
	cmdAddWhitelistUser
)

var whitelistQueries = engine.NewQueryMap().
	Add(cmdCreateWhitelistTable, engine.Query{
		Sqlite: `CREATE TABLE IF NOT EXISTS whitelist_user (
			user_id INTEGER PRIMARY KEY,
			user_name TEXT NOT NULL DEFAULT '',
			added_by INTEGER,
			reason TEXT,
			added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		Postgres: `CREATE TABLE IF NOT EXISTS whitelist_user (
			user_id BIGINT PRIMARY KEY,
			user_name TEXT NOT NULL DEFAULT '',
			added_by BIGINT,
			reason TEXT,
			added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}).
	AddSame(cmdAddWhitelistUser, `INSERT INTO whitelist_user (user_id, user_name, added_by, reason, added_at)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT (user_id) DO NOTHING`)

// NewWhitelist creates the whitelist_user table if needed
func NewWhitelist(ctx context.Context, db *engine.SQL) (*Whitelist, error) {
	if db == nil {
		return nil, fmt.Errorf("no db provided")
	}
	cfg := engine.TableConfig{
		Name:        "whitelist_user",
		CreateTable: cmdCreateWhitelistTable,
		QueriesMap:  whitelistQueries,
	}
	if err := engine.InitTable(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("failed to init whitelist_user table: %w", err)
	}
	return &Whitelist{SQL: db, RWLocker: db.MakeLock()}, nil
}

// Add puts a user on the whitelist, repeated adds are no-ops
func (w *Whitelist) Add(ctx context.Context, user WhitelistedUser) error {
	w.Lock()
	defer w.Unlock()

	query, err := whitelistQueries.Pick(w.Type(), cmdAddWhitelistUser)
	if err != nil {
		return fmt.Errorf("failed to get add query: %w", err)
	}
	addedAt := user.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now()
	}
	_, err = w.ExecContext(ctx, w.Adopt(query), user.UserID, user.UserName, user.AddedBy, user.Reason, addedAt)
	if err != nil {
		return fmt.Errorf("failed to whitelist user %d: %w", user.UserID, err)
	}
	log.Printf("[INFO] user %d (%q) whitelisted", user.UserID, user.UserName)
	return nil
}

// Contains reports whether the user is whitelisted
func (w *Whitelist) Contains(ctx context.Context, userID int64) (bool, error) {
	w.RLock()
	defer w.RUnlock()

	var count int
	query := w.Adopt("SELECT COUNT(*) FROM whitelist_user WHERE user_id = ?")
	if err := w.GetContext(ctx, &count, query, userID); err != nil {
		return false, fmt.Errorf("failed to check whitelist for %d: %w", userID, err)
	}
	return count > 0, nil
}

// Get returns the whitelist entry for a user, found is false for users
// not on the list
func (w *Whitelist) Get(ctx context.Context, userID int64) (user WhitelistedUser, found bool, err error) {
	w.RLock()
	defer w.RUnlock()

	query := w.Adopt("SELECT * FROM whitelist_user WHERE user_id = ?")
	if err := w.GetContext(ctx, &user, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WhitelistedUser{}, false, nil
		}
		return WhitelistedUser{}, false, fmt.Errorf("failed to get whitelist entry for %d: %w", userID, err)
	}
	return user, true, nil
}
