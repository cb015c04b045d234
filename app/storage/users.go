package storage

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/scrypt"

	"github.com/stankin/antispam/app/storage/engine"
)

// Users keeps admin panel login credentials provisioned through the
// /password bot command. Passwords are stored as salted scrypt hashes.
type Users struct {
	*engine.SQL
	engine.RWLocker
}

// UserRecord is a single panel account
type UserRecord struct {
	UserID       int64     `db:"user_id"`
	UserName     string    `db:"user_name"`
	PasswordHash string    `db:"password_hash"` // hex salt and hash, colon-separated
	UpdatedAt    time.Time `db:"updated_at"`
}

// users queries
const (
	cmdCreateUsersTable engine.DBCmd = iota + 600
	cmdUpsertUser
)

var usersQueries = engine.NewQueryMap().
	Add(cmdCreateUsersTable, engine.Query{
		Sqlite: `CREATE TABLE IF NOT EXISTS panel_user (
			user_id INTEGER PRIMARY KEY,
			user_name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		Postgres: `CREATE TABLE IF NOT EXISTS panel_user (
			user_id BIGINT PRIMARY KEY,
			user_name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}).
	AddSame(cmdUpsertUser, `INSERT INTO panel_user (user_id, user_name, password_hash, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			user_name = excluded.user_name,
			password_hash = excluded.password_hash,
			updated_at = excluded.updated_at`)

// NewUsers creates the panel_user table if needed
func NewUsers(ctx context.Context, db *engine.SQL) (*Users, error) {
	if db == nil {
		return nil, fmt.Errorf("no db provided")
	}
	cfg := engine.TableConfig{
		Name:        "panel_user",
		CreateTable: cmdCreateUsersTable,
		QueriesMap:  usersQueries,
	}
	if err := engine.InitTable(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("failed to init panel_user table: %w", err)
	}
	return &Users{SQL: db, RWLocker: db.MakeLock()}, nil
}

// SetPassword hashes the password and upserts the account
func (u *Users) SetPassword(ctx context.Context, userID int64, userName, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	u.Lock()
	defer u.Unlock()

	query, err := usersQueries.Pick(u.Type(), cmdUpsertUser)
	if err != nil {
		return fmt.Errorf("failed to get upsert query: %w", err)
	}
	if _, err = u.ExecContext(ctx, u.Adopt(query), userID, userName, hash, time.Now()); err != nil {
		return fmt.Errorf("failed to save credentials for %d: %w", userID, err)
	}
	return nil
}

// CheckPassword verifies the password for the account, false for unknown users
func (u *Users) CheckPassword(ctx context.Context, userID int64, password string) (bool, error) {
	u.RLock()
	defer u.RUnlock()

	var rec UserRecord
	query := u.Adopt("SELECT user_id, user_name, password_hash, updated_at FROM panel_user WHERE user_id = ?")
	err := u.GetContext(ctx, &rec, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	return verifyPassword(rec.PasswordHash, password), nil
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash, err := scrypt.Key([]byte(password), salt, 1<<15, 8, 1, 32)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(hash), nil
}

func verifyPassword(stored, password string) bool {
	saltHex, hashHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}
	got, err := scrypt.Key([]byte(password), salt, 1<<15, 8, 1, 32)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}
