package storage

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/stankin/antispam/app/storage/engine"
)

// SpamRecords keeps the append-only audit trail of messages the pipeline
// flagged as spam or partial spam. Records are never deleted, a later
// moderator override (not-spam) whitelists the author but keeps the record.
type SpamRecords struct {
	*engine.SQL
	engine.RWLocker
}

// SpamRecord is a single detection entry. The four signal columns keep
// the tri-state outcome of each check, a disabled or failed check is
// distinguishable from a checked-and-clean one.
type SpamRecord struct {
	ID          int64     `db:"id"`
	MessageID   int       `db:"message_id"`
	UserID      int64     `db:"user_id"`
	UserName    string    `db:"user_name"`
	Text        string    `db:"message_text"`
	Confidence  float64   `db:"confidence"`   // spam-class probability of the classifier
	Verdict     string    `db:"verdict"`      // spam or partial
	ReplyMarkup string    `db:"reply_markup"` // yes, no or disabled
	Cas         string    `db:"cas"`          // banned, clean or unknown
	Lols        string    `db:"lols"`         // banned, clean or unknown
	LLM         string    `db:"llm"`          // banned, clean or unknown
	Details     string    `db:"details"`      // human-readable list of fired signals
	CreatedAt   time.Time `db:"created_at"`
}

// spam records queries
const (
	cmdCreateSpamRecordsTable engine.DBCmd = iota + 100
	cmdCreateSpamRecordsIndexes
	cmdAddSpamRecord
)

var spamRecordsQueries = engine.NewQueryMap().
	Add(cmdCreateSpamRecordsTable, engine.Query{
		Sqlite: `CREATE TABLE IF NOT EXISTS spam_message (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id INTEGER NOT NULL DEFAULT 0,
			user_id INTEGER NOT NULL,
			user_name TEXT NOT NULL DEFAULT '',
			message_text TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			verdict TEXT NOT NULL DEFAULT 'spam',
			reply_markup TEXT NOT NULL DEFAULT 'disabled',
			cas TEXT NOT NULL DEFAULT 'unknown',
			lols TEXT NOT NULL DEFAULT 'unknown',
			llm TEXT NOT NULL DEFAULT 'unknown',
			details TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		Postgres: `CREATE TABLE IF NOT EXISTS spam_message (
			id SERIAL PRIMARY KEY,
			message_id INTEGER NOT NULL DEFAULT 0,
			user_id BIGINT NOT NULL,
			user_name TEXT NOT NULL DEFAULT '',
			message_text TEXT NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			verdict TEXT NOT NULL DEFAULT 'spam',
			reply_markup TEXT NOT NULL DEFAULT 'disabled',
			cas TEXT NOT NULL DEFAULT 'unknown',
			lols TEXT NOT NULL DEFAULT 'unknown',
			llm TEXT NOT NULL DEFAULT 'unknown',
			details TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}).
	AddSame(cmdCreateSpamRecordsIndexes, `
		CREATE INDEX IF NOT EXISTS idx_spam_message_user_id ON spam_message(user_id);
		CREATE INDEX IF NOT EXISTS idx_spam_message_created_at ON spam_message(created_at)
	`).
	AddSame(cmdAddSpamRecord, `INSERT INTO spam_message (message_id, user_id, user_name, message_text, confidence, verdict,
		reply_markup, cas, lols, llm, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

// NewSpamRecords creates the spam_message table if needed
func NewSpamRecords(ctx context.Context, db *engine.SQL) (*SpamRecords, error) {
	if db == nil {
		return nil, fmt.Errorf("no db provided")
	}
	cfg := engine.TableConfig{
		Name:          "spam_message",
		CreateTable:   cmdCreateSpamRecordsTable,
		CreateIndexes: cmdCreateSpamRecordsIndexes,
		QueriesMap:    spamRecordsQueries,
	}
	if err := engine.InitTable(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("failed to init spam_message table: %w", err)
	}
	return &SpamRecords{SQL: db, RWLocker: db.MakeLock()}, nil
}

// Add appends a detection record. The classifier confidence is rounded to
// seven decimal places to keep stored values stable across backends.
func (s *SpamRecords) Add(ctx context.Context, rec SpamRecord) error {
	s.Lock()
	defer s.Unlock()

	query, err := spamRecordsQueries.Pick(s.Type(), cmdAddSpamRecord)
	if err != nil {
		return fmt.Errorf("failed to get add query: %w", err)
	}

	confidence := math.Round(rec.Confidence*1e7) / 1e7
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.ExecContext(ctx, s.Adopt(query), rec.MessageID, rec.UserID, rec.UserName,
		rec.Text, confidence, rec.Verdict, rec.ReplyMarkup, rec.Cas, rec.Lols, rec.LLM, rec.Details, createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert spam record: %w", err)
	}
	log.Printf("[INFO] spam record added for user_id:%d, name:%q, verdict:%s", rec.UserID, rec.UserName, rec.Verdict)
	return nil
}

// Recent returns up to limit latest records, newest first
func (s *SpamRecords) Recent(ctx context.Context, limit int) ([]SpamRecord, error) {
	s.RLock()
	defer s.RUnlock()

	var res []SpamRecord
	query := s.Adopt("SELECT * FROM spam_message ORDER BY created_at DESC, id DESC LIMIT ?")
	if err := s.SelectContext(ctx, &res, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get spam records: %w", err)
	}
	return res, nil
}

// CountForUser returns the number of records for a given author
func (s *SpamRecords) CountForUser(ctx context.Context, userID int64) (int, error) {
	s.RLock()
	defer s.RUnlock()

	var count int
	query := s.Adopt("SELECT COUNT(*) FROM spam_message WHERE user_id = ?")
	if err := s.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count spam records: %w", err)
	}
	return count, nil
}
