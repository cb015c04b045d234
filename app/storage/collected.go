package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/stankin/antispam/app/storage/engine"
)

// Collected stores raw incoming messages for corpus collection, used to
// retrain the classifier offline. Capture is gated by the collect_messages
// setting in the caller.
type Collected struct {
	*engine.SQL
	engine.RWLocker
}

// CollectedMessage is a single captured message
type CollectedMessage struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	UserName  string    `db:"user_name"`
	Text      string    `db:"message_text"`
	CreatedAt time.Time `db:"created_at"`
}

// collected queries
const (
	cmdCreateCollectedTable engine.DBCmd = iota + 500
	cmdAddCollectedMessage
)

var collectedQueries = engine.NewQueryMap().
	Add(cmdCreateCollectedTable, engine.Query{
		Sqlite: `CREATE TABLE IF NOT EXISTS collected_message (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			user_name TEXT NOT NULL DEFAULT '',
			message_text TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		Postgres: `CREATE TABLE IF NOT EXISTS collected_message (
			id SERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			user_name TEXT NOT NULL DEFAULT '',
			message_text TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}).
	AddSame(cmdAddCollectedMessage, `INSERT INTO collected_message (user_id, user_name, message_text, created_at)
		VALUES (?, ?, ?, ?)`)

// NewCollected creates the collected_message table if needed
func NewCollected(ctx context.Context, db *engine.SQL) (*Collected, error) {
	if db == nil {
		return nil, fmt.Errorf("no db provided")
	}
	cfg := engine.TableConfig{
		Name:        "collected_message",
		CreateTable: cmdCreateCollectedTable,
		QueriesMap:  collectedQueries,
	}
	if err := engine.InitTable(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("failed to init collected_message table: %w", err)
	}
	return &Collected{SQL: db, RWLocker: db.MakeLock()}, nil
}

// Add captures a message
func (c *Collected) Add(ctx context.Context, userID int64, userName, text string) error {
	c.Lock()
	defer c.Unlock()

	query, err := collectedQueries.Pick(c.Type(), cmdAddCollectedMessage)
	if err != nil {
		return fmt.Errorf("failed to get add query: %w", err)
	}
	if _, err = c.ExecContext(ctx, c.Adopt(query), userID, userName, text, time.Now()); err != nil {
		return fmt.Errorf("failed to add collected message: %w", err)
	}
	return nil
}

// Count returns the number of captured messages
func (c *Collected) Count(ctx context.Context) (int, error) {
	c.RLock()
	defer c.RUnlock()

	var count int
	if err := c.GetContext(ctx, &count, "SELECT COUNT(*) FROM collected_message"); err != nil {
		return 0, fmt.Errorf("failed to count collected messages: %w", err)
	}
	return count, nil
}
