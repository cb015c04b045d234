package storage

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/stankin/antispam/app/storage/engine"
)

// Settings provides access to runtime-mutable configuration stored as
// typed key/value rows. Reads are served from an in-memory cache which is
// replaced wholesale after every durable write, so the writer always
// observes its own update while concurrent readers may briefly see the
// previous snapshot.
type Settings struct {
	*engine.SQL
	engine.RWLocker

	mu    sync.RWMutex
	cache map[string]settingRow
}

type settingRow struct {
	Key         string `db:"key"`
	Value       string `db:"value"`
	ValueType   string `db:"value_type"`
	Description string `db:"description"`
}

// value types for setting rows
const (
	typeBool   = "bool"
	typeInt    = "int"
	typeFloat  = "float"
	typeString = "string"
)

// well-known setting keys
const (
	KeyClassifierThreshold = "classifier_threshold"
	KeySureThreshold       = "sure_threshold"
	KeyCheckReplyMarkup    = "check_reply_markup"
	KeyCheckCas            = "check_cas"
	KeyCheckLols           = "check_lols"
	KeyEnableLLM           = "enable_llm"
	KeyEnableDeleting      = "enable_deleting"
	KeyEnableAutomuting    = "enable_automuting"
	KeyCollectMessages     = "collect_messages"
	KeyPerPage             = "per_page"
)

// defaultSettings seeds the table on first run. Existing rows are never
// overwritten by seeding.
var defaultSettings = []settingRow{
	{KeyClassifierThreshold, "0.945", typeFloat, "classifier spam probability cutoff"},
	{KeySureThreshold, "0.98", typeFloat, "confidence above which the verdict is sure"},
	{KeyCheckReplyMarkup, "true", typeBool, "treat messages with inline keyboards as spam"},
	{KeyCheckCas, "true", typeBool, "check authors against CAS"},
	{KeyCheckLols, "true", typeBool, "check authors against LOLS"},
	{KeyEnableLLM, "false", typeBool, "enable the LLM spam check"},
	{KeyEnableDeleting, "true", typeBool, "delete messages detected as sure spam"},
	{KeyEnableAutomuting, "false", typeBool, "mute authors of sure spam automatically"},
	{KeyCollectMessages, "false", typeBool, "store all incoming messages for corpus collection"},
	{KeyPerPage, "10", typeInt, "page size for listings"},
}

// settings queries
const (
	cmdCreateSettingsTable engine.DBCmd = iota + 400
	cmdSeedSetting
	cmdSetSetting
)

var settingsQueries = engine.NewQueryMap().
	AddSame(cmdCreateSettingsTable, `CREATE TABLE IF NOT EXISTS setting (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		value_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`).
	AddSame(cmdSeedSetting, `INSERT INTO setting (key, value, value_type, description) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO NOTHING`).
	AddSame(cmdSetSetting, `INSERT INTO setting (key, value, value_type, description) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, value_type = excluded.value_type`)

// NewSettings creates the setting table, seeds missing defaults and loads
// the cache.
func NewSettings(ctx context.Context, db *engine.SQL) (*Settings, error) {
	if db == nil {
		return nil, fmt.Errorf("no db provided")
	}
	cfg := engine.TableConfig{
		Name:        "setting",
		CreateTable: cmdCreateSettingsTable,
		QueriesMap:  settingsQueries,
	}
	if err := engine.InitTable(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("failed to init setting table: %w", err)
	}

	res := &Settings{SQL: db, RWLocker: db.MakeLock()}

	seed, err := settingsQueries.Pick(db.Type(), cmdSeedSetting)
	if err != nil {
		return nil, fmt.Errorf("failed to get seed query: %w", err)
	}
	for _, def := range defaultSettings {
		if _, err := db.ExecContext(ctx, db.Adopt(seed), def.Key, def.Value, def.ValueType, def.Description); err != nil {
			return nil, fmt.Errorf("failed to seed setting %s: %w", def.Key, err)
		}
	}

	if err := res.reload(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// Set writes a typed value and reloads the whole cache. The value type is
// derived from the Go type of the argument.
func (s *Settings) Set(ctx context.Context, key string, value any) error {
	if err := s.validate(key, value); err != nil {
		return err
	}

	var strVal, valType string
	switch v := value.(type) {
	case bool:
		strVal, valType = strconv.FormatBool(v), typeBool
	case int:
		strVal, valType = strconv.Itoa(v), typeInt
	case float64:
		strVal, valType = strconv.FormatFloat(v, 'g', -1, 64), typeFloat
	case string:
		strVal, valType = v, typeString
	default:
		return fmt.Errorf("unsupported setting type %T for key %s", value, key)
	}

	s.Lock()
	query, err := settingsQueries.Pick(s.Type(), cmdSetSetting)
	if err != nil {
		s.Unlock()
		return fmt.Errorf("failed to get set query: %w", err)
	}
	_, err = s.ExecContext(ctx, s.Adopt(query), key, strVal, valType, "")
	s.Unlock()
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	log.Printf("[INFO] setting %s updated to %q", key, strVal)
	return s.reload(ctx)
}

// validate rejects writes breaking cross-key invariants. The sure
// threshold can never drop below the classifier threshold, such a pair
// would mark barely-detected messages as sure.
func (s *Settings) validate(key string, value any) error {
	v, ok := value.(float64)
	if !ok {
		return nil
	}
	switch key {
	case KeyClassifierThreshold:
		if sure := s.Float(KeySureThreshold, 0.98); v > sure {
			return fmt.Errorf("classifier_threshold %v can't exceed sure_threshold %v", v, sure)
		}
	case KeySureThreshold:
		if threshold := s.Float(KeyClassifierThreshold, 0.945); v < threshold {
			return fmt.Errorf("sure_threshold %v can't be below classifier_threshold %v", v, threshold)
		}
	}
	return nil
}

// Bool returns a boolean setting, or the default when missing or malformed
func (s *Settings) Bool(key string, def bool) bool {
	row, ok := s.row(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(row.Value)
	if err != nil {
		log.Printf("[WARN] setting %s has invalid bool value %q", key, row.Value)
		return def
	}
	return v
}

// Int returns an integer setting, or the default when missing or malformed
func (s *Settings) Int(key string, def int) int {
	row, ok := s.row(key)
	if !ok {
		return def
	}
	v, err := strconv.Atoi(row.Value)
	if err != nil {
		log.Printf("[WARN] setting %s has invalid int value %q", key, row.Value)
		return def
	}
	return v
}

// Float returns a float setting, or the default when missing or malformed
func (s *Settings) Float(key string, def float64) float64 {
	row, ok := s.row(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(row.Value, 64)
	if err != nil {
		log.Printf("[WARN] setting %s has invalid float value %q", key, row.Value)
		return def
	}
	return v
}

// String returns a string setting, or the default when missing
func (s *Settings) String(key, def string) string {
	row, ok := s.row(key)
	if !ok {
		return def
	}
	return row.Value
}

// All returns all settings as a key to value map, for display
func (s *Settings) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make(map[string]string, len(s.cache))
	for k, row := range s.cache {
		res[k] = row.Value
	}
	return res
}

func (s *Settings) row(key string) (settingRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.cache[key]
	return row, ok
}

// reload replaces the cache with a fresh snapshot from the database
func (s *Settings) reload(ctx context.Context) error {
	s.RLock()
	var rows []settingRow
	err := s.SelectContext(ctx, &rows, "SELECT key, value, value_type, description FROM setting")
	s.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	fresh := make(map[string]settingRow, len(rows))
	for _, row := range rows {
		fresh[row.Key] = row
	}

	s.mu.Lock()
	s.cache = fresh
	s.mu.Unlock()
	return nil
}
