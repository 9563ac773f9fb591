package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
	"go.uber.org/zap"

	"github.com/asgardtech/pathsec/pkg/pathsec"
)

// MaxInputLength bounds the stored copy of a rejected input
const MaxInputLength = 512

// ErrInvalidTableName is returned for table names that are not plain
// SQL identifiers
var ErrInvalidTableName = errors.New("invalid audit table name")

// Entry is one rejected input
type Entry struct {
	ID        string         `json:"id"`
	Operation string         `json:"operation"`
	Input     string         `json:"input"`
	Reason    pathsec.Reason `json:"reason"`
	RequestID string         `json:"request_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter narrows List results
type Filter struct {
	Reason pathsec.Reason
	Limit  int
}

// Recorder records rejected inputs
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Nop discards every entry
type Nop struct{}

// Record implements Recorder
func (Nop) Record(context.Context, Entry) error { return nil }

// Config holds audit store configuration
type Config struct {
	// DB is the database connection
	DB *sql.DB

	// TableName is the name of the audit table
	TableName string

	// Retention is how long entries are kept (0 = forever)
	Retention time.Duration

	// CleanupInterval is how often expired entries are pruned (0 = no auto cleanup)
	CleanupInterval time.Duration

	// Logger receives cleanup errors
	Logger *zap.Logger
}

// DefaultConfig returns default audit store configuration
func DefaultConfig(db *sql.DB) *Config {
	return &Config{
		DB:              db,
		TableName:       "pathsec_audit",
		Retention:       30 * 24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

// Store is a database-backed audit trail
type Store struct {
	db        *sql.DB
	tableName string
	retention time.Duration
	logger    *zap.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// Open opens a database for the sqlite3 or pgx driver
func Open(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "sqlite3", "pgx":
	default:
		return nil, fmt.Errorf("unsupported audit driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if driver == "sqlite3" {
		// sqlite allows a single writer, and each :memory: connection is a separate database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewStore creates the audit table if needed and returns a store
func NewStore(config *Config) (*Store, error) {
	if !validIdentifier(config.TableName) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, config.TableName)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store := &Store{
		db:        config.DB,
		tableName: config.TableName,
		retention: config.Retention,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}

	if err := store.createTable(); err != nil {
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}

	if config.CleanupInterval > 0 && config.Retention > 0 {
		store.wg.Add(1)
		go store.cleanup(config.CleanupInterval)
	}

	return store, nil
}

func (s *Store) createTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			operation VARCHAR(64) NOT NULL,
			input TEXT NOT NULL,
			reason VARCHAR(64) NOT NULL,
			request_id VARCHAR(64),
			created_at TIMESTAMP NOT NULL
		)
	`, s.tableName)

	if _, err := s.db.Exec(query); err != nil {
		return err
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at)
	`, s.tableName, s.tableName)

	_, err := s.db.Exec(indexQuery)
	return err
}

// Record inserts an entry. ID and CreatedAt are filled in when empty. The
// input is truncated to MaxInputLength bytes, then NUL and invalid UTF-8
// bytes are escaped as \xNN.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Input = storable(truncate(entry.Input, MaxInputLength))

	query := fmt.Sprintf(`
		INSERT INTO %s (id, operation, input, reason, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.tableName)

	var requestID interface{}
	if entry.RequestID != "" {
		requestID = entry.RequestID
	}

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Operation,
		entry.Input,
		string(entry.Reason),
		requestID,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("database insert error: %w", err)
	}
	return nil
}

// List returns the most recent entries first
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		query string
		args  []interface{}
	)
	if filter.Reason != "" {
		query = fmt.Sprintf(`
			SELECT id, operation, input, reason, request_id, created_at
			FROM %s
			WHERE reason = $1
			ORDER BY created_at DESC
			LIMIT $2
		`, s.tableName)
		args = []interface{}{string(filter.Reason), limit}
	} else {
		query = fmt.Sprintf(`
			SELECT id, operation, input, reason, request_id, created_at
			FROM %s
			ORDER BY created_at DESC
			LIMIT $1
		`, s.tableName)
		args = []interface{}{limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			entry     Entry
			reason    string
			requestID sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.Operation, &entry.Input, &reason, &requestID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Reason = pathsec.Reason(reason)
		if requestID.Valid {
			entry.RequestID = requestID.String
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Prune deletes entries created before the cutoff and returns how many were
// removed
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE created_at < $1`, s.tableName)

	result, err := s.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("database delete error: %w", err)
	}
	return result.RowsAffected()
}

// Close stops the cleanup goroutine. The database is managed by the caller.
func (s *Store) Close() error {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

func (s *Store) cleanup(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			n, err := s.Prune(context.Background(), time.Now().UTC().Add(-s.retention))
			if err != nil {
				s.logger.Warn("audit cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Debug("pruned audit entries", zap.Int64("count", n))
			}
		}
	}
}

func validIdentifier(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// storable escapes the bytes PostgreSQL TEXT rejects: NUL and invalid UTF-8
func storable(s string) string {
	if utf8.ValidString(s) && strings.IndexByte(s, 0) < 0 {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == 0 || (r == utf8.RuneError && size == 1) {
			fmt.Fprintf(&b, `\x%02x`, s[i])
		} else {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
