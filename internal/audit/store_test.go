package audit

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asgardtech/pathsec/pkg/pathsec"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	config := DefaultConfig(setupTestDB(t))
	config.CleanupInterval = 0

	store, err := NewStore(config)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDefaultConfig(t *testing.T) {
	db := setupTestDB(t)
	config := DefaultConfig(db)

	assert.Same(t, db, config.DB)
	assert.Equal(t, "pathsec_audit", config.TableName)
	assert.Equal(t, 30*24*time.Hour, config.Retention)
	assert.Equal(t, time.Hour, config.CleanupInterval)
}

func TestNewStore_CreatesTable(t *testing.T) {
	db := setupTestDB(t)
	config := DefaultConfig(db)
	config.CleanupInterval = 0

	store, err := NewStore(config)
	require.NoError(t, err)
	defer store.Close()

	var tableName string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='pathsec_audit'").Scan(&tableName)
	require.NoError(t, err)
	assert.Equal(t, "pathsec_audit", tableName)

	// Creating a second store on the same table is fine
	again, err := NewStore(config)
	require.NoError(t, err)
	again.Close()
}

func TestNewStore_InvalidTableName(t *testing.T) {
	for _, name := range []string{"", "audit; DROP TABLE x", "1audit", "audit-log", strings.Repeat("a", 64)} {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig(setupTestDB(t))
			config.TableName = name
			_, err := NewStore(config)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTableName))
		})
	}
}

func TestStore_RecordAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, store.Record(ctx, Entry{
		Operation: "validate-path",
		Input:     "../../etc/passwd",
		Reason:    pathsec.ReasonDotDot,
		RequestID: "req-1",
		CreatedAt: base,
	}))
	require.NoError(t, store.Record(ctx, Entry{
		Operation: "detect-traversal",
		Input:     "%2e%2e/secret",
		Reason:    pathsec.ReasonEncodedDotDot,
		CreatedAt: base.Add(time.Minute),
	}))

	entries, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "detect-traversal", entries[0].Operation)
	assert.Equal(t, pathsec.ReasonEncodedDotDot, entries[0].Reason)
	assert.Empty(t, entries[0].RequestID)
	assert.True(t, entries[0].CreatedAt.Equal(base.Add(time.Minute)))

	assert.Equal(t, "../../etc/passwd", entries[1].Input)
	assert.Equal(t, "req-1", entries[1].RequestID)
	assert.Len(t, entries[1].ID, 36)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestStore_ListFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, reason := range []pathsec.Reason{pathsec.ReasonDotDot, pathsec.ReasonNullByte, pathsec.ReasonDotDot, pathsec.ReasonDotDot} {
		require.NoError(t, store.Record(ctx, Entry{
			Operation: "validate-path",
			Input:     "input",
			Reason:    reason,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := store.List(ctx, Filter{Reason: pathsec.ReasonDotDot})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = store.List(ctx, Filter{Reason: pathsec.ReasonDotDot, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.List(ctx, Filter{Reason: pathsec.ReasonWildcard})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_RecordTruncatesInput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	long := strings.Repeat("a", MaxInputLength-1) + "é" + "tail"
	require.NoError(t, store.Record(ctx, Entry{Operation: "sanitize-path", Input: long, Reason: pathsec.ReasonTruncated}))

	entries, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, strings.Repeat("a", MaxInputLength-1), entries[0].Input)
}

func TestStore_Prune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Record(ctx, Entry{Operation: "validate-path", Input: "old", Reason: pathsec.ReasonDotDot, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.Record(ctx, Entry{Operation: "validate-path", Input: "new", Reason: pathsec.ReasonDotDot, CreatedAt: now}))

	n, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Input)
}

func TestStore_CloseTwice(t *testing.T) {
	config := DefaultConfig(setupTestDB(t))
	config.CleanupInterval = 10 * time.Millisecond

	store, err := NewStore(config)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestStore_RecordDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS pathsec_audit").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_pathsec_audit_created_at").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO pathsec_audit").
		WithArgs(sqlmock.AnyArg(), "validate-path", "../x", "DOT_DOT", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	config := DefaultConfig(db)
	config.CleanupInterval = 0
	store, err := NewStore(config)
	require.NoError(t, err)
	defer store.Close()

	err = store.Record(context.Background(), Entry{Operation: "validate-path", Input: "../x", Reason: pathsec.ReasonDotDot})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RecordEscapesUnstorableBytes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS pathsec_audit").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_pathsec_audit_created_at").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO pathsec_audit").
		WithArgs(sqlmock.AnyArg(), "detect-traversal", `a\x00b\xc0\xae/é`, "NULL_BYTE", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	config := DefaultConfig(db)
	config.CleanupInterval = 0
	store, err := NewStore(config)
	require.NoError(t, err)
	defer store.Close()

	err = store.Record(context.Background(), Entry{
		Operation: "detect-traversal",
		Input:     "a\x00b\xc0\xae/é",
		Reason:    pathsec.ReasonNullByte,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorable(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "docs/readme.md", "docs/readme.md"},
		{"windows", `C:\Users\x`, `C:\Users\x`},
		{"unicode", "café/ｆｏｏ", "café/ｆｏｏ"},
		{"replacement char", "a\uFFFDb", "a\uFFFDb"},
		{"nul", "a\x00", `a\x00`},
		{"overlong", "%c0%ae\xc0\xae", `%c0%ae\xc0\xae`},
		{"truncated rune", "ab\xe2\x80", `ab\xe2\x80`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := storable(tt.input)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.NotContains(t, got, "\x00")
		})
	}
}

func TestStore_RecordNullByteRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, Entry{Operation: "validate-path", Input: "x\x00.txt", Reason: pathsec.ReasonNullByte}))

	entries, err := store.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, `x\x00.txt`, entries[0].Input)
}

func TestStore_CreateTableError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	_, err = NewStore(DefaultConfig(db))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create audit table")
}

func TestOpen(t *testing.T) {
	db, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	assert.NoError(t, db.Ping())
	db.Close()

	_, err = Open("mysql", "whatever")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NoError(t, r.Record(context.Background(), Entry{}))
}
