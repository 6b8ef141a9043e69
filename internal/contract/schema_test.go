// ABOUTME: Contract tests for database schema to detect breaking schema changes.
// ABOUTME: Validates that the key-value table and its columns exist in SQLite database.

package contract

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/store"
)

// expectedSchema defines the contract for our database schema.
// If a table or column is removed or renamed, databases written by earlier
// releases stop loading, so these tests fail first.
var expectedSchema = map[string][]string{
	"kv_store": {"key", "value", "updated_at"},
}

// setupTestDB creates a temporary SQLite database with the production schema.
func setupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "contract_test.db")

	// Use the store package to create the database with proper schema
	sqliteStore, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err, "failed to create SQLite store")

	// We need to open a new connection since the store owns its connection
	db, err := sql.Open(store.DriverModernc, dbPath)
	require.NoError(t, err, "failed to open database")

	t.Cleanup(func() {
		db.Close()
		sqliteStore.Close()
	})

	return db, dbPath
}

// getTableColumns queries SQLite to get column names for a table.
func getTableColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]bool, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", tableName)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying table info: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scanning column info: %w", err)
		}
		columns[name] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns: %w", err)
	}

	return columns, nil
}

// TestSchemaSurface verifies that all expected tables and columns exist.
func TestSchemaSurface(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	for table, expectedCols := range expectedSchema {
		t.Run(table, func(t *testing.T) {
			actualCols, err := getTableColumns(ctx, db, table)
			if !assert.NoError(t, err, "failed to get columns for table %s", table) {
				return
			}

			if !assert.NotEmpty(t, actualCols, "table %s should exist and have columns", table) {
				return
			}

			for _, col := range expectedCols {
				assert.True(t, actualCols[col],
					"column %s.%s should exist", table, col)
			}

			// Report any extra columns not in contract (informational, not failure)
			for col := range actualCols {
				if !slices.Contains(expectedCols, col) {
					t.Logf("INFO: extra column %s.%s not in contract (consider adding)", table, col)
				}
			}
		})
	}
}

// TestLegacyDatabaseMigrates opens a database created before updated_at
// existed and checks the store upgrades it and keeps its rows.
func TestLegacyDatabaseMigrates(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open(store.DriverModernc, dbPath)
	require.NoError(t, err)
	_, err = legacy.Exec(`CREATE TABLE kv_store (key TEXT PRIMARY KEY, value BLOB NOT NULL)`)
	require.NoError(t, err)
	_, err = legacy.Exec(`INSERT INTO kv_store (key, value) VALUES (?, ?)`, store.DefaultKey, []byte(`[]`))
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, store.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))
	require.NoError(t, s.Put(ctx, store.DefaultKey, []byte(`[{}]`)))
}
