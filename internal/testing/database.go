// Package testing holds database fixtures shared by package tests.
package testing

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teranos/topclients/db"
)

// CreateTestDB returns an empty in-memory database closed at test cleanup.
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenMemory()
	require.NoError(t, err, "open test database")
	t.Cleanup(func() { conn.Close() })
	return conn
}

// CreateMigratedTestDB is CreateTestDB with the full schema applied.
func CreateMigratedTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn := CreateTestDB(t)
	require.NoError(t, db.Migrate(conn, nil), "migrate test database")
	return conn
}
