package db

import (
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/teranos/topclients/errors"
)

// ErrDatabaseClosed is what workers see when they poll after shutdown has
// closed the connection.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err came from a closed *sql.DB.
// database/sql does not export that error, so its text is matched.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrDatabaseClosed) || strings.Contains(err.Error(), "database is closed")
}

// IsBusy reports whether SQLite refused work because another connection
// held the lock past the busy timeout.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
