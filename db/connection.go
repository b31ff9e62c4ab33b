package db

import (
	"database/sql"
	"net/url"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/topclients/errors"
)

// SQLiteBusyTimeoutMS is how long a connection waits on a locked database
// before failing with SQLITE_BUSY.
const SQLiteBusyTimeoutMS = 5000

const driverName = "sqlite3"

// dsn puts the connection settings in go-sqlite3 DSN parameters so every
// connection the pool opens gets them, not only the first.
func dsn(path string, wal bool) string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", strconv.Itoa(SQLiteBusyTimeoutMS))
	if wal {
		// readers (the query endpoint) proceed while a run or ingest writes
		q.Set("_journal_mode", "WAL")
	}
	return path + "?" + q.Encode()
}

// Open opens the SQLite database at path, creating it if needed. A nil
// logger is silent.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path)
	}
	db, err := sql.Open(driverName, dsn(path, true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// sql.Open is lazy; surface bad paths and pragma failures here
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s", path)
	}

	if logger != nil {
		logger.Infow("Database opened", "path", path, "busy_timeout_ms", SQLiteBusyTimeoutMS)
	}
	return db, nil
}

// OpenMemory opens a private in-memory database. Each pooled connection to
// ":memory:" would see its own empty database, so the pool holds one.
func OpenMemory() (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn(":memory:", false))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open in-memory database")
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to in-memory database")
	}
	return db, nil
}

// OpenWithMigrations opens the database and brings its schema up to date.
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "migrate %s", path)
	}
	return db, nil
}
