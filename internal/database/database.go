package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open opens a SQLite database at the given path and runs migrations.
// Pragmas use the modernc _pragma=name(value) form; the driver ignores the
// mattn-style _busy_timeout/_foreign_keys parameters. Transactions start in
// immediate mode so the write lock is taken up front; combined with the
// busy timeout this gives bounded waiting on contended writes instead of
// late SQLITE_BUSY failures.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// ErrConflict marks a transaction that could not acquire the database
// within the busy timeout. The engine never retries these; retry policy
// belongs to the caller.
var ErrConflict = errors.New("database busy")

// IsBusy reports whether err is a SQLite busy/locked failure.
func IsBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlitelib.SQLITE_BUSY || code == sqlitelib.SQLITE_LOCKED
	}
	return false
}

// Tx runs fn inside a single transaction. The transaction is rolled back on
// any error or panic, so a failed business operation leaves no partial
// state. Busy timeouts on begin or commit surface as ErrConflict.
func Tx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		if IsBusy(err) {
			return fmt.Errorf("begin tx: %w", ErrConflict)
		}
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		if IsBusy(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if IsBusy(err) {
			return fmt.Errorf("commit tx: %w", ErrConflict)
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
