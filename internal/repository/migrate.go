package repository

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/Nazarious-ucu/weather-forecast-bot/migrations"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

const (
	DialectSqlite   = "sqlite"
	DialectPostgres = "postgres"
)

// goose keeps its dialect, filesystem and logger in package globals.
var gooseMu sync.Mutex

type gooseLogger struct {
	l zerolog.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Info().Msgf(format, v...)
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.l.Error().Msgf(format, v...)
}

// Migrate applies the embedded migrations for dialect. Running it against an
// already initialized database is a no-op.
func Migrate(db *sql.DB, dialect string, logger zerolog.Logger) error {
	dir, err := migrationsDir(dialect)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{l: logger.With().Str("component", "migrations").Logger()})

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func migrationsDir(dialect string) (string, error) {
	switch dialect {
	case DialectSqlite:
		return migrations.SqliteDir, nil
	case DialectPostgres:
		return migrations.PostgresDir, nil
	default:
		return "", fmt.Errorf("unsupported database dialect %q", dialect)
	}
}
