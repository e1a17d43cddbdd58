// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping for the two
// supported drivers (pure-Go SQLite and PostgreSQL) and schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-empatalk-backend/internal/domain"
)

// Supported values for Options.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and tunes the database backend.
type Options struct {
	Driver  string // sqlite|postgres
	Path    string // SQLite file path
	DSN     string // PostgreSQL DSN
	Tracing bool   // attach the OpenTelemetry GORM plugin
	Silent  bool   // suppress GORM's SQL logger
}

// Open connects to the configured backend and, when requested, instruments
// every query with OpenTelemetry spans.
func Open(opts Options) (*gorm.DB, error) {
	gcfg := &gorm.Config{}
	if opts.Silent {
		gcfg.Logger = logger.Default.LogMode(logger.Silent)
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		db, err = openSQLite(opts.Path, gcfg)
	case DriverPostgres:
		db, err = OpenPostgres(opts.DSN, gcfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if opts.Tracing {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("gorm tracing plugin: %w", err)
		}
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database with WAL journaling,
// foreign keys, and a busy timeout applied to every pooled connection.
func OpenSQLite(path string) (*gorm.DB, error) {
	return openSQLite(path, &gorm.Config{})
}

func openSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), gcfg)
	if err != nil {
		return nil, err
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// OpenPostgres connects to PostgreSQL using the pgx-backed GORM driver.
func OpenPostgres(dsn string, gcfg *gorm.Config) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres DSN must not be empty")
	}
	if gcfg == nil {
		gcfg = &gorm.Config{}
	}
	db, err := gorm.Open(postgres.Open(dsn), gcfg)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.ChatSession{},
		&domain.Turn{},
		&domain.Feedback{},
		&domain.Idempotency{},
	)
}
