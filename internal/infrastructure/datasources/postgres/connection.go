package postgres

import (
	"database/sql"
	"embed"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"
	// postgres driver for database/sql
	_ "github.com/lib/pq"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"newsletter.backend/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Environment variables the migrations interpolate table names from.
const (
	subscribersTableEnv = "NEWSLETTER_SUBSCRIBERS_TABLE"
	tokensTableEnv      = "NEWSLETTER_TOKENS_TABLE"
)

var (
	sqlOpen = sql.Open
	dbPing  = func(db *sql.DB) error { return db.Ping() }
	gooseUp = func(db *sql.DB) error { return goose.Up(db, "migrations") }
)

// NewConnection opens and pings a postgres connection pool.
func NewConnection(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sqlOpen("postgres", cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := dbPing(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded migrations for the configured tables. Each
// stage keeps its own goose version table.
func Migrate(db *sql.DB, tables config.TablesConfig) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	goose.SetTableName(tables.Subscribers + "_goose_version")

	restore, err := setMigrationEnv(map[string]string{
		subscribersTableEnv: tables.Subscribers,
		tokensTableEnv:      tables.Tokens,
	})
	defer restore()
	if err != nil {
		return fmt.Errorf("set migration env: %w", err)
	}

	if err := gooseUp(db); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// setMigrationEnv exports the ENVSUB values goose reads. The returned func
// puts the previous environment back.
func setMigrationEnv(vars map[string]string) (func(), error) {
	type saved struct {
		value string
		ok    bool
	}
	prev := make(map[string]saved, len(vars))
	restore := func() {
		for key, p := range prev {
			if p.ok {
				_ = os.Setenv(key, p.value)
			} else {
				_ = os.Unsetenv(key)
			}
		}
	}

	for key, value := range vars {
		old, ok := os.LookupEnv(key)
		prev[key] = saved{value: old, ok: ok}
		if err := os.Setenv(key, value); err != nil {
			return restore, err
		}
	}
	return restore, nil
}

// NewGorm wraps an open pool in a gorm handle.
func NewGorm(db *sql.DB) (*gorm.DB, error) {
	gdb, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}
	return gdb, nil
}
