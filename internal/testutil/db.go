// Package testutil holds helpers shared by package tests that need a real
// database.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"newsletter.backend/internal/config"
)

var dbSeq atomic.Int64

// Tables are the table names test schemas are created with.
var Tables = config.TablesConfig{Stage: "test", Subscribers: "subscribers", Tokens: "subscriber_tokens"}

// NewDB opens a private in-memory sqlite database holding the subscriber
// schema. A single connection serializes transactions the way row locks
// would on postgres.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err, "open sqlite")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	CreateSchema(t, db, Tables)
	return db
}

// CreateSchema creates the subscriber and token tables.
func CreateSchema(t *testing.T, db *gorm.DB, tables config.TablesConfig) {
	t.Helper()

	MustExec(t, db, fmt.Sprintf(`CREATE TABLE %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		subscribed BOOLEAN NOT NULL DEFAULT 1,
		subscribed_at DATETIME NOT NULL,
		email_verified BOOLEAN NOT NULL DEFAULT 0,
		preferences TEXT NOT NULL,
		first_name TEXT,
		last_name TEXT,
		unsubscribe_time DATETIME
	);`, tables.Subscribers))

	MustExec(t, db, fmt.Sprintf(`CREATE TABLE %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES %s (id),
		token_hash TEXT NOT NULL UNIQUE,
		token_type TEXT NOT NULL,
		expires_at DATETIME,
		used BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (user_id, token_type)
	);`, tables.Tokens, tables.Subscribers))
}

// MustExec runs q and fails the test on error.
func MustExec(t *testing.T, db *gorm.DB, q string, args ...interface{}) {
	t.Helper()
	require.NoError(t, db.Exec(q, args...).Error, "exec failed: query=%s", q)
}

// CountRows returns the number of rows in table matching where.
func CountRows(t *testing.T, db *gorm.DB, table, where string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Table(table)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
