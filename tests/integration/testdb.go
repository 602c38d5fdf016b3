// Package integration runs the sync engine against real PostgreSQL and Redis
// instances started with testcontainers.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/infrastructure/migration"
	"github.com/Inventorum/ebay-sub000/internal/infrastructure/persistence"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB is a migrated database in its own PostgreSQL container
type TestDB struct {
	DB  *gorm.DB
	DSN string
}

// NewTestDB starts PostgreSQL, applies every migration and connects gorm with
// the production settings. The container is terminated on test cleanup.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("ebaysync_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	level := logger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = logger.Info
	}
	db, err := gorm.Open(gormpostgres.Open(dsn), persistence.GormConfig(logger.Default.LogMode(level)))
	require.NoError(t, err, "connect")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(8)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, migrationsDir(t), nil)
	require.NoError(t, err, "create migrator")
	st, err := m.Up()
	require.NoError(t, err, "apply migrations")
	require.False(t, st.Dirty)

	return &TestDB{DB: db, DSN: dsn}
}

// migrationsDir resolves the repository's migrations/ from this file
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	dir, err := migration.FindDir(filepath.Join(filepath.Dir(file), "..", "..", "migrations"))
	require.NoError(t, err)
	return dir
}
