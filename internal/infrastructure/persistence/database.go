package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is the service's gorm handle together with the pool under it.
type Database struct {
	DB   *gorm.DB
	pool *sql.DB
}

// GormConfig is the configuration every connection of the service uses.
// TranslateError maps driver errors onto gorm.ErrDuplicatedKey and friends.
func GormConfig(gormLogger logger.Interface) *gorm.Config {
	return &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}
}

// Open connects to postgres, sizes the pool from cfg and pings once.
func Open(ctx context.Context, cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	return openDialector(ctx, postgres.Open(cfg.DSN()), cfg, gormLogger)
}

func openDialector(ctx context.Context, dialector gorm.Dialector, cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	db, err := gorm.Open(dialector, GormConfig(gormLogger))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	pool.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	d := &Database{DB: db, pool: pool}
	if err := d.Ping(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return d, nil
}

// SQL returns the connection pool, for pool metrics and migrations.
func (d *Database) SQL() *sql.DB { return d.pool }

func (d *Database) Ping(ctx context.Context) error {
	return d.pool.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.pool.Close()
}
