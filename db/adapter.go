package db

import (
	"fmt"

	"github.com/kasuganosora/brotmon/config"
	dbmysql "github.com/kasuganosora/brotmon/db/mysql"
	dbpostgres "github.com/kasuganosora/brotmon/db/postgres"
	dbsqlite "github.com/kasuganosora/brotmon/db/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	ModeSQLite   = "sqlite"
	ModeMySQL    = "mysql"
	ModePostgres = "postgres"
)

// Open returns a *gorm.DB for the configured database mode with the pool
// limits applied. SQLite always gets a single connection.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var (
		dialector gorm.Dialector
		err       error
	)
	pool := cfg
	switch cfg.Mode {
	case ModeSQLite:
		dialector = dbsqlite.Dialector(cfg.SQLitePath)
		pool.MaxOpen, pool.MaxIdle, pool.MaxLife = 1, 1, 0
	case ModeMySQL:
		dialector, err = dbmysql.Dialector(cfg.MySQLDSN)
	case ModePostgres:
		dialector, err = dbpostgres.Dialector(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("db: %s: %w", cfg.Mode, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", cfg.Mode, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if pool.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdle)
	}
	sqlDB.SetConnMaxLifetime(pool.MaxLife)
	return db, nil
}
