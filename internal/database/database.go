package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/digkill/PlantDoctor/internal/config"
	"github.com/digkill/PlantDoctor/internal/kv"
)

// Connect opens the SQL database selected by STORE_DRIVER with pooling
// defaults suitable for that driver.
func Connect(cfg config.Config) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.StoreDriver {
	case config.StoreMySQL:
		db, err = sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetConnMaxLifetime(time.Minute * 5)
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	case config.StoreSQLite:
		db, err = sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("store driver %q has no sql database", cfg.StoreDriver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.StoreDriver, err)
	}

	return db, nil
}

// Migrate runs the bootstrap schema to ensure the key-value table exists.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	stmt := sqliteSchema
	if driver == config.StoreMySQL {
		stmt = mysqlSchema
	}
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// OpenStore returns the key-value store for the configured driver, migrated and
// ready for use, plus a close function for the underlying connection.
func OpenStore(ctx context.Context, cfg config.Config) (kv.Store, func() error, error) {
	if cfg.StoreDriver == config.StoreMemory {
		return kv.NewMemoryStore(), func() error { return nil }, nil
	}

	db, err := Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := Migrate(ctx, db, cfg.StoreDriver); err != nil {
		db.Close()
		return nil, nil, err
	}

	dialect := kv.DialectSQLite
	if cfg.StoreDriver == config.StoreMySQL {
		dialect = kv.DialectMySQL
	}
	return kv.NewSQLStore(db, dialect), db.Close, nil
}
