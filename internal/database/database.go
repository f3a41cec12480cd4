package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/config"
	"github.com/Additional-Code/gobady/internal/entity"
)

// Connections bundles writer and reader bun instances.
type Connections struct {
	Writer *bun.DB
	Reader *bun.DB
}

// Module registers the database connections with Fx.
var Module = fx.Provide(New)

// New opens the writer pool and, when a distinct DSN is configured, a reader
// pool for catalog and order lookups. Both share the dialect and query hook.
func New(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*Connections, error) {
	dial, err := selectDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	writer, err := openPool(cfg.Database, cfg.Database.WriterDSN, dial, logger)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	conns := &Connections{Writer: writer, Reader: writer}
	if dsn := cfg.Database.ReaderDSN; dsn != "" && dsn != cfg.Database.WriterDSN {
		if conns.Reader, err = openPool(cfg.Database, dsn, dial, logger); err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("open reader: %w", err)
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for role, db := range conns.pools() {
				if err := pingContext(ctx, db); err != nil {
					return fmt.Errorf("ping %s: %w", role, err)
				}
			}
			logger.Info("database connected",
				zap.String("driver", cfg.Database.Driver),
				zap.Bool("replica", conns.Reader != conns.Writer),
			)
			return nil
		},
		OnStop: func(context.Context) error {
			var closeErr error
			for role, db := range conns.pools() {
				if err := db.Close(); err != nil {
					closeErr = errors.Join(closeErr, fmt.Errorf("close %s: %w", role, err))
				}
			}
			return closeErr
		},
	})

	return conns, nil
}

// pools lists each distinct pool once, keyed by role.
func (c *Connections) pools() map[string]*bun.DB {
	out := map[string]*bun.DB{"writer": c.Writer}
	if c.Reader != c.Writer {
		out["reader"] = c.Reader
	}
	return out
}

func openPool(cfg config.Database, dsn string, dial schema.Dialect, logger *zap.Logger) (*bun.DB, error) {
	sqldb, err := openSQLDB(cfg.Driver, dsn)
	if err != nil {
		return nil, err
	}
	applyPoolSettings(sqldb, cfg)
	return newBunDB(sqldb, dial, logger), nil
}

func newBunDB(sqldb *sql.DB, dial schema.Dialect, logger *zap.Logger) *bun.DB {
	db := bun.NewDB(sqldb, dial)
	// m2m relations need the join model registered before first use.
	db.RegisterModel((*entity.ProductCategory)(nil))
	if logger != nil {
		db.AddQueryHook(queryLogger{logger: logger.Named("sql"), slow: 200 * time.Millisecond})
	}
	return db
}

// Canonical driver names.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// NormalizeDriver maps the accepted DB_DRIVER spellings onto a canonical driver name.
func NormalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	case "mysql":
		return DriverMySQL, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func selectDialect(driver string) (schema.Dialect, error) {
	name, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	switch name {
	case DriverPostgres:
		return pgdialect.New(), nil
	case DriverMySQL:
		return mysqldialect.New(), nil
	default:
		return sqlitedialect.New(), nil
	}
}

func openSQLDB(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty DSN")
	}
	name, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}

	switch name {
	case DriverPostgres:
		connector := pgdriver.NewConnector(pgdriver.WithDSN(dsn))
		return sql.OpenDB(connector), nil
	case DriverMySQL:
		return sql.Open("mysql", dsn)
	default:
		return sql.Open(sqliteshim.ShimName, dsn)
	}
}

func applyPoolSettings(db *sql.DB, cfg config.Database) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
}

func pingContext(ctx context.Context, db *bun.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.DB.PingContext(pingCtx)
}
