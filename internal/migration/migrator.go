package migration

import (
	"context"
	"embed"
	"errors"
	"path"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/config"
	"github.com/Additional-Code/gobady/internal/database"
)

// Schema files live under sql/<goose dialect>/.
//
//go:embed sql/*/*.sql
var schemaFS embed.FS

// Module provides the Migrator to Fx.
var Module = fx.Provide(New)

// Migrator applies the embedded storefront schema with goose.
type Migrator struct {
	db     *bun.DB
	dir    string
	logger *zap.Logger
}

// New constructs a goose-backed migrator for the configured driver.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	dialect, err := gooseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	if err := goose.SetDialect(dialect); err != nil {
		return nil, err
	}
	goose.SetBaseFS(schemaFS)
	goose.SetLogger(zap.NewStdLog(logger.Named("goose")))

	return &Migrator{
		db:     conns.Writer,
		dir:    path.Join("sql", dialect),
		logger: logger,
	}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	if err := goose.UpContext(ctx, m.db.DB, m.dir); err != nil {
		if isNoMigrationErr(err) {
			m.logger.Info("no migrations to apply")

			return nil
		}
		return err
	}

	version, err := goose.GetDBVersionContext(ctx, m.db.DB)
	if err != nil {
		return err
	}
	m.logger.Info("migrations applied", zap.Int64("version", version))

	return nil
}

// Down rolls back migrations. Steps <=0 defaults to 1; all=true rolls everything back.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	if all {
		if err := goose.DownToContext(ctx, m.db.DB, m.dir, 0); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")

				return nil
			}
			return err
		}
		m.logger.Info("migrations rolled back", zap.String("mode", "all"))

		return nil
	}

	if steps <= 0 {
		steps = 1
	}

	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, m.db.DB, m.dir); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback", zap.Int("rolled_back", i))

				return nil
			}
			return err
		}
	}

	m.logger.Info("migrations rolled back", zap.Int("steps", steps))

	return nil
}

// Status logs the applied state of every embedded migration.
func (m *Migrator) Status(ctx context.Context) error {
	return goose.StatusContext(ctx, m.db.DB, m.dir)
}

func gooseDialect(driver string) (string, error) {
	name, err := database.NormalizeDriver(driver)
	if err != nil {
		return "", err
	}
	if name == database.DriverSQLite {
		return "sqlite3", nil
	}
	return name, nil
}

func isNoMigrationErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "no migrations")
}
