package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/dialect"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/config"
)

func TestNormalizeDriver(t *testing.T) {
	cases := map[string]string{
		"postgres":   DriverPostgres,
		"postgresql": DriverPostgres,
		"pg":         DriverPostgres,
		" MySQL ":    DriverMySQL,
		"sqlite":     DriverSQLite,
		"sqlite3":    DriverSQLite,
	}
	for in, want := range cases {
		got, err := NormalizeDriver(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)

		dial, err := selectDialect(in)
		require.NoError(t, err, in)
		assert.NotNil(t, dial)
	}

	_, err := NormalizeDriver("oracle")
	assert.Error(t, err)
	_, err = selectDialect("oracle")
	assert.Error(t, err)
}

func TestNewOpensSQLite(t *testing.T) {
	for _, driver := range []string{"sqlite", "sqlite3"} {
		t.Run(driver, func(t *testing.T) {
			cfg := config.Config{Database: config.Database{
				Driver:       driver,
				WriterDSN:    ":memory:",
				ReaderDSN:    ":memory:",
				MaxOpenConns: 1,
			}}

			lc := fxtest.NewLifecycle(t)
			conns, err := New(lc, cfg, zap.NewNop())
			require.NoError(t, err)
			lc.RequireStart()
			defer lc.RequireStop()

			assert.Same(t, conns.Writer, conns.Reader)
			assert.Equal(t, dialect.SQLite, conns.Writer.Dialect().Name())

			var one int
			require.NoError(t, conns.Writer.NewSelect().ColumnExpr("1").Scan(context.Background(), &one))
			assert.Equal(t, 1, one)
		})
	}
}

func TestNewRejectsMissingDSN(t *testing.T) {
	cfg := config.Config{Database: config.Database{Driver: "sqlite"}}
	_, err := New(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "empty DSN")
}
