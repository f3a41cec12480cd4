package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGooseDialect(t *testing.T) {
	cases := map[string]string{
		"postgres":   "postgres",
		"pg":         "postgres",
		"postgresql": "postgres",
		"mysql":      "mysql",
		"sqlite":     "sqlite3",
		"sqlite3":    "sqlite3",
	}
	for driver, want := range cases {
		got, err := gooseDialect(driver)
		require.NoError(t, err, driver)
		assert.Equal(t, want, got)
	}

	_, err := gooseDialect("oracle")
	assert.Error(t, err)
}

func TestEveryDialectShipsTheSameMigrations(t *testing.T) {
	var reference []string
	for _, dialect := range []string{"postgres", "mysql", "sqlite3"} {
		entries, err := fs.ReadDir(schemaFS, path.Join("sql", dialect))
		require.NoError(t, err, dialect)

		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
			body, err := fs.ReadFile(schemaFS, path.Join("sql", dialect, e.Name()))
			require.NoError(t, err)
			assert.Contains(t, string(body), "-- +goose Up")
			assert.Contains(t, string(body), "-- +goose Down")
			for _, table := range []string{"categories", "products", "product_categories", "price_tiers", "product_media", "payment_methods", "orders", "order_lines"} {
				assert.True(t, strings.Contains(string(body), "CREATE TABLE "+table+" ("), "%s missing %s", dialect, table)
			}
		}
		if reference == nil {
			reference = names
			continue
		}
		assert.Equal(t, reference, names, dialect)
	}
}

func TestOrderContactColumnsAreNotPadded(t *testing.T) {
	for _, dialect := range []string{"postgres", "mysql", "sqlite3"} {
		body, err := fs.ReadFile(schemaFS, path.Join("sql", dialect, "00001_storefront.sql"))
		require.NoError(t, err, dialect)
		schema := string(body)

		for _, column := range []string{"national_id", "phone"} {
			assert.NotRegexp(t, column+` CHAR\(`, schema, dialect)
			assert.Regexp(t, column+` [A-Z]+(\(\d+\))? NOT NULL DEFAULT ''`, schema, dialect)
		}
		assert.NotRegexp(t, `(?s)CREATE TABLE categories \([^;]*UNIQUE`, schema, dialect)
	}
}

func TestIsNoMigrationErr(t *testing.T) {
	assert.False(t, isNoMigrationErr(nil))
	assert.True(t, isNoMigrationErr(goose.ErrNoNextVersion))
	assert.True(t, isNoMigrationErr(fmt.Errorf("down: %w", goose.ErrNoMigrationFiles)))
	assert.False(t, isNoMigrationErr(errors.New("syntax error at or near")))
}
