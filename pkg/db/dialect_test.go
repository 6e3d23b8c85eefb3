package db

import (
	"testing"
	"time"

	"github.com/smallbiznis/creditline/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
)

func TestDialect(t *testing.T) {
	for _, kind := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialect(Config{Type: kind, Name: "creditline"})
		require.NoError(t, err, kind)
		assert.NotNil(t, d)
	}

	_, err := Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}

func TestDialectPrefersURL(t *testing.T) {
	d, err := Dialect(Config{
		Type: "postgres",
		URL:  "postgres://app:secret@db:5432/creditline?sslmode=disable",
		Host: "ignored",
	})
	require.NoError(t, err)

	pg, ok := d.(*postgres.Dialector)
	require.True(t, ok)
	assert.Equal(t, "postgres://app:secret@db:5432/creditline?sslmode=disable", pg.Config.DSN)

	d, err = Dialect(Config{Type: "postgres", Host: "db", Name: "creditline", Port: "5432"})
	require.NoError(t, err)
	assert.Contains(t, d.(*postgres.Dialector).Config.DSN, "host=db")
}

func TestFromAppConfig(t *testing.T) {
	cfg := FromAppConfig(config.Config{
		DBType:            "postgres",
		DBName:            "ledger",
		DatabaseURL:       "postgres://ledger",
		DBConnMaxLifetime: 300,
	})

	assert.Equal(t, "postgres", cfg.Type)
	assert.Equal(t, "ledger", cfg.Name)
	assert.Equal(t, "postgres://ledger", cfg.URL)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
}
