package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups, downs := 0, 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs)
	assert.Positive(t, ups)
}

func TestAutoMigrateCreatesTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(db))

	for _, table := range []string{"profiles", "api_keys", "usage_balances", "usage_events"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}
