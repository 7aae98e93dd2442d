package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsDSN(t *testing.T) {
	dsn := Settings{User: "app", Pass: "p@ss", Host: "db", Port: "3306", Name: "store_rating"}.DSN()

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "p@ss", cfg.Passwd)
	assert.Equal(t, "db:3306", cfg.Addr)
	assert.Equal(t, "store_rating", cfg.DBName)
	assert.True(t, cfg.ParseTime)
	assert.True(t, cfg.MultiStatements)
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	require.NoError(t, err)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, 3, ups)
	assert.Equal(t, ups, downs)
}
