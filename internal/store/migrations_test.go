package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationScriptsEmbedded(t *testing.T) {
	names, err := migrationScripts()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "migrations/001_init.sql", names[0])

	content, err := migrationFiles.ReadFile(names[0])
	require.NoError(t, err)
	sql := string(content)
	for _, table := range []string{"ingestion_runs", "cell_features"} {
		assert.True(t, strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table), table)
	}
}
