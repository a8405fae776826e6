package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedVersions(t *testing.T) {
	versions, err := embeddedVersions()
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.Equal(t, "0001_profile_records", versions[0])
	assert.IsIncreasing(t, versions)
}

func TestProfileSchemaAnnouncesChanges(t *testing.T) {
	body, err := migrationsFS.ReadFile("migrations/0001_profile_records.sql")
	require.NoError(t, err)
	sql := string(body)
	assert.Contains(t, sql, "pg_notify('profile_changes'")
	assert.Contains(t, sql, "'member-records'")
	assert.Contains(t, sql, "'client-records'")
}
