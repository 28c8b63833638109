package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/matheus3301/cipherlog/internal/store/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func rawConn(t *testing.T) *SchemaManager {
	t.Helper()
	conn, err := openConn(filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewSchemaManager(conn, zap.NewNop())
}

func TestEnsureSchemaCreatesEveryTable(t *testing.T) {
	ctx := context.Background()
	m := rawConn(t)

	results, err := m.EnsureSchema(ctx)
	require.NoError(t, err)
	require.Len(t, results, len(migrationOrder))
	for _, r := range results {
		assert.True(t, r.Created, r.Table.String())
		assert.Equal(t, 0, r.From)

		latest, err := m.LatestVersion(r.Table)
		require.NoError(t, err)
		v, ok, err := m.Version(ctx, r.Table)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, latest, v, r.Table.String())
	}

	again, err := m.EnsureSchema(ctx)
	require.NoError(t, err)
	for _, r := range again {
		assert.False(t, r.Changed(), r.Table.String())
	}
}

func TestLatestVersions(t *testing.T) {
	m := rawConn(t)
	for table, want := range map[Table]int{TableContacts: 2, TableGroups: 2, TableMedia: 1, TableTableVersions: 1} {
		v, err := m.LatestVersion(table)
		require.NoError(t, err)
		assert.Equal(t, want, v, table.String())
	}
	assert.Equal(t, "chat_groups", TableGroups.Physical())
	assert.Equal(t, "groups", TableGroups.String())
}

func TestEnsureSchemaUpgradesStepByStep(t *testing.T) {
	ctx := context.Background()
	m := rawConn(t)

	// Lay down version 1 of contacts only.
	body, err := migrations.FS.ReadFile("contacts/1_create_contacts.up.sql")
	require.NoError(t, err)
	_, err = m.db.ExecContext(ctx, string(body))
	require.NoError(t, err)
	body, err = migrations.FS.ReadFile("table_versions/1_create_table_versions.up.sql")
	require.NoError(t, err)
	_, err = m.db.ExecContext(ctx, string(body))
	require.NoError(t, err)
	_, err = m.db.ExecContext(ctx, `INSERT INTO table_versions (table_name, version) VALUES ('contacts', 1), ('table_versions', 1)`)
	require.NoError(t, err)

	results, err := m.EnsureSchema(ctx)
	require.NoError(t, err)
	var contacts MigrationResult
	for _, r := range results {
		if r.Table == TableContacts {
			contacts = r
		}
	}
	assert.Equal(t, MigrationResult{Table: TableContacts, From: 1, To: 2}, contacts)

	_, err = m.db.ExecContext(ctx, `INSERT INTO contacts (identity, public_key, created_at, color) VALUES ('ALICE001', x'00', 0, 7)`)
	assert.NoError(t, err)
}

func TestUnversionedTableIsAssumedVersionOne(t *testing.T) {
	ctx := context.Background()
	m := rawConn(t)
	body, err := migrations.FS.ReadFile("contacts/1_create_contacts.up.sql")
	require.NoError(t, err)
	_, err = m.db.ExecContext(ctx, string(body))
	require.NoError(t, err)

	res, err := m.migrateTable(ctx, TableTableVersions)
	require.NoError(t, err)
	require.True(t, res.Created)
	res, err = m.migrateTable(ctx, TableContacts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.From)
	assert.Equal(t, 2, res.To)
	assert.False(t, res.Created)
}

func TestNewerSchemaIsRefused(t *testing.T) {
	ctx := context.Background()
	m := rawConn(t)
	_, err := m.EnsureSchema(ctx)
	require.NoError(t, err)
	_, err = m.db.ExecContext(ctx, `UPDATE table_versions SET version = 9 WHERE table_name = 'media'`)
	require.NoError(t, err)

	_, err = m.EnsureSchema(ctx)
	var incompatible *IncompatibleSchemaError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "media", incompatible.Table)
	assert.Equal(t, 9, incompatible.Stored)
	assert.Equal(t, 1, incompatible.Known)
}

func TestFailedStepRollsBackTable(t *testing.T) {
	ctx := context.Background()
	m := rawConn(t)
	_, err := m.migrateTable(ctx, TableTableVersions)
	require.NoError(t, err)

	m.fs = fstest.MapFS{
		"media/1_create_media.up.sql": {Data: []byte(`CREATE TABLE media (id TEXT PRIMARY KEY);`)},
		"media/2_broken.up.sql":       {Data: []byte(`ALTER TABLE nowhere ADD COLUMN x INTEGER;`)},
	}
	_, err = m.migrateTable(ctx, TableMedia)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMigrationFailed)
	var failed *MigrationFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 0, failed.From)
	assert.Equal(t, 2, failed.To)

	exists, err := m.TableExists(ctx, TableMedia)
	require.NoError(t, err)
	assert.False(t, exists, "step 1 must be rolled back with step 2")
	_, ok, err := m.Version(ctx, TableMedia)
	require.NoError(t, err)
	assert.False(t, ok)
}
