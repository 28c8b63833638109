package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/cipherlog/internal/dbx"
	"github.com/matheus3301/cipherlog/internal/store/migrations"
	"go.uber.org/zap"
)

// Table enumerates every logical table the store knows about.
type Table int

const (
	TableContacts Table = iota
	TableContactMessages
	TableControlMessages
	TableFeatureLevels
	TableGroups
	TableGroupMessages
	TableMedia
	TableSettings
	TableTableVersions
	// TableSqliteMaster is the engine's catalog. It is only read to test
	// whether a table exists and is never migrated.
	TableSqliteMaster
)

type tableInfo struct {
	name     string // logical name, key of table_versions and the migrations directory
	physical string
}

var tableInfos = map[Table]tableInfo{
	TableContacts:        {"contacts", "contacts"},
	TableContactMessages: {"contact_messages", "contact_messages"},
	TableControlMessages: {"control_messages", "control_messages"},
	TableFeatureLevels:   {"feature_levels", "feature_levels"},
	TableGroups:          {"groups", "chat_groups"},
	TableGroupMessages:   {"group_messages", "group_messages"},
	TableMedia:           {"media", "media"},
	TableSettings:        {"settings", "settings"},
	TableTableVersions:   {"table_versions", "table_versions"},
	TableSqliteMaster:    {"sqlite_master", "sqlite_master"},
}

// migrationOrder lists tables so that referenced tables come first.
var migrationOrder = []Table{
	TableTableVersions,
	TableContacts,
	TableFeatureLevels,
	TableGroups,
	TableMedia,
	TableSettings,
	TableContactMessages,
	TableControlMessages,
	TableGroupMessages,
}

func (t Table) String() string { return tableInfos[t].name }

// Physical is the name of the table in the database.
func (t Table) Physical() string { return tableInfos[t].physical }

// MigrationResult describes what EnsureSchema did to one table.
type MigrationResult struct {
	Table   Table
	From    int
	To      int
	Created bool
}

// Changed reports whether any step ran.
func (r MigrationResult) Changed() bool { return r.From != r.To }

// SchemaManager keeps a version per table and brings every table up to the
// version this build knows, one transaction per table.
type SchemaManager struct {
	db     *sql.DB
	fs     fs.FS
	logger *zap.Logger
}

// NewSchemaManager uses the embedded migration steps.
func NewSchemaManager(db *sql.DB, logger *zap.Logger) *SchemaManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaManager{db: db, fs: migrations.FS, logger: logger}
}

type migrationStep struct {
	version    int
	identifier string
	body       string
}

// steps reads the ordered up steps of a table.
func (m *SchemaManager) steps(t Table) ([]migrationStep, error) {
	src, err := iofs.New(m.fs, t.String())
	if err != nil {
		return nil, fmt.Errorf("migration source for %s: %w", t, err)
	}
	defer func() { _ = src.Close() }()

	v, err := src.First()
	if err != nil {
		return nil, fmt.Errorf("first migration of %s: %w", t, err)
	}
	var steps []migrationStep
	for {
		r, ident, err := src.ReadUp(v)
		if err != nil {
			return nil, fmt.Errorf("read migration %d of %s: %w", v, t, err)
		}
		body, err := io.ReadAll(r)
		_ = r.Close()
		if err != nil {
			return nil, fmt.Errorf("read migration %d of %s: %w", v, t, err)
		}
		steps = append(steps, migrationStep{version: int(v), identifier: ident, body: string(body)})

		v, err = src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return steps, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next migration of %s: %w", t, err)
		}
	}
}

// LatestVersion is the version this build migrates t to.
func (m *SchemaManager) LatestVersion(t Table) (int, error) {
	steps, err := m.steps(t)
	if err != nil {
		return 0, err
	}
	return steps[len(steps)-1].version, nil
}

// TableExists asks the engine catalog whether t has been created.
func (m *SchemaManager) TableExists(ctx context.Context, t Table) (bool, error) {
	return tableExists(ctx, m.db, t)
}

func tableExists(ctx context.Context, q dbx.DBTX, t Table) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+TableSqliteMaster.Physical()+` WHERE type = 'table' AND name = ?`,
		t.Physical()).Scan(&n)
	if err != nil {
		return false, storageErr("check table "+t.String(), err)
	}
	return n > 0, nil
}

// Version returns the recorded version of t and whether one is recorded.
func (m *SchemaManager) Version(ctx context.Context, t Table) (int, bool, error) {
	ok, err := m.TableExists(ctx, TableTableVersions)
	if err != nil || !ok {
		return 0, false, err
	}
	var v int
	err = m.db.QueryRowContext(ctx, `SELECT version FROM table_versions WHERE table_name = ?`, t.String()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storageErr("read table version", err)
	}
	return v, true, nil
}

// EnsureSchema creates missing tables at the latest version, upgrades older
// ones step by step and refuses tables written by a newer build.
func (m *SchemaManager) EnsureSchema(ctx context.Context) ([]MigrationResult, error) {
	results := make([]MigrationResult, 0, len(migrationOrder))
	for _, t := range migrationOrder {
		res, err := m.migrateTable(ctx, t)
		if err != nil {
			return results, err
		}
		if res.Changed() {
			m.logger.Info("table migrated",
				zap.String("table", t.String()),
				zap.Int("from", res.From),
				zap.Int("to", res.To),
				zap.Bool("created", res.Created))
		}
		results = append(results, res)
	}
	return results, nil
}

func (m *SchemaManager) migrateTable(ctx context.Context, t Table) (MigrationResult, error) {
	steps, err := m.steps(t)
	if err != nil {
		return MigrationResult{}, err
	}
	latest := steps[len(steps)-1].version

	exists, err := m.TableExists(ctx, t)
	if err != nil {
		return MigrationResult{}, err
	}
	stored, recorded, err := m.Version(ctx, t)
	if err != nil {
		return MigrationResult{}, err
	}

	from := 0
	switch {
	case !exists:
		// A version row without its table is stale; rebuild from scratch.
	case recorded:
		from = stored
	default:
		m.logger.Warn("table has no recorded version, assuming 1", zap.String("table", t.String()))
		from = 1
	}

	res := MigrationResult{Table: t, From: from, To: latest, Created: !exists}
	if from > latest {
		return res, &IncompatibleSchemaError{Table: t.String(), Stored: from, Known: latest}
	}
	if from == latest && recorded {
		return res, nil
	}

	err = dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, s := range steps {
			if s.version <= from {
				continue
			}
			if _, err := tx.ExecContext(ctx, s.body); err != nil {
				return fmt.Errorf("step %d (%s): %w", s.version, s.identifier, err)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO table_versions (table_name, version) VALUES (?, ?)
			ON CONFLICT(table_name) DO UPDATE SET version = excluded.version`,
			t.String(), latest)
		return err
	})
	if err != nil {
		return res, &MigrationFailedError{Table: t.String(), From: from, To: latest, Err: err}
	}
	return res, nil
}
