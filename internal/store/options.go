package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/cipherlog/internal/dbx"
)

// internalPrefix marks keys used for the store's own bookkeeping. They are
// never listed by OptionKeys and cannot be written through the public setters.
const internalPrefix = "internal."

const (
	optionKeySalt     = internalPrefix + "store.salt"
	optionKeyVerifier = internalPrefix + "store.verifier"
	optionKeyBackup   = internalPrefix + "identity.backup"
)

type valueType string

const (
	valueString valueType = "string"
	valueBool   valueType = "bool"
	valueBytes  valueType = "bytes"
	valueRaw    valueType = "raw" // internal, kept in clear: needed before the key is known
	valueSealed valueType = "sealed"
)

func writeOption(ctx context.Context, q dbx.DBTX, name string, typ valueType, value []byte, internal bool, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO settings (name, value, value_type, is_internal, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			value_type = excluded.value_type,
			updated_at = excluded.updated_at`,
		name, value, string(typ), boolInt(internal), toMillis(now))
	if err != nil {
		return storageErr("write option "+name, err)
	}
	return nil
}

func readOption(ctx context.Context, q dbx.DBTX, name string) ([]byte, valueType, bool, error) {
	var (
		value    []byte
		typ      string
		internal bool
	)
	err := q.QueryRowContext(ctx, `SELECT value, value_type, is_internal FROM settings WHERE name = ?`, name).
		Scan(&value, &typ, &internal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", false, fmt.Errorf("%w: %s", ErrUnknownOption, name)
	}
	if err != nil {
		return nil, "", false, storageErr("read option "+name, err)
	}
	return value, valueType(typ), internal, nil
}

func readRawOption(ctx context.Context, q dbx.DBTX, name string) ([]byte, error) {
	value, _, _, err := readOption(ctx, q, name)
	return value, err
}

func checkPublicKey(key string) error {
	if key == "" || strings.HasPrefix(key, internalPrefix) {
		return fmt.Errorf("%w: %q", ErrReservedOption, key)
	}
	return nil
}

func (db *DB) setOption(ctx context.Context, key string, typ valueType, value []byte) error {
	if err := checkPublicKey(key); err != nil {
		return err
	}
	sealed, err := db.sealer.Seal(value)
	if err != nil {
		return err
	}
	return db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return writeOption(ctx, tx, key, typ, sealed, false, db.now())
	})
}

func (db *DB) getOption(ctx context.Context, key string, want valueType) ([]byte, error) {
	value, typ, internal, err := readOption(ctx, db.DB, key)
	if err != nil {
		return nil, err
	}
	if internal || typ != want {
		return nil, fmt.Errorf("%w: %s is not a %s option", ErrUnknownOption, key, want)
	}
	plain, err := db.sealer.Open(value)
	if err != nil {
		return nil, fmt.Errorf("open option %s: %w", key, err)
	}
	return plain, nil
}

// HasOption reports whether a public option is set.
func (db *DB) HasOption(ctx context.Context, key string) (bool, error) {
	_, _, internal, err := readOption(ctx, db.DB, key)
	if errors.Is(err, ErrUnknownOption) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !internal, nil
}

func (db *DB) SetOptionString(ctx context.Context, key, value string) error {
	return db.setOption(ctx, key, valueString, []byte(value))
}

func (db *DB) SetOptionBool(ctx context.Context, key string, value bool) error {
	v := []byte{0}
	if value {
		v[0] = 1
	}
	return db.setOption(ctx, key, valueBool, v)
}

func (db *DB) SetOptionBytes(ctx context.Context, key string, value []byte) error {
	return db.setOption(ctx, key, valueBytes, value)
}

func (db *DB) OptionString(ctx context.Context, key string) (string, error) {
	v, err := db.getOption(ctx, key, valueString)
	return string(v), err
}

func (db *DB) OptionBool(ctx context.Context, key string) (bool, error) {
	v, err := db.getOption(ctx, key, valueBool)
	if err != nil {
		return false, err
	}
	return len(v) == 1 && v[0] == 1, nil
}

func (db *DB) OptionBytes(ctx context.Context, key string) ([]byte, error) {
	return db.getOption(ctx, key, valueBytes)
}

// OptionKeys lists the public option keys in name order.
func (db *DB) OptionKeys(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM settings WHERE is_internal = 0 ORDER BY name`)
	if err != nil {
		return nil, storageErr("list options", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, storageErr("scan option", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// SetInternalOption stores sealed bookkeeping data under the internal namespace.
func (db *DB) SetInternalOption(ctx context.Context, key string, value []byte) error {
	sealed, err := db.sealer.Seal(value)
	if err != nil {
		return err
	}
	return db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return writeOption(ctx, tx, internalPrefix+key, valueSealed, sealed, true, db.now())
	})
}

// InternalOption reads a value written by SetInternalOption.
func (db *DB) InternalOption(ctx context.Context, key string) ([]byte, error) {
	value, typ, _, err := readOption(ctx, db.DB, internalPrefix+key)
	if err != nil {
		return nil, err
	}
	if typ != valueSealed {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOption, key)
	}
	return db.sealer.Open(value)
}
