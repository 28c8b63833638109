// Package store is the encrypted local persistence of the messaging client:
// contacts, groups, per-conversation message logs, media blobs and settings.
//
// All components share one SQLite database. Mutations are serialized by a
// single writer lock and run in a transaction each; reads go straight to the
// pool. Sensitive columns (message content, media, option values) are sealed
// with a key derived from the user's password.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/cipherlog/internal/bus"
	"github.com/matheus3301/cipherlog/internal/cryptox"
	"github.com/matheus3301/cipherlog/internal/dbx"
	"github.com/matheus3301/cipherlog/internal/protocol"
	"github.com/matheus3301/cipherlog/internal/status"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB is an open store.
type DB struct {
	*sql.DB

	wmu    sync.Mutex
	sealer *cryptox.Sealer
	backup protocol.IdentityBackup
	events bus.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// Options configures an opened store. The zero value is usable.
type Options struct {
	Events    bus.Publisher
	Logger    *zap.Logger
	Lifecycle *status.Machine
	Clock     func() time.Time
}

func openConn(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, storageErr("open db", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, storageErr("ping db", err)
	}
	return db, nil
}

func newDB(conn *sql.DB, opts Options) *DB {
	db := &DB{DB: conn, events: opts.Events, logger: opts.Logger, now: opts.Clock}
	if db.events == nil {
		db.events = bus.Nop{}
	}
	if db.logger == nil {
		db.logger = zap.NewNop()
	}
	if db.now == nil {
		db.now = time.Now
	}
	return db
}

func (db *DB) migrate(ctx context.Context, lc *status.Machine) error {
	if lc != nil {
		if err := lc.Transition(status.Migrating); err != nil {
			return err
		}
	}
	_, err := NewSchemaManager(db.DB, db.logger).EnsureSchema(ctx)
	return err
}

func ready(lc *status.Machine, err error) error {
	if lc == nil {
		return err
	}
	if err != nil {
		_ = lc.Transition(status.Failed)
		return err
	}
	return lc.Transition(status.Ready)
}

// Create initializes a new store at path owned by the given identity.
func Create(ctx context.Context, path, password string, self protocol.ContactID, keys protocol.KeyPair, opts Options) (*DB, error) {
	conn, err := openConn(path)
	if err != nil {
		_ = ready(opts.Lifecycle, err)
		return nil, err
	}
	db := newDB(conn, opts)
	if err := ready(opts.Lifecycle, db.initialize(ctx, password, self, keys, opts.Lifecycle)); err != nil {
		_ = conn.Close()
		return nil, err
	}
	db.logger.Info("store created", zap.String("path", path), zap.String("self", self.String()))
	return db, nil
}

func (db *DB) initialize(ctx context.Context, password string, self protocol.ContactID, keys protocol.KeyPair, lc *status.Machine) error {
	if err := db.migrate(ctx, lc); err != nil {
		return err
	}

	salt, err := cryptox.NewSalt()
	if err != nil {
		return err
	}
	key := cryptox.DeriveKey([]byte(password), salt)
	if db.sealer, err = cryptox.NewSealer(key); err != nil {
		return err
	}
	backup := protocol.IdentityBackup{ID: self, Keys: keys}
	var backupSalt [protocol.BackupSaltLength]byte
	copy(backupSalt[:], salt)
	payload, err := backup.MarshalDecoded(backupSalt)
	if err != nil {
		return err
	}

	err = db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := readRawOption(ctx, tx, optionKeySalt); err == nil {
			return ErrStoreExists
		} else if !errors.Is(err, ErrUnknownOption) {
			return err
		}
		if err := writeOption(ctx, tx, optionKeySalt, valueRaw, salt, true, db.now()); err != nil {
			return err
		}
		if err := writeOption(ctx, tx, optionKeyVerifier, valueRaw, cryptox.MakeVerifier(key), true, db.now()); err != nil {
			return err
		}
		sealed, err := db.sealer.Seal(payload)
		if err != nil {
			return err
		}
		if err := writeOption(ctx, tx, optionKeyBackup, valueSealed, sealed, true, db.now()); err != nil {
			return err
		}
		return insertContact(ctx, tx, NewContact{ID: self, PublicKey: keys.Public, Verification: protocol.VerificationFullyVerified}, db.now())
	})
	if err != nil {
		return err
	}
	db.backup = backup
	return nil
}

// Open opens an existing store, bringing its schema up to date and checking
// the password. A wrong password or a file that was never initialized both
// yield ErrInvalidPasswordOrStore.
func Open(ctx context.Context, path, password string, opts Options) (*DB, error) {
	conn, err := openConn(path)
	if err != nil {
		_ = ready(opts.Lifecycle, err)
		return nil, err
	}
	db := newDB(conn, opts)
	if err := ready(opts.Lifecycle, db.unlock(ctx, password, opts.Lifecycle)); err != nil {
		_ = conn.Close()
		return nil, err
	}
	db.logger.Info("store opened", zap.String("path", path), zap.String("self", db.backup.ID.String()))
	return db, nil
}

func (db *DB) unlock(ctx context.Context, password string, lc *status.Machine) error {
	if err := db.migrate(ctx, lc); err != nil {
		return err
	}

	salt, err := readRawOption(ctx, db.DB, optionKeySalt)
	if errors.Is(err, ErrUnknownOption) {
		return fmt.Errorf("%w: store has no key material", ErrInvalidPasswordOrStore)
	}
	if err != nil {
		return err
	}
	verifier, err := readRawOption(ctx, db.DB, optionKeyVerifier)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPasswordOrStore, err)
	}
	key := cryptox.DeriveKey([]byte(password), salt)
	if !cryptox.CheckVerifier(key, verifier) {
		return ErrInvalidPasswordOrStore
	}
	if db.sealer, err = cryptox.NewSealer(key); err != nil {
		return err
	}

	sealed, err := readRawOption(ctx, db.DB, optionKeyBackup)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPasswordOrStore, err)
	}
	payload, err := db.sealer.Open(sealed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPasswordOrStore, err)
	}
	backup, _, err := protocol.UnmarshalDecodedBackup(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPasswordOrStore, err)
	}
	ok, err := contactExists(ctx, db.DB, backup.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: self contact %s missing", ErrInvalidPasswordOrStore, backup.ID)
	}
	db.backup = backup
	return nil
}

// SelfContact is the identity of the local account.
func (db *DB) SelfContact() protocol.ContactID { return db.backup.ID }

// Backup returns the decoded identity backup: the self id and its key pair.
func (db *DB) Backup() protocol.IdentityBackup { return db.backup }

// write runs fn in a transaction while holding the writer lock.
func (db *DB) write(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	db.wmu.Lock()
	defer db.wmu.Unlock()
	return dbx.WithTx(ctx, db.DB, nil, fn)
}

// read runs fn in a transaction so that multi-statement reads see one snapshot.
func (db *DB) read(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, db.DB, nil, fn)
}

func (db *DB) emit(kind string, payload any) {
	db.events.Publish(bus.Event{Kind: kind, Timestamp: db.now(), Payload: payload})
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
