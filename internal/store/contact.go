package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/cipherlog/internal/bus"
	"github.com/matheus3301/cipherlog/internal/dbx"
	"github.com/matheus3301/cipherlog/internal/protocol"
)

// Contact is a snapshot of a known identity.
type Contact struct {
	ID                     protocol.ContactID
	PublicKey              protocol.PublicKey
	Verification           protocol.VerificationStatus
	AccountStatus          protocol.AccountStatus
	AccountStatusCheckedAt time.Time
	FeatureLevel           protocol.FeatureLevel
	FeatureLevelCheckedAt  time.Time
	Nickname               string
	FirstName              string
	LastName               string
	Color                  uint32
	CreatedAt              time.Time
}

// NewContact holds the attributes accepted when a contact is first added.
type NewContact struct {
	ID           protocol.ContactID
	PublicKey    protocol.PublicKey
	Verification protocol.VerificationStatus
	FirstName    string
	LastName     string
	Nickname     string
	Color        uint32
}

func contactExists(ctx context.Context, q dbx.DBTX, id protocol.ContactID) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE identity = ?`, string(id)).Scan(&n); err != nil {
		return false, storageErr("check contact", err)
	}
	return n > 0, nil
}

func requireContacts(ctx context.Context, q dbx.DBTX, ids ...protocol.ContactID) error {
	for _, id := range ids {
		ok, err := contactExists(ctx, q, id)
		if err != nil {
			return err
		}
		if !ok {
			return unknownContact(id)
		}
	}
	return nil
}

func insertContact(ctx context.Context, q dbx.DBTX, c NewContact, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO contacts (identity, public_key, verification, nickname, first_name, last_name, color, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID), c.PublicKey[:], c.Verification.String(), c.Nickname, c.FirstName, c.LastName, c.Color, toMillis(now))
	if err != nil {
		return storageErr("insert contact", err)
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO feature_levels (identity) VALUES (?)`, string(c.ID)); err != nil {
		return storageErr("insert feature level", err)
	}
	return nil
}

// AddContact stores a new contact. Adding a known contact again with the same
// key succeeds without changes; a different key fails with ErrPublicKeyMismatch.
func (db *DB) AddContact(ctx context.Context, c NewContact) error {
	if _, err := protocol.ParseContactID(string(c.ID)); err != nil {
		return err
	}
	added := false
	err := db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var key []byte
		err := tx.QueryRowContext(ctx, `SELECT public_key FROM contacts WHERE identity = ?`, string(c.ID)).Scan(&key)
		switch {
		case err == nil:
			if !bytes.Equal(key, c.PublicKey[:]) {
				return fmt.Errorf("%w: %s", ErrPublicKeyMismatch, c.ID)
			}
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return storageErr("read contact", err)
		}
		added = true
		return insertContact(ctx, tx, c, db.now())
	})
	if err != nil {
		return err
	}
	if added {
		db.emit(bus.ContactChanged, c.ID)
	}
	return nil
}

// HasContact reports whether id has been observed.
func (db *DB) HasContact(ctx context.Context, id protocol.ContactID) (bool, error) {
	return contactExists(ctx, db.DB, id)
}

// Contact returns the stored record of id.
func (db *DB) Contact(ctx context.Context, id protocol.ContactID) (*Contact, error) {
	var (
		c            Contact
		key          []byte
		verification string
		statusAt     int64
		levelAt      int64
		created      int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT c.identity, c.public_key, c.verification, c.account_status, c.account_status_checked_at,
			COALESCE(f.feature_level, -1), COALESCE(f.checked_at, 0),
			c.nickname, c.first_name, c.last_name, c.color, c.created_at
		FROM contacts c LEFT JOIN feature_levels f ON f.identity = c.identity
		WHERE c.identity = ?`, string(id)).
		Scan(&c.ID, &key, &verification, &c.AccountStatus, &statusAt,
			&c.FeatureLevel, &levelAt,
			&c.Nickname, &c.FirstName, &c.LastName, &c.Color, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, unknownContact(id)
	}
	if err != nil {
		return nil, storageErr("get contact", err)
	}
	if c.PublicKey, err = protocol.PublicKeyFromBytes(key); err != nil {
		return nil, err
	}
	if c.Verification, err = protocol.ParseVerificationStatus(verification); err != nil {
		return nil, err
	}
	c.AccountStatusCheckedAt = fromMillis(statusAt)
	c.FeatureLevelCheckedAt = fromMillis(levelAt)
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

// ContactPublicKey returns the public key of id.
func (db *DB) ContactPublicKey(ctx context.Context, id protocol.ContactID) (protocol.PublicKey, error) {
	var key []byte
	err := db.QueryRowContext(ctx, `SELECT public_key FROM contacts WHERE identity = ?`, string(id)).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.PublicKey{}, unknownContact(id)
	}
	if err != nil {
		return protocol.PublicKey{}, storageErr("get public key", err)
	}
	return protocol.PublicKeyFromBytes(key)
}

// ContactCount counts all known contacts, including self.
func (db *DB) ContactCount(ctx context.Context) (int, error) {
	return db.count(ctx, "contacts")
}

// KnownContacts lists every contact id, including self.
func (db *DB) KnownContacts(ctx context.Context) ([]protocol.ContactID, error) {
	rows, err := db.QueryContext(ctx, `SELECT identity FROM contacts ORDER BY identity`)
	if err != nil {
		return nil, storageErr("list contacts", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []protocol.ContactID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan contact", err)
		}
		ids = append(ids, protocol.ContactID(id))
	}
	return ids, rows.Err()
}

// KnownContactsWithPublicKeys maps every contact to its key.
func (db *DB) KnownContactsWithPublicKeys(ctx context.Context) (map[protocol.ContactID]protocol.PublicKey, error) {
	rows, err := db.QueryContext(ctx, `SELECT identity, public_key FROM contacts`)
	if err != nil {
		return nil, storageErr("list contacts", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[protocol.ContactID]protocol.PublicKey)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, storageErr("scan contact", err)
		}
		key, err := protocol.PublicKeyFromBytes(raw)
		if err != nil {
			return nil, err
		}
		out[protocol.ContactID(id)] = key
	}
	return out, rows.Err()
}

// KnownContactsWithNicknames maps contacts to nicknames, optionally including self.
func (db *DB) KnownContactsWithNicknames(ctx context.Context, withSelf bool) (map[protocol.ContactID]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT identity, nickname FROM contacts`)
	if err != nil {
		return nil, storageErr("list contacts", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[protocol.ContactID]string)
	for rows.Next() {
		var id, nick string
		if err := rows.Scan(&id, &nick); err != nil {
			return nil, storageErr("scan contact", err)
		}
		if !withSelf && protocol.ContactID(id) == db.SelfContact() {
			continue
		}
		out[protocol.ContactID(id)] = nick
	}
	return out, rows.Err()
}

// updateContact sets one column of a contact. column is never user input.
func (db *DB) updateContact(ctx context.Context, id protocol.ContactID, set string, args ...any) error {
	err := db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `UPDATE contacts SET `+set+` WHERE identity = ?`, append(args, string(id))...)
		if err != nil {
			return storageErr("update contact", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return unknownContact(id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	db.emit(bus.ContactChanged, id)
	return nil
}

func (db *DB) SetContactNickname(ctx context.Context, id protocol.ContactID, nickname string) error {
	return db.updateContact(ctx, id, "nickname = ?", nickname)
}

func (db *DB) SetContactFirstName(ctx context.Context, id protocol.ContactID, name string) error {
	return db.updateContact(ctx, id, "first_name = ?", name)
}

func (db *DB) SetContactLastName(ctx context.Context, id protocol.ContactID, name string) error {
	return db.updateContact(ctx, id, "last_name = ?", name)
}

func (db *DB) SetContactColor(ctx context.Context, id protocol.ContactID, color uint32) error {
	return db.updateContact(ctx, id, "color = ?", color)
}

func (db *DB) SetContactVerificationStatus(ctx context.Context, id protocol.ContactID, v protocol.VerificationStatus) error {
	return db.updateContact(ctx, id, "verification = ?", v.String())
}

// SetContactAccountStatus also records the time of the check.
func (db *DB) SetContactAccountStatus(ctx context.Context, id protocol.ContactID, s protocol.AccountStatus) error {
	return db.updateContact(ctx, id, "account_status = ?, account_status_checked_at = ?", int(s), toMillis(db.now()))
}

// SetContactFeatureLevel also records the time of the check.
func (db *DB) SetContactFeatureLevel(ctx context.Context, id protocol.ContactID, level protocol.FeatureLevel) error {
	err := db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := requireContacts(ctx, tx, id); err != nil {
			return err
		}
		return upsertFeatureLevel(ctx, tx, id, level, db.now())
	})
	if err != nil {
		return err
	}
	db.emit(bus.ContactChanged, id)
	return nil
}

func upsertFeatureLevel(ctx context.Context, q dbx.DBTX, id protocol.ContactID, level protocol.FeatureLevel, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO feature_levels (identity, feature_level, checked_at) VALUES (?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			feature_level = excluded.feature_level,
			checked_at = excluded.checked_at`,
		string(id), int(level), toMillis(now))
	if err != nil {
		return storageErr("set feature level", err)
	}
	return nil
}

// SetContactAccountStatusBatch applies all statuses in one transaction.
// Ids that are not known are skipped.
func (db *DB) SetContactAccountStatusBatch(ctx context.Context, statuses map[protocol.ContactID]protocol.AccountStatus) error {
	var changed []protocol.ContactID
	err := db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		changed = changed[:0]
		now := toMillis(db.now())
		for id, s := range statuses {
			res, err := tx.ExecContext(ctx,
				`UPDATE contacts SET account_status = ?, account_status_checked_at = ? WHERE identity = ?`,
				int(s), now, string(id))
			if err != nil {
				return storageErr("update account status", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				changed = append(changed, id)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range changed {
		db.emit(bus.ContactChanged, id)
	}
	return nil
}

// SetContactFeatureLevelBatch applies all levels in one transaction.
// Ids that are not known are skipped.
func (db *DB) SetContactFeatureLevelBatch(ctx context.Context, levels map[protocol.ContactID]protocol.FeatureLevel) error {
	var changed []protocol.ContactID
	err := db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		changed = changed[:0]
		for id, level := range levels {
			ok, err := contactExists(ctx, tx, id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := upsertFeatureLevel(ctx, tx, id, level, db.now()); err != nil {
				return err
			}
			changed = append(changed, id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range changed {
		db.emit(bus.ContactChanged, id)
	}
	return nil
}

// ContactsRequiringFeatureLevelCheck lists contacts other than self whose
// feature level was never checked or was checked longer than maxAge ago.
func (db *DB) ContactsRequiringFeatureLevelCheck(ctx context.Context, maxAge time.Duration) ([]protocol.ContactID, error) {
	return db.staleContacts(ctx, `
		SELECT c.identity FROM contacts c LEFT JOIN feature_levels f ON f.identity = c.identity
		WHERE c.identity != ? AND (COALESCE(f.checked_at, 0) = 0 OR f.checked_at < ?)
		ORDER BY c.identity`, maxAge)
}

// ContactsRequiringAccountStatusCheck is the account status counterpart of
// ContactsRequiringFeatureLevelCheck.
func (db *DB) ContactsRequiringAccountStatusCheck(ctx context.Context, maxAge time.Duration) ([]protocol.ContactID, error) {
	return db.staleContacts(ctx, `
		SELECT identity FROM contacts
		WHERE identity != ? AND (account_status_checked_at = 0 OR account_status_checked_at < ?)
		ORDER BY identity`, maxAge)
}

func (db *DB) staleContacts(ctx context.Context, query string, maxAge time.Duration) ([]protocol.ContactID, error) {
	cutoff := db.now().Add(-maxAge).UnixMilli()
	rows, err := db.QueryContext(ctx, query, string(db.SelfContact()), cutoff)
	if err != nil {
		return nil, storageErr("list stale contacts", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []protocol.ContactID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan contact", err)
		}
		ids = append(ids, protocol.ContactID(id))
	}
	return ids, rows.Err()
}

func (db *DB) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, storageErr("count "+table, err)
	}
	return n, nil
}
