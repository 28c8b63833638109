package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/cipherlog/internal/dbx"
)

func (db *DB) putMedia(ctx context.Context, q dbx.DBTX, data []byte) (string, error) {
	sealed, err := db.sealer.Seal(data)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = q.ExecContext(ctx, `INSERT INTO media (id, data, size, created_at) VALUES (?, ?, ?, ?)`,
		id, sealed, len(data), toMillis(db.now()))
	if err != nil {
		return "", storageErr("insert media", err)
	}
	return id, nil
}

func (db *DB) loadMedia(ctx context.Context, q dbx.DBTX, id string) ([]byte, error) {
	var sealed []byte
	err := q.QueryRowContext(ctx, `SELECT data FROM media WHERE id = ?`, id).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlob, id)
	}
	if err != nil {
		return nil, storageErr("get media", err)
	}
	data, err := db.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("open media %s: %w", id, err)
	}
	return data, nil
}

func removeMedia(ctx context.Context, q dbx.DBTX, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete media", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownBlob, id)
	}
	return nil
}

// PutMedia stores data under a freshly generated id.
func (db *DB) PutMedia(ctx context.Context, data []byte) (string, error) {
	var id string
	err := db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		id, err = db.putMedia(ctx, tx, data)
		return err
	})
	return id, err
}

// Media returns the bytes stored under id.
func (db *DB) Media(ctx context.Context, id string) ([]byte, error) {
	return db.loadMedia(ctx, db.DB, id)
}

// RemoveMedia deletes a blob. References to it are the caller's business.
func (db *DB) RemoveMedia(ctx context.Context, id string) error {
	return db.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return removeMedia(ctx, tx, id)
	})
}

// MediaItemCount counts stored blobs.
func (db *DB) MediaItemCount(ctx context.Context) (int, error) {
	return db.count(ctx, "media")
}
