package postgres

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/telmaren/mailbase/internal/errs"
)

// BlobStore keeps immutable payloads keyed by a digest of their content.
// Storing the same bytes twice yields the same reference and a single row.
type BlobStore struct{ db *DB }

// NewBlobStore constructs the blob store.
func NewBlobStore(db *DB) *BlobStore { return &BlobStore{db: db} }

// Put stores data and returns its reference.
func (t *BlobStore) Put(ctx context.Context, bucket string, data []byte) (string, error) {
	sum := blake2b.Sum256(data)
	ref := hex.EncodeToString(sum[:])

	const q = `INSERT INTO blobs (bucket, blob_id, data) VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`
	if _, err := t.db.Pool.Exec(ctx, q, bucket, ref, data); err != nil {
		return "", err
	}
	return ref, nil
}

// Get returns the payload for ref, errs.ErrNotFound when absent.
func (t *BlobStore) Get(ctx context.Context, bucket, ref string) ([]byte, error) {
	const q = `SELECT data FROM blobs WHERE bucket=$1 AND blob_id=$2`
	var data []byte
	if err := t.db.Pool.QueryRow(ctx, q, bucket, ref).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}
