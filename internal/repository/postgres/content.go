package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/telmaren/mailbase/internal/errs"
	"github.com/telmaren/mailbase/internal/model"
	"github.com/telmaren/mailbase/internal/repository"
)

// ContentStoreV3 is the current content generation: header and body live in
// the blob store, the row keeps their references. All new writes land here.
type ContentStoreV3 struct {
	db    *DB
	blobs *BlobStore
}

// NewContentStoreV3 constructs the blob-backed content store.
func NewContentStoreV3(db *DB, blobs *BlobStore) *ContentStoreV3 {
	return &ContentStoreV3{db: db, blobs: blobs}
}

// Save stores the message content and returns the header blob reference.
func (t *ContentStoreV3) Save(ctx context.Context, m *model.Message) (string, error) {
	headerRef, err := t.blobs.Put(ctx, repository.DefaultBucket, m.Headers)
	if err != nil {
		return "", fmt.Errorf("store header blob: %w", err)
	}
	bodyRef, err := t.blobs.Put(ctx, repository.DefaultBucket, m.Body)
	if err != nil {
		return "", fmt.Errorf("store body blob: %w", err)
	}

	const q = `
INSERT INTO message_content_v3 (message_id, header_blob, body_blob, size, body_start_octet)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT DO NOTHING`
	size := int64(len(m.Headers) + len(m.Body))
	bso := int32(len(m.Headers))
	if _, err := t.db.Pool.Exec(ctx, q, m.Metadata.MessageID, headerRef, bodyRef, size, bso); err != nil {
		return "", err
	}
	return headerRef, nil
}

// Retrieve loads content at the requested granularity. A message stored in
// an older generation yields errs.ErrNotFound; a dangling blob reference is
// reported as errs.ErrContentMissing because no other generation can have it.
func (t *ContentStoreV3) Retrieve(ctx context.Context, messageID uuid.UUID, g model.FetchGranularity) ([]byte, []byte, error) {
	const q = `SELECT header_blob, body_blob FROM message_content_v3 WHERE message_id=$1`
	var headerRef, bodyRef string
	if err := t.db.Pool.QueryRow(ctx, q, messageID).Scan(&headerRef, &bodyRef); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, errs.ErrNotFound
		}
		return nil, nil, err
	}
	if g == model.FetchMetadata {
		return nil, nil, nil
	}

	headers, err := t.fetchBlob(ctx, headerRef)
	if err != nil {
		return nil, nil, err
	}
	if g == model.FetchHeaders {
		return headers, nil, nil
	}
	body, err := t.fetchBlob(ctx, bodyRef)
	if err != nil {
		return nil, nil, err
	}
	return headers, body, nil
}

func (t *ContentStoreV3) fetchBlob(ctx context.Context, ref string) ([]byte, error) {
	data, err := t.blobs.Get(ctx, repository.DefaultBucket, ref)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("blob %s: %w", ref, errs.ErrContentMissing)
	}
	return data, err
}

// LegacyContentStore is the previous content generation: the whole message
// lives inline in one row. It is read-only; rows migrate to the current
// generation out of band.
type LegacyContentStore struct{ db *DB }

// NewLegacyContentStore constructs the inline content store.
func NewLegacyContentStore(db *DB) *LegacyContentStore { return &LegacyContentStore{db: db} }

// Retrieve loads content at the requested granularity, errs.ErrNotFound when
// the message never lived in this generation.
func (t *LegacyContentStore) Retrieve(ctx context.Context, messageID uuid.UUID, g model.FetchGranularity) ([]byte, []byte, error) {
	const q = `SELECT content, body_start_octet FROM message_content_v2 WHERE message_id=$1`
	var (
		content []byte
		bso     int32
	)
	if err := t.db.Pool.QueryRow(ctx, q, messageID).Scan(&content, &bso); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, errs.ErrNotFound
		}
		return nil, nil, err
	}
	if g == model.FetchMetadata {
		return nil, nil, nil
	}

	split := int(bso)
	if split < 0 || split > len(content) {
		split = len(content)
	}
	headers := content[:split]
	if g == model.FetchHeaders {
		return headers, nil, nil
	}
	return headers, content[split:], nil
}
