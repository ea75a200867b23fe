package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/telmaren/mailbase/internal/model"
)

// DefaultBucket is the blob store bucket holding message content.
const DefaultBucket = "default"

// BlobStore is the content-addressed object store for message bytes. The
// reference returned by Put is derived from the content, so storing the same
// bytes twice yields the same reference.
type BlobStore interface {
	Put(ctx context.Context, bucket string, data []byte) (ref string, err error)
	// Get returns the stored bytes, errs.ErrNotFound if the reference is
	// unknown.
	Get(ctx context.Context, bucket string, ref string) ([]byte, error)
}

// ContentSource retrieves message content written under one encoding
// generation. Retrieve returns errs.ErrNotFound when the message was not
// written under this generation, which sends the resolver to the next
// source in its fallback chain.
type ContentSource interface {
	Retrieve(ctx context.Context, messageID uuid.UUID, g model.FetchGranularity) (headers, body []byte, err error)
}

// ContentStore is the current content generation: the only one new messages
// are written to.
type ContentStore interface {
	ContentSource

	// Save persists the message content and returns the reference of the
	// stored header blob for embedding into index rows.
	Save(ctx context.Context, m *model.Message) (headerRef string, err error)
}
