package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/telmaren/mailbase/internal/model"
)

// UIDIndex is the mirror table keyed by (mailbox, uid), used for range scans.
// It is not the arbiter of correctness: writes are unconditional and
// last-write-wins, and its content may briefly lag the source of truth.
type UIDIndex interface {
	// Insert stores (or overwrites) the mirror row for m.
	Insert(ctx context.Context, m model.MessageMetadata) error

	// Update overwrites the denormalized flags and modseq after a committed
	// flag transition.
	Update(ctx context.Context, mailboxID uuid.UUID, upd model.UpdatedFlags) error

	// Delete removes the mirror row.
	Delete(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error

	// List returns the rows of r in ascending uid order. A limit of 0 means
	// no limit.
	List(ctx context.Context, mailboxID uuid.UUID, r model.MessageRange, limit int) ([]model.MessageMetadata, error)

	// ListUIDs streams every uid of the mailbox in ascending order in a
	// single unrestartable pass, calling yield for each. Iteration stops at
	// the first error returned by yield.
	ListUIDs(ctx context.Context, mailboxID uuid.UUID, yield func(model.UID) error) error
}
