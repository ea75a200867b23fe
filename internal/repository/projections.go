package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/telmaren/mailbase/internal/model"
)

// The projection tables below are best-effort views: their writes may be
// dropped under failure and their content may lag behind the source of
// truth. Readers tolerate stale hints; counters are healed by read-repair.

// RecentsIndex tracks the uids currently carrying \Recent.
type RecentsIndex interface {
	Add(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error
	Remove(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error
	List(ctx context.Context, mailboxID uuid.UUID) ([]model.UID, error)
}

// FirstUnseenIndex tracks the uids not carrying \Seen; the interesting read
// is the smallest one.
type FirstUnseenIndex interface {
	Add(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error
	Remove(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error
	// First returns the lowest unseen uid and true, or false when every
	// message is seen.
	First(ctx context.Context, mailboxID uuid.UUID) (model.UID, bool, error)
}

// ApplicableFlagsIndex accumulates every flag ever used in a mailbox.
// \Recent is never recorded here.
type ApplicableFlagsIndex interface {
	// Union merges flags into the stored set.
	Union(ctx context.Context, mailboxID uuid.UUID, flags model.Flags) error
	Retrieve(ctx context.Context, mailboxID uuid.UUID) (model.Flags, error)
}

// DeletedIndex tracks the uids marked \Deleted, the expunge candidates.
type DeletedIndex interface {
	Add(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error
	Remove(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error
	List(ctx context.Context, mailboxID uuid.UUID, r model.MessageRange) ([]model.UID, error)
}

// CounterStore holds the incrementally maintained mailbox aggregate.
type CounterStore interface {
	// Retrieve loads the stored aggregate, errs.ErrNotFound if absent.
	Retrieve(ctx context.Context, mailboxID uuid.UUID) (model.MailboxCounters, error)

	// Adjust applies deltas to the stored aggregate, creating the row when
	// missing.
	Adjust(ctx context.Context, mailboxID uuid.UUID, deltaTotal, deltaUnseen int64) error

	// Store overwrites the aggregate with an absolute value. Used by
	// recompute.
	Store(ctx context.Context, c model.MailboxCounters) error
}
