package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/telmaren/mailbase/internal/model"
)

// UIDProvider allocates mailbox-monotonic uids. Values are never reused, even
// across failures of the operation that requested them.
type UIDProvider interface {
	NextUID(ctx context.Context, mailboxID uuid.UUID) (model.UID, error)
	// NextUIDs allocates n consecutive uids in one call.
	NextUIDs(ctx context.Context, mailboxID uuid.UUID, n int) ([]model.UID, error)
}

// ModSeqProvider allocates the mailbox logical clock. Allocation is
// serialized per mailbox: concurrent requests observe strictly increasing
// values.
type ModSeqProvider interface {
	NextModSeq(ctx context.Context, mailboxID uuid.UUID) (model.ModSeq, error)
	// HighestModSeq returns the last allocated modseq, 0 for a fresh mailbox.
	HighestModSeq(ctx context.Context, mailboxID uuid.UUID) (model.ModSeq, error)
}

// CounterRecomputer rebuilds a mailbox aggregate from scratch. Invoked
// synchronously when stored counters are invalid and detached by the
// read-repair dice roll.
type CounterRecomputer interface {
	Recompute(ctx context.Context, mailboxID uuid.UUID) error
}
