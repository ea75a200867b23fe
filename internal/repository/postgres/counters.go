package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/telmaren/mailbase/internal/errs"
	"github.com/telmaren/mailbase/internal/model"
)

// CounterStore implements the message-count projection.
type CounterStore struct{ db *DB }

// NewCounterStore constructs the counter projection.
func NewCounterStore(db *DB) *CounterStore { return &CounterStore{db: db} }

// Retrieve returns the stored counters. A mailbox with no row yet yields
// errs.ErrNotFound; callers treat that as an empty mailbox.
func (t *CounterStore) Retrieve(ctx context.Context, mailboxID uuid.UUID) (model.MailboxCounters, error) {
	const q = `SELECT total, unseen FROM mailbox_counters WHERE mailbox_id=$1`
	var total, unseen int64
	if err := t.db.Pool.QueryRow(ctx, q, mailboxID).Scan(&total, &unseen); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MailboxCounters{}, errs.ErrNotFound
		}
		return model.MailboxCounters{}, err
	}
	return model.MailboxCounters{MailboxID: mailboxID, Total: total, Unseen: unseen}, nil
}

// Adjust applies the deltas to the stored counters, creating the row when
// absent. Increments commute, so concurrent adjustments never lose updates;
// they can still drift against the index when a caller dies mid-sequence.
func (t *CounterStore) Adjust(ctx context.Context, mailboxID uuid.UUID, deltaTotal, deltaUnseen int64) error {
	if deltaTotal == 0 && deltaUnseen == 0 {
		return nil
	}
	const q = `
INSERT INTO mailbox_counters AS c (mailbox_id, total, unseen) VALUES ($1,$2,$3)
ON CONFLICT (mailbox_id) DO UPDATE
SET total = c.total + EXCLUDED.total, unseen = c.unseen + EXCLUDED.unseen`
	_, err := t.db.Pool.Exec(ctx, q, mailboxID, deltaTotal, deltaUnseen)
	return err
}

// Store overwrites the counters with absolute values.
func (t *CounterStore) Store(ctx context.Context, c model.MailboxCounters) error {
	const q = `
INSERT INTO mailbox_counters (mailbox_id, total, unseen) VALUES ($1,$2,$3)
ON CONFLICT (mailbox_id) DO UPDATE
SET total = EXCLUDED.total, unseen = EXCLUDED.unseen`
	_, err := t.db.Pool.Exec(ctx, q, c.MailboxID, c.Total, c.Unseen)
	return err
}
