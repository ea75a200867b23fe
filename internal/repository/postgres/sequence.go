package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/telmaren/mailbase/internal/errs"
	"github.com/telmaren/mailbase/internal/model"
)

// UIDProvider allocates uids from a per-mailbox sequence row. The
// upsert-increment runs as one statement, so two concurrent allocations
// can never observe the same value.
type UIDProvider struct{ db *DB }

// NewUIDProvider constructs the uid allocator.
func NewUIDProvider(db *DB) *UIDProvider { return &UIDProvider{db: db} }

const nextUIDQuery = `
INSERT INTO mailbox_uid_seq AS s (mailbox_id, next_uid) VALUES ($1, $2)
ON CONFLICT (mailbox_id) DO UPDATE SET next_uid = s.next_uid + $2
RETURNING next_uid`

// NextUID returns the next uid for the mailbox, starting at 1.
func (t *UIDProvider) NextUID(ctx context.Context, mailboxID uuid.UUID) (model.UID, error) {
	var uid int64
	if err := t.db.Pool.QueryRow(ctx, nextUIDQuery, mailboxID, int64(1)).Scan(&uid); err != nil {
		return 0, &errs.AllocationError{Mailbox: mailboxID, Resource: "uid", Err: err}
	}
	return model.UID(uid), nil
}

// NextUIDs reserves count consecutive uids and returns them in ascending order.
func (t *UIDProvider) NextUIDs(ctx context.Context, mailboxID uuid.UUID, count int) ([]model.UID, error) {
	if count <= 0 {
		return nil, fmt.Errorf("uid allocation count %d: %w", count, errs.ErrAllocation)
	}
	var high int64
	if err := t.db.Pool.QueryRow(ctx, nextUIDQuery, mailboxID, int64(count)).Scan(&high); err != nil {
		return nil, &errs.AllocationError{Mailbox: mailboxID, Resource: "uid", Err: err}
	}
	uids := make([]model.UID, count)
	for i := range uids {
		uids[i] = model.UID(high - int64(count) + int64(i) + 1)
	}
	return uids, nil
}

// ModSeqProvider allocates modification sequences from a per-mailbox
// sequence row.
type ModSeqProvider struct{ db *DB }

// NewModSeqProvider constructs the modseq allocator.
func NewModSeqProvider(db *DB) *ModSeqProvider { return &ModSeqProvider{db: db} }

// NextModSeq returns the next modification sequence for the mailbox.
func (t *ModSeqProvider) NextModSeq(ctx context.Context, mailboxID uuid.UUID) (model.ModSeq, error) {
	const q = `
INSERT INTO mailbox_modseq_seq AS s (mailbox_id, next_modseq) VALUES ($1, 1)
ON CONFLICT (mailbox_id) DO UPDATE SET next_modseq = s.next_modseq + 1
RETURNING next_modseq`
	var modSeq int64
	if err := t.db.Pool.QueryRow(ctx, q, mailboxID).Scan(&modSeq); err != nil {
		return 0, &errs.AllocationError{Mailbox: mailboxID, Resource: "modseq", Err: err}
	}
	return model.ModSeq(modSeq), nil
}

// HighestModSeq returns the last allocated modification sequence, zero when
// the mailbox has never been written.
func (t *ModSeqProvider) HighestModSeq(ctx context.Context, mailboxID uuid.UUID) (model.ModSeq, error) {
	const q = `SELECT next_modseq FROM mailbox_modseq_seq WHERE mailbox_id=$1`
	var modSeq int64
	if err := t.db.Pool.QueryRow(ctx, q, mailboxID).Scan(&modSeq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return model.ModSeq(modSeq), nil
}
