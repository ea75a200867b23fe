package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/telmaren/mailbase/internal/model"
)

// RecentsIndex implements the recent-set projection.
type RecentsIndex struct{ db *DB }

// NewRecentsIndex constructs the recent-set projection.
func NewRecentsIndex(db *DB) *RecentsIndex { return &RecentsIndex{db: db} }

// Add records uid as recent.
func (t *RecentsIndex) Add(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error {
	const q = `INSERT INTO mailbox_recents (mailbox_id, uid) VALUES ($1,$2) ON CONFLICT DO NOTHING`
	_, err := t.db.Pool.Exec(ctx, q, mailboxID, int64(uid))
	return err
}

// Remove drops uid from the recent set.
func (t *RecentsIndex) Remove(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error {
	const q = `DELETE FROM mailbox_recents WHERE mailbox_id=$1 AND uid=$2`
	_, err := t.db.Pool.Exec(ctx, q, mailboxID, int64(uid))
	return err
}

// List returns the recent uids in ascending order.
func (t *RecentsIndex) List(ctx context.Context, mailboxID uuid.UUID) ([]model.UID, error) {
	const q = `SELECT uid FROM mailbox_recents WHERE mailbox_id=$1 ORDER BY uid ASC`
	return listUIDColumn(ctx, t.db, q, mailboxID)
}

// FirstUnseenIndex implements the first-unseen projection.
type FirstUnseenIndex struct{ db *DB }

// NewFirstUnseenIndex constructs the first-unseen projection.
func NewFirstUnseenIndex(db *DB) *FirstUnseenIndex { return &FirstUnseenIndex{db: db} }

// Add records uid as unseen.
func (t *FirstUnseenIndex) Add(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error {
	const q = `INSERT INTO mailbox_first_unseen (mailbox_id, uid) VALUES ($1,$2) ON CONFLICT DO NOTHING`
	_, err := t.db.Pool.Exec(ctx, q, mailboxID, int64(uid))
	return err
}

// Remove drops uid from the unseen set.
func (t *FirstUnseenIndex) Remove(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error {
	const q = `DELETE FROM mailbox_first_unseen WHERE mailbox_id=$1 AND uid=$2`
	_, err := t.db.Pool.Exec(ctx, q, mailboxID, int64(uid))
	return err
}

// First returns the lowest unseen uid, or false when every message is seen.
func (t *FirstUnseenIndex) First(ctx context.Context, mailboxID uuid.UUID) (model.UID, bool, error) {
	const q = `SELECT uid FROM mailbox_first_unseen WHERE mailbox_id=$1 ORDER BY uid ASC LIMIT 1`
	var uid int64
	if err := t.db.Pool.QueryRow(ctx, q, mailboxID).Scan(&uid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return model.UID(uid), true, nil
}

// ApplicableFlagsIndex implements the applicable-flags projection.
type ApplicableFlagsIndex struct{ db *DB }

// NewApplicableFlagsIndex constructs the applicable-flags projection.
func NewApplicableFlagsIndex(db *DB) *ApplicableFlagsIndex { return &ApplicableFlagsIndex{db: db} }

// Union merges flags into the stored set. The union happens inside the
// statement, so concurrent unions cannot drop each other's flags.
func (t *ApplicableFlagsIndex) Union(ctx context.Context, mailboxID uuid.UUID, flags model.Flags) error {
	if len(flags) == 0 {
		return nil
	}
	const q = `
INSERT INTO mailbox_applicable_flags (mailbox_id, flags) VALUES ($1,$2)
ON CONFLICT (mailbox_id) DO UPDATE
SET flags = (SELECT array_agg(DISTINCT f ORDER BY f)
             FROM unnest(mailbox_applicable_flags.flags || EXCLUDED.flags) AS f)`
	_, err := t.db.Pool.Exec(ctx, q, mailboxID, []string(flags))
	return err
}

// Retrieve returns the stored set, empty for an unknown mailbox.
func (t *ApplicableFlagsIndex) Retrieve(ctx context.Context, mailboxID uuid.UUID) (model.Flags, error) {
	const q = `SELECT flags FROM mailbox_applicable_flags WHERE mailbox_id=$1`
	var flags []string
	if err := t.db.Pool.QueryRow(ctx, q, mailboxID).Scan(&flags); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return model.NewFlags(flags...), nil
}

// DeletedIndex implements the deleted-marker projection.
type DeletedIndex struct{ db *DB }

// NewDeletedIndex constructs the deleted-marker projection.
func NewDeletedIndex(db *DB) *DeletedIndex { return &DeletedIndex{db: db} }

// Add marks uid for deletion.
func (t *DeletedIndex) Add(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error {
	const q = `INSERT INTO mailbox_deleted (mailbox_id, uid) VALUES ($1,$2) ON CONFLICT DO NOTHING`
	_, err := t.db.Pool.Exec(ctx, q, mailboxID, int64(uid))
	return err
}

// Remove clears the deletion marker for uid.
func (t *DeletedIndex) Remove(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error {
	const q = `DELETE FROM mailbox_deleted WHERE mailbox_id=$1 AND uid=$2`
	_, err := t.db.Pool.Exec(ctx, q, mailboxID, int64(uid))
	return err
}

// List returns the marked uids inside r in ascending order.
func (t *DeletedIndex) List(ctx context.Context, mailboxID uuid.UUID, r model.MessageRange) ([]model.UID, error) {
	const q = `SELECT uid FROM mailbox_deleted WHERE mailbox_id=$1 AND uid>=$2 AND uid<=$3 ORDER BY uid ASC`
	return listUIDColumn(ctx, t.db, q, mailboxID, int64(r.From), rangeUpper(r))
}

func listUIDColumn(ctx context.Context, db *DB, q string, args ...any) ([]model.UID, error) {
	rows, err := db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UID
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, model.UID(uid))
	}
	return out, rows.Err()
}
