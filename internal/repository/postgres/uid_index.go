package postgres

import (
	"context"
	"math"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/telmaren/mailbase/internal/model"
)

// UIDIndex implements the mirror table on PostgreSQL. All writes are
// unconditional (last write wins): the mirror serves range scans and is not
// the arbiter of mutation races.
type UIDIndex struct{ db *DB }

// NewUIDIndex constructs the mirror table.
func NewUIDIndex(db *DB) *UIDIndex { return &UIDIndex{db: db} }

// Insert stores or overwrites the mirror row for m.
func (t *UIDIndex) Insert(ctx context.Context, m model.MessageMetadata) error {
	const q = `
INSERT INTO message_uid_index (mailbox_id, uid, message_id, mod_seq, flags, thread_id, header_blob, size, body_start_octet, internal_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (mailbox_id, uid) DO UPDATE
SET message_id=EXCLUDED.message_id, mod_seq=EXCLUDED.mod_seq, flags=EXCLUDED.flags,
    thread_id=EXCLUDED.thread_id, header_blob=EXCLUDED.header_blob, size=EXCLUDED.size,
    body_start_octet=EXCLUDED.body_start_octet, internal_date=EXCLUDED.internal_date`
	_, err := t.db.Pool.Exec(ctx, q,
		m.MailboxID, int64(m.UID), m.MessageID, int64(m.ModSeq), []string(m.Flags),
		m.ThreadID, m.HeaderBlob, m.Size, m.BodyStartOctet, m.InternalDate)
	return err
}

// Update overwrites the denormalized flags and modseq after a committed flag
// transition.
func (t *UIDIndex) Update(ctx context.Context, mailboxID uuid.UUID, upd model.UpdatedFlags) error {
	const q = `UPDATE message_uid_index SET flags=$1, mod_seq=$2 WHERE mailbox_id=$3 AND uid=$4`
	_, err := t.db.Pool.Exec(ctx, q, []string(upd.NewFlags), int64(upd.ModSeq), mailboxID, int64(upd.UID))
	return err
}

// Delete removes the mirror row.
func (t *UIDIndex) Delete(ctx context.Context, mailboxID uuid.UUID, uid model.UID) error {
	const q = `DELETE FROM message_uid_index WHERE mailbox_id=$1 AND uid=$2`
	_, err := t.db.Pool.Exec(ctx, q, mailboxID, int64(uid))
	return err
}

// List returns the rows of r in ascending uid order. A limit of 0 means no
// limit.
func (t *UIDIndex) List(ctx context.Context, mailboxID uuid.UUID, r model.MessageRange, limit int) ([]model.MessageMetadata, error) {
	const q = `
SELECT uid, message_id, mod_seq, flags, thread_id, header_blob, size, body_start_octet, internal_date
FROM message_uid_index
WHERE mailbox_id=$1 AND uid>=$2 AND uid<=$3
ORDER BY uid ASC
LIMIT NULLIF($4, 0)`
	rows, err := t.db.Pool.Query(ctx, q, mailboxID, int64(r.From), rangeUpper(r), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MessageMetadata
	for rows.Next() {
		var (
			uid, modSeq    int64
			messageID      uuid.UUID
			flags          []string
			threadID       uuid.UUID
			headerBlob     string
			size           int64
			bodyStartOctet int32
			internalDate   time.Time
		)
		if err := rows.Scan(&uid, &messageID, &modSeq, &flags, &threadID, &headerBlob, &size, &bodyStartOctet, &internalDate); err != nil {
			return nil, err
		}
		out = append(out, model.MessageMetadata{
			MessageIdentity: model.MessageIdentity{
				MailboxID: mailboxID,
				UID:       model.UID(uid),
				MessageID: messageID,
			},
			Flags:          model.NewFlags(flags...),
			ModSeq:         model.ModSeq(modSeq),
			ThreadID:       threadID,
			HeaderBlob:     headerBlob,
			Size:           size,
			BodyStartOctet: bodyStartOctet,
			InternalDate:   internalDate,
		})
	}
	return out, rows.Err()
}

// rangeUpper maps an unbounded range end onto the highest representable uid.
func rangeUpper(r model.MessageRange) int64 {
	if r.To == 0 {
		return math.MaxInt64
	}
	return int64(r.To)
}

// ListUIDs streams every uid of the mailbox in ascending order, calling
// yield for each. The pass is unrestartable: an error from yield abandons
// the remaining rows.
func (t *UIDIndex) ListUIDs(ctx context.Context, mailboxID uuid.UUID, yield func(model.UID) error) error {
	const q = `SELECT uid FROM message_uid_index WHERE mailbox_id=$1 ORDER BY uid ASC`
	rows, err := t.db.Pool.Query(ctx, q, mailboxID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return err
		}
		if err := yield(model.UID(uid)); err != nil {
			return err
		}
	}
	return rows.Err()
}
