package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/telmaren/mailbase/internal/errs"
	"github.com/telmaren/mailbase/internal/model"
	"github.com/telmaren/mailbase/internal/repository"
)

// MessageIndex implements the source-of-truth table on PostgreSQL. The
// compare-and-swap primitive is a conditional UPDATE guarded by the stored
// modseq; a zero rows-affected count is the lost race.
type MessageIndex struct{ db *DB }

// NewMessageIndex constructs the source-of-truth table.
func NewMessageIndex(db *DB) *MessageIndex { return &MessageIndex{db: db} }

// Insert stores a new record. The insert is conditional on the identity not
// existing yet, so a lost insert race surfaces as errs.ErrAlreadyExists
// instead of silently overwriting.
func (t *MessageIndex) Insert(ctx context.Context, m model.MessageMetadata) error {
	const q = `
INSERT INTO message_index (message_id, mailbox_id, uid, mod_seq, flags, thread_id, header_blob, size, body_start_octet, internal_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT DO NOTHING`
	tag, err := t.db.Pool.Exec(ctx, q,
		m.MessageID, m.MailboxID, int64(m.UID), int64(m.ModSeq), []string(m.Flags),
		m.ThreadID, m.HeaderBlob, m.Size, m.BodyStartOctet, m.InternalDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrAlreadyExists
	}
	return nil
}

// Update applies a flag transition if and only if the stored modseq still
// equals expected. A failed compare returns (false, nil).
func (t *MessageIndex) Update(ctx context.Context, upd model.UpdatedFlags, mailboxID uuid.UUID, expected model.ModSeq) (bool, error) {
	const q = `
UPDATE message_index SET flags=$1, mod_seq=$2
WHERE message_id=$3 AND mailbox_id=$4 AND mod_seq=$5`
	tag, err := t.db.Pool.Exec(ctx, q,
		[]string(upd.NewFlags), int64(upd.ModSeq), upd.MessageID, mailboxID, int64(expected))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes the record for the given identity.
func (t *MessageIndex) Delete(ctx context.Context, messageID, mailboxID uuid.UUID) error {
	const q = `DELETE FROM message_index WHERE message_id=$1 AND mailbox_id=$2`
	_, err := t.db.Pool.Exec(ctx, q, messageID, mailboxID)
	return err
}

// Retrieve loads the current record. The strength parameter is part of the
// table contract; a single-node PostgreSQL backend serves both levels with
// the same read.
func (t *MessageIndex) Retrieve(ctx context.Context, messageID, mailboxID uuid.UUID, _ repository.ReadStrength) (model.MessageMetadata, error) {
	const q = `
SELECT uid, mod_seq, flags, thread_id, header_blob, size, body_start_octet, internal_date
FROM message_index WHERE message_id=$1 AND mailbox_id=$2`
	var (
		uid, modSeq    int64
		flags          []string
		threadID       uuid.UUID
		headerBlob     string
		size           int64
		bodyStartOctet int32
		internalDate   time.Time
	)
	row := t.db.Pool.QueryRow(ctx, q, messageID, mailboxID)
	if err := row.Scan(&uid, &modSeq, &flags, &threadID, &headerBlob, &size, &bodyStartOctet, &internalDate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MessageMetadata{}, errs.ErrNotFound
		}
		return model.MessageMetadata{}, err
	}
	return model.MessageMetadata{
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
	}, nil
}
