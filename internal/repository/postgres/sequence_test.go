package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/telmaren/mailbase/internal/errs"
	"github.com/telmaren/mailbase/internal/model"
)

func TestUIDProvider_NextUID_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	p := NewUIDProvider(db)

	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`INSERT INTO mailbox_uid_seq AS s`).
		WithArgs(mailboxID, int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"next_uid"}).AddRow(int64(42)))

	uid, err := p.NextUID(ctx, mailboxID)
	require.NoError(t, err)
	require.Equal(t, model.UID(42), uid)
}

func TestUIDProvider_NextUID_AllocationErr(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	p := NewUIDProvider(db)

	mailboxID := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`INSERT INTO mailbox_uid_seq AS s`).
		WithArgs(mailboxID, int64(1)).
		WillReturnError(errors.New("down"))

	_, err := p.NextUID(context.Background(), mailboxID)
	require.ErrorIs(t, err, errs.ErrAllocation)

	var allocErr *errs.AllocationError
	require.ErrorAs(t, err, &allocErr)
	require.Equal(t, mailboxID, allocErr.Mailbox)
	require.Equal(t, "uid", allocErr.Resource)
}

func TestUIDProvider_NextUIDs_Consecutive(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	p := NewUIDProvider(db)

	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`INSERT INTO mailbox_uid_seq AS s`).
		WithArgs(mailboxID, int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"next_uid"}).AddRow(int64(10)))

	uids, err := p.NextUIDs(ctx, mailboxID, 3)
	require.NoError(t, err)
	require.Equal(t, []model.UID{8, 9, 10}, uids)
}

func TestUIDProvider_NextUIDs_BadCount(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	p := NewUIDProvider(db)

	_, err := p.NextUIDs(context.Background(), uuid.Must(uuid.NewV4()), 0)
	require.ErrorIs(t, err, errs.ErrAllocation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestModSeqProvider_NextModSeq_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	p := NewModSeqProvider(db)

	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`INSERT INTO mailbox_modseq_seq AS s`).
		WithArgs(mailboxID).
		WillReturnRows(pgxmock.NewRows([]string{"next_modseq"}).AddRow(int64(7)))

	modSeq, err := p.NextModSeq(ctx, mailboxID)
	require.NoError(t, err)
	require.Equal(t, model.ModSeq(7), modSeq)
}

func TestModSeqProvider_NextModSeq_AllocationErr(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	p := NewModSeqProvider(db)

	mock.ExpectQuery(`INSERT INTO mailbox_modseq_seq AS s`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(errors.New("down"))

	_, err := p.NextModSeq(context.Background(), uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrAllocation)
}

func TestModSeqProvider_HighestModSeq_OK_And_Fresh(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	p := NewModSeqProvider(db)

	ctx := context.Background()
	mailboxID := uuid.Must(uuid.NewV4())

	// OK
	mock.ExpectQuery(`SELECT next_modseq FROM mailbox_modseq_seq WHERE mailbox_id=\$1`).
		WithArgs(mailboxID).
		WillReturnRows(pgxmock.NewRows([]string{"next_modseq"}).AddRow(int64(33)))
	modSeq, err := p.HighestModSeq(ctx, mailboxID)
	require.NoError(t, err)
	require.Equal(t, model.ModSeq(33), modSeq)

	// Never written: zero, no error
	mock.ExpectQuery(`SELECT next_modseq FROM mailbox_modseq_seq WHERE mailbox_id=\$1`).
		WithArgs(mailboxID).
		WillReturnError(pgx.ErrNoRows)
	modSeq, err = p.HighestModSeq(ctx, mailboxID)
	require.NoError(t, err)
	require.Equal(t, model.ModSeq(0), modSeq)
}
