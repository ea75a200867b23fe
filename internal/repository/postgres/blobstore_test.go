package postgres

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/telmaren/mailbase/internal/errs"
)

func TestBlobStore_Put_RefIsContentDigest(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewBlobStore(db)

	ctx := context.Background()
	data := []byte("Subject: hi\r\n\r\n")
	sum := blake2b.Sum256(data)
	want := hex.EncodeToString(sum[:])

	mock.ExpectExec(`INSERT INTO blobs \(bucket, blob_id, data\) VALUES \(\$1,\$2,\$3\) ON CONFLICT DO NOTHING`).
		WithArgs("default", want, data).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ref, err := s.Put(ctx, "default", data)
	require.NoError(t, err)
	require.Equal(t, want, ref)
}

func TestBlobStore_Put_DuplicateKeepsRef(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewBlobStore(db)

	ctx := context.Background()
	data := []byte("same bytes")
	sum := blake2b.Sum256(data)
	want := hex.EncodeToString(sum[:])

	// Second put of the same content hits the conflict arm: zero rows, same ref.
	mock.ExpectExec(`INSERT INTO blobs`).
		WithArgs("default", want, data).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	ref, err := s.Put(ctx, "default", data)
	require.NoError(t, err)
	require.Equal(t, want, ref)
}

func TestBlobStore_Get_OK_And_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewBlobStore(db)

	ctx := context.Background()

	mock.ExpectQuery(`SELECT data FROM blobs WHERE bucket=\$1 AND blob_id=\$2`).
		WithArgs("default", "ref1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte("payload")))
	data, err := s.Get(ctx, "default", "ref1")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)

	mock.ExpectQuery(`SELECT data FROM blobs WHERE bucket=\$1 AND blob_id=\$2`).
		WithArgs("default", "ref2").
		WillReturnError(pgx.ErrNoRows)
	_, err = s.Get(ctx, "default", "ref2")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestBlobStore_Put_ExecErr(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewBlobStore(db)

	mock.ExpectExec(`INSERT INTO blobs`).
		WithArgs("default", pgxmock.AnyArg(), []byte("x")).
		WillReturnError(errors.New("boom"))

	_, err := s.Put(context.Background(), "default", []byte("x"))
	require.Error(t, err)
}
