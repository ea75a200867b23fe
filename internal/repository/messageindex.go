// Package repository defines the narrow storage collaborators consumed by
// the mapper: one interface per index table, plus sequence providers, content
// stores and the blob store. Concrete backends live in subpackages.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/telmaren/mailbase/internal/model"
)

// ReadStrength selects the consistency level of an authoritative read.
// The engine reads with ReadStrong when retrying failed flag updates and the
// store is configured for strong write consistency.
type ReadStrength int

const (
	ReadWeak ReadStrength = iota
	ReadStrong
)

// MessageIndex is the source-of-truth table, keyed by message id. It is the
// only table with compare-and-swap semantics and the arbiter of every flag
// mutation race.
type MessageIndex interface {
	// Insert stores a new record, failing with errs.ErrAlreadyExists if the
	// identity is already present.
	Insert(ctx context.Context, m model.MessageMetadata) error

	// Update applies a flag transition only if the stored modseq still equals
	// expected. It returns false (and no error) when the compare fails.
	Update(ctx context.Context, upd model.UpdatedFlags, mailboxID uuid.UUID, expected model.ModSeq) (bool, error)

	// Delete removes the record for the given identity.
	Delete(ctx context.Context, messageID, mailboxID uuid.UUID) error

	// Retrieve loads the current record, errs.ErrNotFound if absent.
	Retrieve(ctx context.Context, messageID, mailboxID uuid.UUID, strength ReadStrength) (model.MessageMetadata, error)
}
