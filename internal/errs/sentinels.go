// Package errs contains sentinel errors used across layers for stable error
// mapping.
package errs

import (
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
)

var (
	// ErrNotFound indicates the requested row or blob does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a conditional insert lost to an existing row.
	ErrAlreadyExists = errors.New("already exists")

	// ErrContentMissing indicates message content was found under neither
	// content generation. Fatal for the fetch in progress.
	ErrContentMissing = errors.New("message content missing")

	// ErrAllocation indicates a sequence provider could not produce the next
	// value. Fatal for the add/copy/move/flag batch in progress.
	ErrAllocation = errors.New("sequence allocation failed")
)

// AllocationError reports which allocator failed for which mailbox. It
// matches ErrAllocation under errors.Is.
type AllocationError struct {
	Mailbox  uuid.UUID
	Resource string // "uid" or "modseq"
	Err      error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocate %s for mailbox %s: %v", e.Resource, e.Mailbox, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// Is makes every AllocationError match the ErrAllocation sentinel.
func (e *AllocationError) Is(target error) bool { return target == ErrAllocation }
