// Package model defines domain entities used by the mapper, the index
// maintainer and the storage layer.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// UID is a mailbox-scoped, monotonically increasing message identifier.
// A UID is assigned once and never reused within a mailbox.
type UID int64

// ModSeq is the mailbox logical clock. Every successful state change of any
// message in a mailbox is stamped with a strictly higher ModSeq.
type ModSeq int64

// MessageIdentity addresses one message occurrence inside one mailbox.
// MessageID is global and immutable; the same MessageID may appear in
// several mailboxes after a copy.
type MessageIdentity struct {
	MailboxID uuid.UUID
	UID       UID
	MessageID uuid.UUID
}

// MessageMetadata is the unit replicated across index tables: identity,
// flags, modseq and the content locator fields.
type MessageMetadata struct {
	MessageIdentity

	Flags    Flags
	ModSeq   ModSeq
	ThreadID uuid.UUID

	// Content locator. HeaderBlob is the content-addressed reference of the
	// header section; rows written before the current content generation
	// carry none and must be resolved through the content tables.
	HeaderBlob     string
	Size           int64
	BodyStartOctet int32
	InternalDate   time.Time
}

// Complete reports whether the record embeds its header locator, enabling
// metadata and headers fetches without touching the content tables.
func (m MessageMetadata) Complete() bool { return m.HeaderBlob != "" }

// UpdatedFlags records one committed flag transition. It is never mutated
// after the transition is produced.
type UpdatedFlags struct {
	UID       UID
	MessageID uuid.UUID
	ModSeq    ModSeq
	OldFlags  Flags
	NewFlags  Flags
}

// SeenChanged reports whether the transition toggled \Seen.
func (u UpdatedFlags) SeenChanged() bool {
	return u.OldFlags.Has(FlagSeen) != u.NewFlags.Has(FlagSeen)
}

// DeletedChanged reports whether the transition toggled \Deleted.
func (u UpdatedFlags) DeletedChanged() bool {
	return u.OldFlags.Has(FlagDeleted) != u.NewFlags.Has(FlagDeleted)
}

// RecentChanged reports whether the transition toggled \Recent.
func (u UpdatedFlags) RecentChanged() bool {
	return u.OldFlags.Has(FlagRecent) != u.NewFlags.Has(FlagRecent)
}

// MailboxCounters is the derived aggregate over all messages of a mailbox.
type MailboxCounters struct {
	MailboxID uuid.UUID
	Total     int64
	Unseen    int64
}

// EmptyCounters is the aggregate of a mailbox with no messages. A missing
// counter row reads as this value.
func EmptyCounters(mailboxID uuid.UUID) MailboxCounters {
	return MailboxCounters{MailboxID: mailboxID}
}

// Valid reports whether the aggregate is internally consistent. An invalid
// aggregate signals that the incrementally maintained projection drifted and
// must be recomputed before it is served.
func (c MailboxCounters) Valid() bool {
	return c.Total >= 0 && c.Unseen >= 0 && c.Unseen <= c.Total
}

// FetchGranularity is the requested depth of content retrieval.
type FetchGranularity int

const (
	// FetchMetadata resolves no content at all.
	FetchMetadata FetchGranularity = iota
	// FetchHeaders resolves the header section only.
	FetchHeaders
	// FetchFull resolves headers and body.
	FetchFull
)

func (g FetchGranularity) String() string {
	switch g {
	case FetchMetadata:
		return "metadata"
	case FetchHeaders:
		return "headers"
	case FetchFull:
		return "full"
	default:
		return "unknown"
	}
}

// Message is a metadata record together with as much content as the fetch
// granularity asked for. Headers and Body are nil when not resolved.
type Message struct {
	Metadata MessageMetadata
	Headers  []byte
	Body     []byte
}

// Content returns the full raw message, headers followed by body.
func (m *Message) Content() []byte {
	out := make([]byte, 0, len(m.Headers)+len(m.Body))
	out = append(out, m.Headers...)
	return append(out, m.Body...)
}
