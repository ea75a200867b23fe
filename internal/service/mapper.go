// Package service implements the mailbox message mapper: the operation
// surface over the index tables, the optimistic flag mutation engine, the
// counter read-repair policy and the content resolver.
package service

import (
	"context"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/telmaren/mailbase/internal/model"
	"github.com/telmaren/mailbase/internal/repository"
)

// IndexMaintainer fans committed source-of-truth writes out to the mirror
// and projection tables. Implemented by index.Maintainer.
type IndexMaintainer interface {
	OnAdd(ctx context.Context, mailboxID uuid.UUID, metas []model.MessageMetadata) error
	OnFlagsUpdate(ctx context.Context, mailboxID uuid.UUID, upds []model.UpdatedFlags) error
	OnDelete(ctx context.Context, mailboxID uuid.UUID, metas []model.MessageMetadata) error
}

// Stores bundles the storage collaborators the mapper reads and writes.
type Stores struct {
	Messages    repository.MessageIndex
	Mirror      repository.UIDIndex
	Recents     repository.RecentsIndex
	FirstUnseen repository.FirstUnseenIndex
	Applicable  repository.ApplicableFlagsIndex
	Deleted     repository.DeletedIndex
	Counters    repository.CounterStore
	UIDs        repository.UIDProvider
	ModSeqs     repository.ModSeqProvider
	Content     repository.ContentStore
	Legacy      repository.ContentSource
	Blobs       repository.BlobStore
	Recompute   repository.CounterRecomputer
}

// MessageMapper is the mailbox operation surface.
type MessageMapper interface {
	// ListUids streams every uid of the mailbox ascending in a single
	// unrestartable pass.
	ListUids(ctx context.Context, mailboxID uuid.UUID, yield func(model.UID) error) error

	// CountMessages returns the mailbox total, healed the same way as
	// GetCounters.
	CountMessages(ctx context.Context, mailboxID uuid.UUID) (int64, error)

	// GetCounters returns the mailbox aggregate. An invalid stored aggregate
	// is recomputed synchronously before returning; a valid one may still
	// schedule a detached recompute.
	GetCounters(ctx context.Context, mailboxID uuid.UUID) (model.MailboxCounters, error)

	// FindInMailbox returns the messages of r ascending by uid with content
	// resolved at the requested granularity. A limit of 0 means no limit.
	FindInMailbox(ctx context.Context, mailboxID uuid.UUID, r model.MessageRange, g model.FetchGranularity, limit int) ([]*model.Message, error)

	// ListMessagesMetadata returns the metadata rows of r ascending by uid,
	// resolving no content. A limit of 0 means no limit.
	ListMessagesMetadata(ctx context.Context, mailboxID uuid.UUID, r model.MessageRange, limit int) ([]model.MessageMetadata, error)

	// Add appends a new message: content is saved, a fresh uid and modseq
	// are allocated and every index view is populated. m.Metadata is
	// completed in place and also returned.
	Add(ctx context.Context, mailboxID uuid.UUID, m *model.Message) (model.MessageMetadata, error)

	// Copy copies messages into dst under fresh uids and one shared modseq,
	// tagging each copy \Recent. Content is referenced, not rewritten.
	Copy(ctx context.Context, dstMailboxID uuid.UUID, msgs []model.MessageMetadata) ([]model.MessageMetadata, error)

	// Move is Copy followed by deletion of the sources. The two halves are
	// not atomic: a failure after the copy leaves the message present in
	// both mailboxes.
	Move(ctx context.Context, dstMailboxID uuid.UUID, msgs []model.MessageMetadata) ([]model.MessageMetadata, error)

	// DeleteMessages removes the given uids and returns the metadata of the
	// messages actually removed. The batch does not fail wholesale: the
	// returned error joins the per-item failures, if any.
	DeleteMessages(ctx context.Context, mailboxID uuid.UUID, uids []model.UID) (map[model.UID]model.MessageMetadata, error)

	// UpdateFlags applies calc to every message of r and returns the
	// successful transitions in the order the engine finalized them.
	// Transitions still contended after the retry budget are logged and
	// dropped, not surfaced.
	UpdateFlags(ctx context.Context, mailboxID uuid.UUID, calc model.FlagsUpdateCalculator, r model.MessageRange) ([]model.UpdatedFlags, error)

	// ResetRecent clears \Recent from every currently recent message.
	ResetRecent(ctx context.Context, mailboxID uuid.UUID) ([]model.UpdatedFlags, error)

	// GetApplicableFlags returns every flag ever used in the mailbox,
	// \Recent excluded.
	GetApplicableFlags(ctx context.Context, mailboxID uuid.UUID) (model.Flags, error)

	// FindRecentUids returns the uids currently flagged \Recent, ascending.
	FindRecentUids(ctx context.Context, mailboxID uuid.UUID) ([]model.UID, error)

	// FindFirstUnseen returns the lowest unseen uid, false when every
	// message is seen.
	FindFirstUnseen(ctx context.Context, mailboxID uuid.UUID) (model.UID, bool, error)

	// RetrieveDeletedMarked returns the uids of r marked \Deleted, the
	// expunge candidates, ascending.
	RetrieveDeletedMarked(ctx context.Context, mailboxID uuid.UUID, r model.MessageRange) ([]model.UID, error)

	// HighestModSeq returns the mailbox logical clock, 0 for a mailbox that
	// was never written.
	HighestModSeq(ctx context.Context, mailboxID uuid.UUID) (model.ModSeq, error)
}

type MessageMapperImpl struct {
	stores     Stores
	maintainer IndexMaintainer
	sources    []repository.ContentSource
	cfg        Config
	log        *zap.Logger

	repairWG sync.WaitGroup
}

// NewMessageMapper constructs the mapper. Zero config values fall back to
// the defaults.
func NewMessageMapper(stores Stores, maintainer IndexMaintainer, cfg Config, log *zap.Logger) *MessageMapperImpl {
	return &MessageMapperImpl{
		stores:     stores,
		maintainer: maintainer,
		sources:    []repository.ContentSource{stores.Content, stores.Legacy},
		cfg:        cfg.withDefaults(),
		log:        log,
	}
}

// Wait blocks until all detached background work has finished. Intended for
// shutdown and tests.
func (s *MessageMapperImpl) Wait() { s.repairWG.Wait() }

func (s *MessageMapperImpl) ListUids(ctx context.Context, mailboxID uuid.UUID, yield func(model.UID) error) error {
	return s.stores.Mirror.ListUIDs(ctx, mailboxID, yield)
}

func (s *MessageMapperImpl) GetApplicableFlags(ctx context.Context, mailboxID uuid.UUID) (model.Flags, error) {
	return s.stores.Applicable.Retrieve(ctx, mailboxID)
}

func (s *MessageMapperImpl) FindRecentUids(ctx context.Context, mailboxID uuid.UUID) ([]model.UID, error) {
	return s.stores.Recents.List(ctx, mailboxID)
}

func (s *MessageMapperImpl) FindFirstUnseen(ctx context.Context, mailboxID uuid.UUID) (model.UID, bool, error) {
	return s.stores.FirstUnseen.First(ctx, mailboxID)
}

func (s *MessageMapperImpl) RetrieveDeletedMarked(ctx context.Context, mailboxID uuid.UUID, r model.MessageRange) ([]model.UID, error) {
	return s.stores.Deleted.List(ctx, mailboxID, r)
}

func (s *MessageMapperImpl) HighestModSeq(ctx context.Context, mailboxID uuid.UUID) (model.ModSeq, error) {
	return s.stores.ModSeqs.HighestModSeq(ctx, mailboxID)
}

func (s *MessageMapperImpl) CountMessages(ctx context.Context, mailboxID uuid.UUID) (int64, error) {
	c, err := s.GetCounters(ctx, mailboxID)
	if err != nil {
		return 0, err
	}
	return c.Total, nil
}
