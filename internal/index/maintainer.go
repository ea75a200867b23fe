// Package index keeps the denormalized mailbox views aligned with the
// source-of-truth table. Each view has its own failure policy: the uid
// mirror is retried and its failure propagates, every other projection is
// best effort and only logged.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/telmaren/mailbase/internal/model"
	"github.com/telmaren/mailbase/internal/repository"
)

// Mirror write retry policy. The mirror serves every range read, so a lost
// write there is an observable hole rather than a stale hint.
const (
	mirrorMaxRetries   = 5
	mirrorFirstBackoff = 10 * time.Millisecond
	mirrorMaxBackoff   = time.Second
)

// Stores bundles the views the maintainer keeps aligned.
type Stores struct {
	Mirror      repository.UIDIndex
	Recents     repository.RecentsIndex
	FirstUnseen repository.FirstUnseenIndex
	Applicable  repository.ApplicableFlagsIndex
	Deleted     repository.DeletedIndex
	Counters    repository.CounterStore
}

// Maintainer fans a committed source-of-truth write out to the mirror and
// the projections. It never touches the source of truth itself.
type Maintainer struct {
	stores Stores
	log    *zap.Logger

	maxRetries   uint64
	firstBackoff time.Duration
	maxBackoff   time.Duration
}

// NewMaintainer constructs a Maintainer with the default mirror retry policy.
func NewMaintainer(stores Stores, log *zap.Logger) *Maintainer {
	return &Maintainer{
		stores:       stores,
		log:          log,
		maxRetries:   mirrorMaxRetries,
		firstBackoff: mirrorFirstBackoff,
		maxBackoff:   mirrorMaxBackoff,
	}
}

// OnAdd propagates freshly inserted records to the mirror and projections.
// The counter adjustment is batched into a single delta for the whole slice.
func (m *Maintainer) OnAdd(ctx context.Context, mailboxID uuid.UUID, metas []model.MessageMetadata) error {
	for _, meta := range metas {
		err := m.mirrorWrite(ctx, func(ctx context.Context) error {
			return m.stores.Mirror.Insert(ctx, meta)
		})
		if err != nil {
			return fmt.Errorf("mirror insert uid %d: %w", meta.UID, err)
		}
	}

	var deltaTotal, deltaUnseen int64
	var applicable model.Flags
	for _, meta := range metas {
		deltaTotal++
		if !meta.Flags.Has(model.FlagSeen) {
			deltaUnseen++
			m.bestEffort(mailboxID, "first_unseen", m.stores.FirstUnseen.Add(ctx, mailboxID, meta.UID))
		}
		if meta.Flags.Has(model.FlagRecent) {
			m.bestEffort(mailboxID, "recents", m.stores.Recents.Add(ctx, mailboxID, meta.UID))
		}
		if meta.Flags.Has(model.FlagDeleted) {
			m.bestEffort(mailboxID, "deleted", m.stores.Deleted.Add(ctx, mailboxID, meta.UID))
		}
		applicable = applicable.Union(meta.Flags)
	}
	m.bestEffort(mailboxID, "applicable_flags",
		m.stores.Applicable.Union(ctx, mailboxID, applicable.Without(model.FlagRecent)))
	m.bestEffort(mailboxID, "counters",
		m.stores.Counters.Adjust(ctx, mailboxID, deltaTotal, deltaUnseen))
	return nil
}

// OnFlagsUpdate propagates committed flag transitions. Only transitions that
// actually won their compare-and-swap may be passed in.
func (m *Maintainer) OnFlagsUpdate(ctx context.Context, mailboxID uuid.UUID, upds []model.UpdatedFlags) error {
	for _, upd := range upds {
		err := m.mirrorWrite(ctx, func(ctx context.Context) error {
			return m.stores.Mirror.Update(ctx, mailboxID, upd)
		})
		if err != nil {
			return fmt.Errorf("mirror update uid %d: %w", upd.UID, err)
		}
	}

	var deltaUnseen int64
	var applicable model.Flags
	for _, upd := range upds {
		if upd.SeenChanged() {
			if upd.NewFlags.Has(model.FlagSeen) {
				deltaUnseen--
				m.bestEffort(mailboxID, "first_unseen", m.stores.FirstUnseen.Remove(ctx, mailboxID, upd.UID))
			} else {
				deltaUnseen++
				m.bestEffort(mailboxID, "first_unseen", m.stores.FirstUnseen.Add(ctx, mailboxID, upd.UID))
			}
		}
		if upd.RecentChanged() {
			if upd.NewFlags.Has(model.FlagRecent) {
				m.bestEffort(mailboxID, "recents", m.stores.Recents.Add(ctx, mailboxID, upd.UID))
			} else {
				m.bestEffort(mailboxID, "recents", m.stores.Recents.Remove(ctx, mailboxID, upd.UID))
			}
		}
		if upd.DeletedChanged() {
			if upd.NewFlags.Has(model.FlagDeleted) {
				m.bestEffort(mailboxID, "deleted", m.stores.Deleted.Add(ctx, mailboxID, upd.UID))
			} else {
				m.bestEffort(mailboxID, "deleted", m.stores.Deleted.Remove(ctx, mailboxID, upd.UID))
			}
		}
		applicable = applicable.Union(upd.NewFlags)
	}
	m.bestEffort(mailboxID, "applicable_flags",
		m.stores.Applicable.Union(ctx, mailboxID, applicable.Without(model.FlagRecent)))
	m.bestEffort(mailboxID, "counters",
		m.stores.Counters.Adjust(ctx, mailboxID, 0, deltaUnseen))
	return nil
}

// OnDelete propagates expunged records. Projection rows are removed
// unconditionally: deleting an absent row is a no-op, and the projections
// may hold rows the flags no longer account for.
func (m *Maintainer) OnDelete(ctx context.Context, mailboxID uuid.UUID, metas []model.MessageMetadata) error {
	for _, meta := range metas {
		err := m.mirrorWrite(ctx, func(ctx context.Context) error {
			return m.stores.Mirror.Delete(ctx, mailboxID, meta.UID)
		})
		if err != nil {
			return fmt.Errorf("mirror delete uid %d: %w", meta.UID, err)
		}
	}

	var deltaTotal, deltaUnseen int64
	for _, meta := range metas {
		deltaTotal--
		if !meta.Flags.Has(model.FlagSeen) {
			deltaUnseen--
		}
		m.bestEffort(mailboxID, "first_unseen", m.stores.FirstUnseen.Remove(ctx, mailboxID, meta.UID))
		m.bestEffort(mailboxID, "recents", m.stores.Recents.Remove(ctx, mailboxID, meta.UID))
		m.bestEffort(mailboxID, "deleted", m.stores.Deleted.Remove(ctx, mailboxID, meta.UID))
	}
	m.bestEffort(mailboxID, "counters",
		m.stores.Counters.Adjust(ctx, mailboxID, deltaTotal, deltaUnseen))
	return nil
}

func (m *Maintainer) mirrorWrite(ctx context.Context, op func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(m.maxRetries,
		retry.WithCappedDuration(m.maxBackoff,
			retry.NewExponential(m.firstBackoff)))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := op(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (m *Maintainer) bestEffort(mailboxID uuid.UUID, projection string, err error) {
	if err != nil {
		m.log.Warn("projection update failed",
			zap.Stringer("mailbox", mailboxID),
			zap.String("projection", projection),
			zap.Error(err))
	}
}
