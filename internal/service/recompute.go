package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/telmaren/mailbase/internal/model"
	"github.com/telmaren/mailbase/internal/repository"
)

// CounterRecomputerImpl rebuilds mailbox counters from a full scan of the
// mirror and overwrites the stored aggregate with the result.
type CounterRecomputerImpl struct {
	mirror   repository.UIDIndex
	counters repository.CounterStore
	log      *zap.Logger
}

// NewCounterRecomputer constructs the recompute service.
func NewCounterRecomputer(mirror repository.UIDIndex, counters repository.CounterStore, log *zap.Logger) *CounterRecomputerImpl {
	return &CounterRecomputerImpl{mirror: mirror, counters: counters, log: log}
}

// Recompute counts the mailbox from scratch and stores the result. Writes
// racing the scan can make the stored value stale again immediately; the
// next repair pass converges it.
func (s *CounterRecomputerImpl) Recompute(ctx context.Context, mailboxID uuid.UUID) error {
	c := model.EmptyCounters(mailboxID)
	metas, err := s.mirror.List(ctx, mailboxID, model.RangeAll(), 0)
	if err != nil {
		return fmt.Errorf("scan mailbox %s: %w", mailboxID, err)
	}
	for _, meta := range metas {
		c.Total++
		if !meta.Flags.Has(model.FlagSeen) {
			c.Unseen++
		}
	}
	if err := s.counters.Store(ctx, c); err != nil {
		return fmt.Errorf("store counters for %s: %w", mailboxID, err)
	}
	s.log.Info("mailbox counters recomputed",
		zap.Stringer("mailbox", mailboxID),
		zap.Int64("total", c.Total),
		zap.Int64("unseen", c.Unseen))
	return nil
}
