package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/telmaren/mailbase/internal/errs"
	"github.com/telmaren/mailbase/internal/model"
)

// GetCounters serves the counter projection with read-repair. An invalid
// aggregate is recomputed synchronously and re-read before returning. A
// valid one may still win the dice roll and schedule a detached recompute
// that never blocks or fails the caller.
func (s *MessageMapperImpl) GetCounters(ctx context.Context, mailboxID uuid.UUID) (model.MailboxCounters, error) {
	c, err := s.readCounters(ctx, mailboxID)
	if err != nil {
		return model.MailboxCounters{}, err
	}

	if !c.Valid() {
		if err := s.stores.Recompute.Recompute(ctx, mailboxID); err != nil {
			return model.MailboxCounters{}, fmt.Errorf("recompute counters for %s: %w", mailboxID, err)
		}
		return s.readCounters(ctx, mailboxID)
	}

	if s.shouldDetachedRepair(c) {
		s.detachedRepair(ctx, mailboxID)
	}
	return c, nil
}

// readCounters treats a missing counter row as an empty mailbox.
func (s *MessageMapperImpl) readCounters(ctx context.Context, mailboxID uuid.UUID) (model.MailboxCounters, error) {
	c, err := s.stores.Counters.Retrieve(ctx, mailboxID)
	if errors.Is(err, errs.ErrNotFound) {
		return model.EmptyCounters(mailboxID), nil
	}
	return c, err
}

// shouldDetachedRepair rolls the repair dice. The chance shrinks as the
// unseen count grows, so big mailboxes are not rescanned on every read,
// and is capped by ReadRepairChanceMax. Both knobs zero turns the roll off.
func (s *MessageMapperImpl) shouldDetachedRepair(c model.MailboxCounters) bool {
	if s.cfg.ReadRepairChanceMax == 0 && s.cfg.ReadRepairChanceOneHundred == 0 {
		return false
	}
	chance := s.cfg.ReadRepairChanceMax
	if c.Unseen > 0 {
		chance = math.Min(chance, s.cfg.ReadRepairChanceOneHundred*100/float64(c.Unseen))
	}
	return s.cfg.Rand() < chance
}

// detachedRepair recomputes in the background. The work survives the
// caller's cancellation and its errors are logged, never surfaced.
func (s *MessageMapperImpl) detachedRepair(ctx context.Context, mailboxID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	s.repairWG.Add(1)
	go func() {
		defer s.repairWG.Done()
		if err := s.stores.Recompute.Recompute(ctx, mailboxID); err != nil {
			s.log.Warn("detached counter repair failed",
				zap.Stringer("mailbox", mailboxID),
				zap.Error(err))
		}
	}()
}
