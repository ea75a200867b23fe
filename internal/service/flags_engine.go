package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/telmaren/mailbase/internal/errs"
	"github.com/telmaren/mailbase/internal/model"
	"github.com/telmaren/mailbase/internal/repository"
)

// The flag mutation engine drives lock-free flag updates against the
// source-of-truth table. Per round: allocate one shared modseq, stage the
// new flag set per candidate, attempt a compare-and-swap per changed
// candidate, then fold the outcomes. Candidates that lost their race are
// re-read and re-staged in the next round until the retry budget runs out.

// stageResult is the immutable outcome of one engine round: the transitions
// that committed and the identities that lost their compare-and-swap.
type stageResult struct {
	succeeded []model.UpdatedFlags
	failed    []model.MessageIdentity
}

// keepSucceeded drops the failed set, which the next round replaces.
func (r stageResult) keepSucceeded() stageResult {
	return stageResult{succeeded: r.succeeded}
}

// merge folds a retry round into the cumulative result.
func (r stageResult) merge(other stageResult) stageResult {
	return stageResult{
		succeeded: append(r.succeeded, other.succeeded...),
		failed:    append(r.failed, other.failed...),
	}
}

// UpdateFlags applies calc to every message of r. Only committed
// transitions are returned, in the order the engine finalized them, which
// under contention is not uid order. Identities still contended after
// FlagsUpdateMaxRetry rounds are logged and dropped.
func (s *MessageMapperImpl) UpdateFlags(ctx context.Context, mailboxID uuid.UUID, calc model.FlagsUpdateCalculator, r model.MessageRange) ([]model.UpdatedFlags, error) {
	metas, err := s.stores.Mirror.List(ctx, mailboxID, r, 0)
	if err != nil {
		return nil, fmt.Errorf("list candidates %s: %w", r, err)
	}
	return s.runFlagsEngine(ctx, mailboxID, calc, metas)
}

// ResetRecent clears \Recent from every currently recent message, driving
// the same engine over the recent set collapsed into ranges.
func (s *MessageMapperImpl) ResetRecent(ctx context.Context, mailboxID uuid.UUID) ([]model.UpdatedFlags, error) {
	uids, err := s.stores.Recents.List(ctx, mailboxID)
	if err != nil {
		return nil, fmt.Errorf("list recents: %w", err)
	}
	calc := model.NewFlagsUpdateCalculator(model.NewFlags(model.FlagRecent), model.UpdateRemove)

	var out []model.UpdatedFlags
	for _, r := range model.ToRanges(uids) {
		upds, err := s.UpdateFlags(ctx, mailboxID, calc, r)
		if err != nil {
			return out, err
		}
		out = append(out, upds...)
	}
	return out, nil
}

func (s *MessageMapperImpl) runFlagsEngine(ctx context.Context, mailboxID uuid.UUID, calc model.FlagsUpdateCalculator, metas []model.MessageMetadata) ([]model.UpdatedFlags, error) {
	if len(metas) == 0 {
		return nil, nil
	}
	res, err := s.updateStage(ctx, mailboxID, calc, metas)
	if err != nil {
		return res.succeeded, err
	}
	for tries := 0; len(res.failed) > 0 && tries < s.cfg.FlagsUpdateMaxRetry; tries++ {
		retried, err := s.retryStage(ctx, mailboxID, calc, res.failed)
		if err != nil {
			return res.succeeded, err
		}
		res = res.keepSucceeded().merge(retried)
	}
	if len(res.failed) > 0 {
		s.log.Warn("flag updates unresolved after retry budget",
			zap.Stringer("mailbox", mailboxID),
			zap.Int("unresolved", len(res.failed)),
			zap.Int("max_retry", s.cfg.FlagsUpdateMaxRetry))
	}
	return res.succeeded, nil
}

// updateStage runs one engine round over metas. A no-op transition counts
// as an immediate success carrying the message's old modseq, so unchanged
// messages never consume the round's freshly allocated modseq.
func (s *MessageMapperImpl) updateStage(ctx context.Context, mailboxID uuid.UUID, calc model.FlagsUpdateCalculator, metas []model.MessageMetadata) (stageResult, error) {
	modSeq, err := s.stores.ModSeqs.NextModSeq(ctx, mailboxID)
	if err != nil {
		return stageResult{}, err
	}

	var res stageResult
	var committed []model.UpdatedFlags
	for _, meta := range metas {
		newFlags := calc.BuildNewFlags(meta.Flags)
		if newFlags.Equal(meta.Flags) {
			res.succeeded = append(res.succeeded, model.UpdatedFlags{
				UID:       meta.UID,
				MessageID: meta.MessageID,
				ModSeq:    meta.ModSeq,
				OldFlags:  meta.Flags,
				NewFlags:  newFlags,
			})
			continue
		}

		upd := model.UpdatedFlags{
			UID:       meta.UID,
			MessageID: meta.MessageID,
			ModSeq:    modSeq,
			OldFlags:  meta.Flags,
			NewFlags:  newFlags,
		}
		applied, err := s.stores.Messages.Update(ctx, upd, mailboxID, meta.ModSeq)
		if err != nil {
			return res, fmt.Errorf("flag update uid %d: %w", meta.UID, err)
		}
		if applied {
			res.succeeded = append(res.succeeded, upd)
			committed = append(committed, upd)
		} else {
			res.failed = append(res.failed, meta.MessageIdentity)
		}
	}

	if len(committed) > 0 {
		if err := s.maintainer.OnFlagsUpdate(ctx, mailboxID, committed); err != nil {
			return res, err
		}
	}
	return res, nil
}

// retryStage re-reads the authoritative state of the identities that lost
// the previous round and runs another round over them. An identity deleted
// in the meantime simply drops out.
func (s *MessageMapperImpl) retryStage(ctx context.Context, mailboxID uuid.UUID, calc model.FlagsUpdateCalculator, failed []model.MessageIdentity) (stageResult, error) {
	strength := s.readStrength()
	metas := make([]model.MessageMetadata, 0, len(failed))
	for _, id := range failed {
		meta, err := s.stores.Messages.Retrieve(ctx, id.MessageID, mailboxID, strength)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return stageResult{}, fmt.Errorf("re-read uid %d: %w", id.UID, err)
		}
		metas = append(metas, meta)
	}
	if len(metas) == 0 {
		return stageResult{}, nil
	}
	return s.updateStage(ctx, mailboxID, calc, metas)
}

func (s *MessageMapperImpl) readStrength() repository.ReadStrength {
	if s.cfg.MessageWriteStrongConsistency {
		return repository.ReadStrong
	}
	return repository.ReadWeak
}
