package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/sync/errgroup"

	"github.com/telmaren/mailbase/internal/model"
)

// Add appends m to the mailbox. The content is written first so the stored
// header reference can be embedded into every index row, then a fresh uid
// and modseq are allocated and the views populated.
func (s *MessageMapperImpl) Add(ctx context.Context, mailboxID uuid.UUID, m *model.Message) (model.MessageMetadata, error) {
	meta := m.Metadata
	meta.MailboxID = mailboxID
	if meta.MessageID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return model.MessageMetadata{}, fmt.Errorf("mint message id: %w", err)
		}
		meta.MessageID = id
	}
	if meta.ThreadID == uuid.Nil {
		meta.ThreadID = meta.MessageID
	}
	if meta.InternalDate.IsZero() {
		meta.InternalDate = time.Now().UTC()
	}
	meta.Size = int64(len(m.Headers) + len(m.Body))
	meta.BodyStartOctet = int32(len(m.Headers))
	m.Metadata = meta

	headerRef, err := s.stores.Content.Save(ctx, m)
	if err != nil {
		return model.MessageMetadata{}, fmt.Errorf("save content: %w", err)
	}
	meta.HeaderBlob = headerRef

	uid, err := s.stores.UIDs.NextUID(ctx, mailboxID)
	if err != nil {
		return model.MessageMetadata{}, err
	}
	modSeq, err := s.stores.ModSeqs.NextModSeq(ctx, mailboxID)
	if err != nil {
		return model.MessageMetadata{}, err
	}
	meta.UID = uid
	meta.ModSeq = modSeq

	if err := s.stores.Messages.Insert(ctx, meta); err != nil {
		return model.MessageMetadata{}, fmt.Errorf("insert message %s: %w", meta.MessageID, err)
	}
	if err := s.maintainer.OnAdd(ctx, mailboxID, []model.MessageMetadata{meta}); err != nil {
		return model.MessageMetadata{}, err
	}
	m.Metadata = meta
	return meta, nil
}

// Copy copies msgs into dst. Every copy keeps its message id (and with it
// the stored content), gets a destination uid, shares one freshly allocated
// modseq and is tagged \Recent.
func (s *MessageMapperImpl) Copy(ctx context.Context, dstMailboxID uuid.UUID, msgs []model.MessageMetadata) ([]model.MessageMetadata, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	uids, err := s.stores.UIDs.NextUIDs(ctx, dstMailboxID, len(msgs))
	if err != nil {
		return nil, err
	}
	modSeq, err := s.stores.ModSeqs.NextModSeq(ctx, dstMailboxID)
	if err != nil {
		return nil, err
	}

	copied := make([]model.MessageMetadata, 0, len(msgs))
	for i, src := range msgs {
		meta := src
		meta.MailboxID = dstMailboxID
		meta.UID = uids[i]
		meta.ModSeq = modSeq
		meta.Flags = meta.Flags.With(model.FlagRecent)
		if err := s.stores.Messages.Insert(ctx, meta); err != nil {
			return copied, fmt.Errorf("copy message %s to %s: %w", meta.MessageID, dstMailboxID, err)
		}
		copied = append(copied, meta)
	}
	if err := s.maintainer.OnAdd(ctx, dstMailboxID, copied); err != nil {
		return copied, err
	}
	return copied, nil
}

// Move copies msgs into dst, then deletes the sources. There is no
// cross-mailbox transaction: a failure between the halves leaves the
// message present in both mailboxes, which callers must tolerate.
func (s *MessageMapperImpl) Move(ctx context.Context, dstMailboxID uuid.UUID, msgs []model.MessageMetadata) ([]model.MessageMetadata, error) {
	copied, err := s.Copy(ctx, dstMailboxID, msgs)
	if err != nil {
		return copied, err
	}

	bySource := make(map[uuid.UUID][]model.MessageMetadata)
	for _, src := range msgs {
		bySource[src.MailboxID] = append(bySource[src.MailboxID], src)
	}
	var errsAll []error
	for srcMailboxID, metas := range bySource {
		if _, err := s.deleteBatch(ctx, srcMailboxID, metas); err != nil {
			errsAll = append(errsAll, fmt.Errorf("delete source in %s: %w", srcMailboxID, err))
		}
	}
	return copied, errors.Join(errsAll...)
}

// DeleteMessages removes the given uids in expunge-sized rounds and returns
// the metadata of every message actually removed, keyed by uid. Unknown
// uids are skipped; per-item failures are joined into the returned error
// next to the partial result.
func (s *MessageMapperImpl) DeleteMessages(ctx context.Context, mailboxID uuid.UUID, uids []model.UID) (map[model.UID]model.MessageMetadata, error) {
	removed := make(map[model.UID]model.MessageMetadata, len(uids))
	var errsAll []error
	for _, chunk := range chunkUIDs(uids, s.cfg.ExpungeChunkSize) {
		metas, err := s.resolveUIDs(ctx, mailboxID, chunk)
		if err != nil {
			errsAll = append(errsAll, err)
			continue
		}
		deleted, err := s.deleteBatch(ctx, mailboxID, metas)
		for _, meta := range deleted {
			removed[meta.UID] = meta
		}
		if err != nil {
			errsAll = append(errsAll, err)
		}
	}
	return removed, errors.Join(errsAll...)
}

// deleteBatch removes metas from one mailbox: the authoritative rows go
// first, then the mirror and projections via a single fan-out so the
// counter adjustment stays batched. Only messages whose authoritative
// delete succeeded are handed to the maintainer.
func (s *MessageMapperImpl) deleteBatch(ctx context.Context, mailboxID uuid.UUID, metas []model.MessageMetadata) ([]model.MessageMetadata, error) {
	deleted := make([]model.MessageMetadata, 0, len(metas))
	var errsAll []error
	for _, meta := range metas {
		if err := s.stores.Messages.Delete(ctx, meta.MessageID, mailboxID); err != nil {
			errsAll = append(errsAll, fmt.Errorf("delete uid %d: %w", meta.UID, err))
			continue
		}
		deleted = append(deleted, meta)
	}
	if len(deleted) > 0 {
		if err := s.maintainer.OnDelete(ctx, mailboxID, deleted); err != nil {
			errsAll = append(errsAll, err)
		}
	}
	return deleted, errors.Join(errsAll...)
}

// resolveUIDs reads the mirror rows for the given uids, collapsing them
// into ranges first to keep the scan count low. Absent uids are skipped.
func (s *MessageMapperImpl) resolveUIDs(ctx context.Context, mailboxID uuid.UUID, uids []model.UID) ([]model.MessageMetadata, error) {
	var out []model.MessageMetadata
	for _, r := range model.ToRanges(uids) {
		metas, err := s.stores.Mirror.List(ctx, mailboxID, r, 0)
		if err != nil {
			return nil, fmt.Errorf("resolve uids %s: %w", r, err)
		}
		out = append(out, metas...)
	}
	return out, nil
}

// FindInMailbox returns the messages of r with content resolved at the
// requested granularity. Content fetches run with bounded concurrency;
// results keep ascending uid order regardless of fetch completion order.
func (s *MessageMapperImpl) FindInMailbox(ctx context.Context, mailboxID uuid.UUID, r model.MessageRange, g model.FetchGranularity, limit int) ([]*model.Message, error) {
	metas, err := s.stores.Mirror.List(ctx, mailboxID, r, limit)
	if err != nil {
		return nil, err
	}

	msgs := make([]*model.Message, len(metas))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.MessageReadChunkSize)
	for i, meta := range metas {
		eg.Go(func() error {
			m, err := s.resolveContent(egCtx, meta, g)
			if err != nil {
				return fmt.Errorf("resolve content uid %d: %w", meta.UID, err)
			}
			msgs[i] = m
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *MessageMapperImpl) ListMessagesMetadata(ctx context.Context, mailboxID uuid.UUID, r model.MessageRange, limit int) ([]model.MessageMetadata, error) {
	return s.stores.Mirror.List(ctx, mailboxID, r, limit)
}

func chunkUIDs(uids []model.UID, size int) [][]model.UID {
	if len(uids) == 0 {
		return nil
	}
	chunks := make([][]model.UID, 0, (len(uids)+size-1)/size)
	for size < len(uids) {
		chunks = append(chunks, uids[:size])
		uids = uids[size:]
	}
	return append(chunks, uids)
}
