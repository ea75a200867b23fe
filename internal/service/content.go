package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/telmaren/mailbase/internal/errs"
	"github.com/telmaren/mailbase/internal/model"
	"github.com/telmaren/mailbase/internal/repository"
)

// resolveContent builds the message for meta at the requested granularity.
// A record with an embedded header reference serves metadata reads with no
// I/O and header reads straight from the blob store; everything else walks
// the generation chain, current first, legacy second.
func (s *MessageMapperImpl) resolveContent(ctx context.Context, meta model.MessageMetadata, g model.FetchGranularity) (*model.Message, error) {
	switch g {
	case model.FetchMetadata:
		if meta.Complete() {
			return &model.Message{Metadata: meta}, nil
		}
	case model.FetchHeaders:
		if meta.Complete() {
			headers, err := s.stores.Blobs.Get(ctx, repository.DefaultBucket, meta.HeaderBlob)
			if err != nil {
				if errors.Is(err, errs.ErrNotFound) {
					return nil, fmt.Errorf("header blob %s: %w", meta.HeaderBlob, errs.ErrContentMissing)
				}
				return nil, err
			}
			return &model.Message{Metadata: meta, Headers: headers}, nil
		}
	}

	headers, body, err := s.retrieveContent(ctx, meta.MessageID, g)
	if err != nil {
		return nil, err
	}
	return &model.Message{Metadata: meta, Headers: headers, Body: body}, nil
}

// retrieveContent walks the content generations in priority order. A
// generation answering errs.ErrNotFound passes the message on to the next;
// a miss under every generation is fatal for this fetch.
func (s *MessageMapperImpl) retrieveContent(ctx context.Context, messageID uuid.UUID, g model.FetchGranularity) ([]byte, []byte, error) {
	for _, src := range s.sources {
		headers, body, err := src.Retrieve(ctx, messageID, g)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		return headers, body, err
	}
	return nil, nil, fmt.Errorf("message %s: %w", messageID, errs.ErrContentMissing)
}
