//go:generate go run go.uber.org/mock/mockgen -source=index.go -destination=../mocks/mock_message_index.go -package=mocks

// Package search maintains a full-text index over message bodies.
// Results are always scoped to a participant: a user can only find
// messages from threads they are part of.
package search

import (
	"context"
	"log/slog"

	"care-link/domain"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

type IMessageIndex interface {
	Index(message domain.Message) error
	Search(ctx context.Context, owner, terms string, limit int) ([]uuid.UUID, error)
}

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Index adds one message to the index. The participant field is written
// twice, once per user, which bluge treats as a multi-valued keyword.
func (m *MessageIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewTextField("body", message.Body)).
		AddField(bluge.NewKeywordField("participant", message.SenderID)).
		AddField(bluge.NewKeywordField("participant", message.RecipientID))
	return m.writer.Update(doc.ID(), doc)
}

// Search returns the ids of the owner's messages matching terms, best
// match first.
func (m *MessageIndex) Search(ctx context.Context, owner, terms string, limit int) ([]uuid.UUID, error) {
	reader, err := m.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("body")).
		AddMust(bluge.NewTermQuery(owner).SetField("participant"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	match, err := iterator.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					ids = append(ids, id)
				} else {
					m.log.Debug("Skipping unparsable document id", "raw", string(value))
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}
