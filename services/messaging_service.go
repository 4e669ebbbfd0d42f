//go:generate go run go.uber.org/mock/mockgen -source=messaging_service.go -destination=../mocks/mock_messaging_service.go -package=mocks
package services

import (
	"context"
	"log/slog"

	"care-link/domain"
	"care-link/errors"
	"care-link/profiles"
	"care-link/projection"
	"care-link/repositories"
	"care-link/runtime"
	"care-link/search"

	"github.com/samber/lo"
)

// IMessagingService is the facade the transport talks to. Identity is an
// explicit argument on every call; nothing here reads an ambient user.
type IMessagingService interface {
	Send(ctx context.Context, sender, recipient, body string) (domain.Message, error)
	Thread(ctx context.Context, requester, userA, userB string) ([]domain.Message, error)
	Conversations(ctx context.Context, owner string) ([]domain.Conversation, error)
	OpenConversation(ctx context.Context, owner, counterpart string) (int, error)
	Search(ctx context.Context, owner, terms string, limit int) ([]domain.Message, error)
}

type MessagingService struct {
	log          *slog.Logger
	orchestrator *runtime.Orchestrator
	repository   repositories.IMessageRepository
	index        search.IMessageIndex
	directory    profiles.IDirectory
}

func NewMessagingService(log *slog.Logger, orchestrator *runtime.Orchestrator,
	repository repositories.IMessageRepository, index search.IMessageIndex,
	directory profiles.IDirectory) *MessagingService {
	return &MessagingService{
		log:          log,
		orchestrator: orchestrator,
		repository:   repository,
		index:        index,
		directory:    directory,
	}
}

func (s *MessagingService) Send(ctx context.Context, sender, recipient, body string) (domain.Message, error) {
	return s.orchestrator.Send(ctx, domain.Draft{
		SenderID:    sender,
		RecipientID: recipient,
		Body:        body,
	})
}

// Thread returns the messages between userA and userB, oldest first.
// The requester must be one of the two participants.
func (s *MessagingService) Thread(ctx context.Context, requester, userA, userB string) ([]domain.Message, error) {
	if requester != userA && requester != userB {
		return nil, errors.ErrNotParticipant
	}
	return s.repository.FetchThread(userA, userB)
}

// Conversations derives the owner's conversation list by full rescan, the
// consistency baseline the incremental session views are equivalent to.
// Display names are attached from the profile directory.
func (s *MessagingService) Conversations(ctx context.Context, owner string) ([]domain.Conversation, error) {
	messages, err := s.repository.FetchInvolving(owner)
	if err != nil {
		return nil, err
	}

	view := projection.NewConversations(owner)
	view.Rebuild(messages)
	conversations := view.List()

	counterparts := lo.Map(conversations, func(item domain.Conversation, _ int) string {
		return item.CounterpartID
	})
	names := s.directory.DisplayNames(counterparts)
	for i := range conversations {
		conversations[i].CounterpartName = names[conversations[i].CounterpartID]
	}
	return conversations, nil
}

// OpenConversation marks the whole thread read for the owner and returns
// how many messages were newly read. Idempotent.
func (s *MessagingService) OpenConversation(ctx context.Context, owner, counterpart string) (int, error) {
	thread, err := s.repository.FetchThread(owner, counterpart)
	if err != nil {
		return 0, err
	}
	ids := repositories.UnreadIDs(owner, thread)
	if len(ids) == 0 {
		return 0, nil
	}
	return s.repository.MarkRead(owner, ids)
}

// Search resolves full-text matches over the owner's message bodies back to
// their stored records, ranked best match first.
func (s *MessagingService) Search(ctx context.Context, owner, terms string, limit int) ([]domain.Message, error) {
	ids, err := s.index.Search(ctx, owner, terms, limit)
	if err != nil {
		return nil, err
	}

	// Ranked ids resolve against the owner's own messages only; anything
	// else the index might return is discarded.
	involving, err := s.repository.FetchInvolving(owner)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(involving, func(item domain.Message) string {
		return item.ID.String()
	})

	var results []domain.Message
	for _, id := range ids {
		if message, ok := byID[id.String()]; ok {
			results = append(results, message)
		}
	}
	return results, nil
}
