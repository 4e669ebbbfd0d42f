// Package session ties one viewing session of a user to its change feed
// subscriber and its conversation view. Each session owns its view; the
// durable store is the only state shared across sessions.
package session

import (
	"context"
	"log/slog"
	"sync"

	"care-link/domain"
	"care-link/domain/event"
	"care-link/feed"
	"care-link/observability"
	"care-link/projection"
	"care-link/repositories"
)

type Session struct {
	log        *slog.Logger
	owner      string
	repository repositories.IMessageRepository
	subscriber *feed.Subscriber
	monitor    *observability.Monitor

	// The event pump and the request handlers of the same session run on
	// different goroutines; mu serializes access to the view.
	mu    sync.Mutex
	view  *projection.Conversations
	stale bool

	forward func(event.FeedEvent)
}

func New(owner string, repository repositories.IMessageRepository,
	subscriber *feed.Subscriber, monitor *observability.Monitor,
	log *slog.Logger) *Session {
	return &Session{
		log:        log,
		owner:      owner,
		repository: repository,
		subscriber: subscriber,
		monitor:    monitor,
		view:       projection.NewConversations(owner),
	}
}

func (s *Session) Owner() string { return s.owner }

// OnEvent registers a callback invoked after each event is folded into the
// view, typically to push it down the session's transport. Must be set
// before Run.
func (s *Session) OnEvent(forward func(event.FeedEvent)) {
	s.forward = forward
}

// Run drains the subscriber until it is closed or the context ends.
// The first thing a session does is reconcile, which also covers events
// missed between connect and subscribe.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Reconcile(); err != nil {
		s.log.Warn("Initial reconcile failed, view is stale", "owner", s.owner, "error", err)
	}
	for {
		select {
		case evt, ok := <-s.subscriber.Events():
			if !ok {
				return nil
			}
			s.mu.Lock()
			s.view.Consume(evt)
			s.mu.Unlock()

			if s.forward != nil {
				s.forward(evt)
			}

			if s.subscriber.Lagged() {
				if err := s.Reconcile(); err != nil {
					continue
				}
				s.subscriber.ClearLag()
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Reconcile rebuilds the view from a full store scan. Called on connect,
// after a feed gap, and whenever the subscriber reports lag. On failure the
// previous view stays displayed and is flagged stale instead of cleared.
func (s *Session) Reconcile() error {
	messages, err := s.repository.FetchInvolving(s.owner)
	if err != nil {
		s.mu.Lock()
		s.stale = true
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.view.Rebuild(messages)
	s.stale = false
	s.mu.Unlock()
	s.monitor.IncrReconciles()
	return nil
}

// Conversations returns the current sorted conversation list and whether it
// is known to be stale.
func (s *Session) Conversations() ([]domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.List(), s.stale
}

// Thread fetches the full message sequence with counterpart, oldest first.
func (s *Session) Thread(counterpart string) ([]domain.Message, error) {
	return s.repository.FetchThread(s.owner, counterpart)
}

// OpenConversation is the read tracker: it collects the unread ids of the
// thread, marks them read in one batch, and zeroes the local unread count.
// Idempotent; with two concurrent sessions of the same owner the second
// batch is a subset of already-read ids and the count still converges to
// zero.
func (s *Session) OpenConversation(counterpart string) (int, error) {
	thread, err := s.repository.FetchThread(s.owner, counterpart)
	if err != nil {
		return 0, err
	}
	ids := repositories.UnreadIDs(s.owner, thread)
	if len(ids) == 0 {
		s.mu.Lock()
		s.view.ZeroUnread(counterpart)
		s.mu.Unlock()
		return 0, nil
	}

	updated, err := s.repository.MarkRead(s.owner, ids)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	// Fold the read batch through the event path, then clamp: the store now
	// holds the thread fully read, any residue was marked by another session.
	s.view.Consume(event.ThreadRead{
		OwnerID:       s.owner,
		CounterpartID: counterpart,
		Count:         updated,
	})
	s.view.ZeroUnread(counterpart)
	s.mu.Unlock()
	s.monitor.AddReadsApplied(updated)
	return updated, nil
}
