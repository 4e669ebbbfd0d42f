package feed

import (
	"context"
	"log/slog"
	"sync"

	"care-link/domain/event"
	"care-link/errors"

	"github.com/google/uuid"
)

// Subscriber is the inbound half of one session's change feed: a typed
// channel of append events, decoupled from the transport that drains it.
//
// Delivery is at-least-once and never blocks the fanout. When the session
// cannot keep up the event is dropped and the subscriber flags itself as
// lagging; the session must then reconcile with a full fetch.
type Subscriber struct {
	id     string
	userID string
	log    *slog.Logger

	mu     sync.Mutex
	events chan event.FeedEvent
	closed bool
	lagged bool
}

func NewSubscriber(userID string, buffer int, log *slog.Logger) *Subscriber {
	return &Subscriber{
		id:     uuid.NewString(),
		userID: userID,
		log:    log,
		events: make(chan event.FeedEvent, buffer),
	}
}

func (s *Subscriber) ID() string     { return s.id }
func (s *Subscriber) UserID() string { return s.userID }

// Events is the channel the session's event loop drains.
// It is closed by Close.
func (s *Subscriber) Events() <-chan event.FeedEvent { return s.events }

// Consume implements contract.EventSink. Events not involving the
// subscriber's user are filtered out here, so a mis-routed event can never
// leak into a session.
func (s *Subscriber) Consume(ctx context.Context, e event.FeedEvent) error {
	participants := e.Participants()
	if participants[0] != s.userID && participants[1] != s.userID {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrFeedClosed
	}
	select {
	case s.events <- e:
		return nil
	default:
		s.lagged = true
		s.log.Debug("Feed event dropped, session must reconcile", "session", s.id)
		return errors.ErrSessionLagging
	}
}

// Lagged reports whether an event was dropped since the last ClearLag.
func (s *Subscriber) Lagged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lagged
}

// ClearLag is called by the session once it has reconciled.
func (s *Subscriber) ClearLag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lagged = false
}

// Close tears the subscriber down. Safe to call at any time and more than
// once; no Consume call delivers after Close returns.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}
