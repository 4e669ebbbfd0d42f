// Package runtime wires the send pipeline and the change feed together.
// It orchestrates the system without containing domain rules.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"care-link/contract"
	"care-link/domain"
	"care-link/domain/event"
	"care-link/feed"
	"care-link/moderation"
	"care-link/observability"
	"care-link/repositories"
	"care-link/runtime/workers"
	"care-link/search"

	"github.com/abadojack/whatlanggo"
)

type Orchestrator struct {
	log        *slog.Logger
	supervisor contract.ISupervisor
	registry   contract.IRegistry
	repository repositories.IMessageRepository
	index      search.IMessageIndex
	moderator  moderation.Moderator
	monitor    *observability.Monitor

	events        chan event.FeedEvent
	sessionBuffer int
	sinkTimeout   time.Duration
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry contract.IRegistry, repository repositories.IMessageRepository,
	index search.IMessageIndex, moderator moderation.Moderator,
	monitor *observability.Monitor,
	bufferSize, sessionBuffer int, sinkTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		log:           log,
		supervisor:    supervisor,
		registry:      registry,
		repository:    repository,
		index:         index,
		moderator:     moderator,
		monitor:       monitor,
		events:        make(chan event.FeedEvent, bufferSize),
		sessionBuffer: sessionBuffer,
		sinkTimeout:   sinkTimeout,
	}
}

// Start registers the feed fanout under supervision and runs it in the
// background until the context is canceled.
func (o *Orchestrator) Start(ctx context.Context) {
	fanout := workers.NewFeedFanout(o.log, o.registry, o.events, o.monitor, o.sinkTimeout)
	o.supervisor.Add(fanout)

	go o.supervisor.Run(ctx)
	o.log.Info("Orchestrator started, feed fanout supervised")
}

func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}

// Send runs the full append pipeline: validate, censor, tag language,
// persist, index, and emit the feed event. A failed send leaves the store
// untouched; the caller decides whether to retry.
func (o *Orchestrator) Send(ctx context.Context, draft domain.Draft) (domain.Message, error) {
	if err := draft.Validate(); err != nil {
		return domain.Message{}, err
	}

	censored, foundWords := o.moderator.Censor(draft.Body)
	if len(foundWords) > 0 {
		o.log.Warn("Message body censored", "sender", draft.SenderID, "words", len(foundWords))
	}
	draft.Body = censored

	message, err := o.repository.Append(draft, detectLang(draft.Body))
	if err != nil {
		return domain.Message{}, err
	}
	o.monitor.IncrMessagesSent()

	// The index is a secondary view; a failed write degrades search, not
	// the send itself.
	if indexErr := o.index.Index(message); indexErr != nil {
		o.log.Warn("Message indexing failed", "id", message.ID, "error", indexErr)
	}

	select {
	case o.events <- toStoredEvent(message):
	case <-ctx.Done():
		// The message is durable; sessions that missed the event converge
		// on their next reconcile.
		o.log.Warn("Feed emit canceled, store remains authoritative", "id", message.ID)
	}
	return message, nil
}

// Attach opens a change feed subscriber for one session of userID.
func (o *Orchestrator) Attach(userID string) *feed.Subscriber {
	subscriber := feed.NewSubscriber(userID, o.sessionBuffer, o.log)
	o.registry.Subscribe(subscriber.ID(), userID, subscriber)
	o.monitor.SessionOpened()
	return subscriber
}

// Detach tears a subscriber down. After Detach returns no further event is
// delivered to it.
func (o *Orchestrator) Detach(subscriber *feed.Subscriber) {
	o.registry.Unsubscribe(subscriber.ID(), subscriber.UserID())
	subscriber.Close()
	o.monitor.SessionClosed()
}

func toStoredEvent(message domain.Message) event.MessageStored {
	return event.MessageStored{
		ID:          message.ID,
		SenderID:    message.SenderID,
		RecipientID: message.RecipientID,
		Body:        message.Body,
		Lang:        message.Lang,
		At:          message.CreatedAt,
	}
}

// detectLang tags the body with an ISO-639-1 code when detection is
// confident enough; presentation only, never used for correctness.
func detectLang(body string) string {
	info := whatlanggo.Detect(body)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
