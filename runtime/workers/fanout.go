package workers

import (
	"context"
	"log/slog"
	"time"

	"care-link/contract"
	"care-link/domain/event"
	"care-link/observability"
)

// FeedFanout pushes stored-message events to every open session of both
// participants.
//
// It provides best-effort fan-out: a slow session is dropped-and-flagged by
// its subscriber rather than blocking the feed, and recovers through a
// reconciliation fetch. FeedFanout is not a message broker.
//
// Events for a pair are consumed from a single channel and delivered
// sequentially per sink, but concurrent sends may enqueue out of creation
// order; consumers order on the event timestamp, never on arrival.
type FeedFanout struct {
	log         *slog.Logger
	registry    contract.IRegistry
	events      chan event.FeedEvent
	monitor     *observability.Monitor
	sinkTimeout time.Duration
}

func NewFeedFanout(log *slog.Logger, registry contract.IRegistry,
	events chan event.FeedEvent, monitor *observability.Monitor,
	sinkTimeout time.Duration) *FeedFanout {
	return &FeedFanout{
		log:         log,
		registry:    registry,
		events:      events,
		monitor:     monitor,
		sinkTimeout: sinkTimeout,
	}
}

func (w *FeedFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping feed fanout")
			return nil
		}
	}
}

// Fanout delivers one event to the sessions of both participants.
// Sender and recipient are distinct users, so their session sets are
// disjoint and no sink is hit twice.
func (w *FeedFanout) Fanout(ctx context.Context, evt event.FeedEvent) {
	participants := evt.Participants()
	for _, userID := range participants {
		for _, sink := range w.registry.SinksFor(userID) {
			w.deliver(ctx, sink, evt)
		}
	}
}

func (w *FeedFanout) deliver(ctx context.Context, sink contract.EventSink, evt event.FeedEvent) {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()

	if err := sink.Consume(sinkCtx, evt); err != nil {
		w.monitor.IncrEventsDropped()
		w.log.Debug("Feed delivery failed", "error", err)
		return
	}
	w.monitor.IncrEventsDelivered()
}
