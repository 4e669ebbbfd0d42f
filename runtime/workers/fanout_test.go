package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"care-link/contract"
	"care-link/domain/event"
	"care-link/mocks"
	"care-link/observability"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestFeedFanout_Delivers_To_Both_Participants(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	senderSink := mocks.NewMockEventSink(ctrl)
	recipientSink := mocks.NewMockEventSink(ctrl)

	monitor := observability.NewMonitor(log)
	events := make(chan event.FeedEvent, 1)
	fanout := NewFeedFanout(log, mockRegistry, events, monitor, time.Second)

	evt := event.MessageStored{
		ID: uuid.New(), SenderID: "alice", RecipientID: "bob", Body: "Hello",
	}

	// Given each participant has one open session
	mockRegistry.EXPECT().SinksFor("alice").Return([]contract.EventSink{senderSink}).Times(1)
	mockRegistry.EXPECT().SinksFor("bob").Return([]contract.EventSink{recipientSink}).Times(1)

	// Then both sinks consume the event exactly once
	senderSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	recipientSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	// When the event is fanned out
	fanout.Fanout(context.Background(), evt)

	req.Equal(uint64(2), monitor.Snapshot().EventsDelivered)
}

func TestFeedFanout_Counts_Dropped_Deliveries(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	slowSink := mocks.NewMockEventSink(ctrl)

	monitor := observability.NewMonitor(log)
	events := make(chan event.FeedEvent, 1)
	sinkTimeout := 20 * time.Millisecond
	fanout := NewFeedFanout(log, mockRegistry, events, monitor, sinkTimeout)

	evt := event.MessageStored{ID: uuid.New(), SenderID: "alice", RecipientID: "bob"}

	mockRegistry.EXPECT().SinksFor("alice").Return([]contract.EventSink{slowSink}).Times(1)
	mockRegistry.EXPECT().SinksFor("bob").Return(nil).Times(1)

	// Given a sink that waits for the delivery timeout to fire
	slowSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, e event.FeedEvent) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)

	fanout.Fanout(context.Background(), evt)

	req.Equal(uint64(1), monitor.Snapshot().EventsDropped)
	req.Equal(uint64(0), monitor.Snapshot().EventsDelivered)
}

func TestFeedFanout_Run_Stops_On_Context_Cancel(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	monitor := observability.NewMonitor(log)
	events := make(chan event.FeedEvent)
	fanout := NewFeedFanout(log, mockRegistry, events, monitor, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = fanout.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("fanout did not stop on cancel")
	}
}
