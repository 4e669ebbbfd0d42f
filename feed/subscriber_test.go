package feed

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"care-link/domain/event"
	apperrors "care-link/errors"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func TestSubscriber_Delivers_Own_Events_Only(t *testing.T) {
	req := require.New(t)
	bob := uuid.NewString()
	subscriber := NewSubscriber(bob, 4, testLogger())

	// When an event for Bob and one for strangers arrive
	err := subscriber.Consume(context.Background(), event.MessageStored{
		ID: uuid.New(), SenderID: "alice", RecipientID: bob, Body: "for bob",
	})
	req.NoError(err)
	err = subscriber.Consume(context.Background(), event.MessageStored{
		ID: uuid.New(), SenderID: "alice", RecipientID: "clara", Body: "not for bob",
	})
	req.NoError(err)

	// Then only Bob's event is buffered
	select {
	case evt := <-subscriber.Events():
		req.Equal("for bob", evt.(event.MessageStored).Body)
	case <-time.After(time.Second):
		req.Fail("expected a buffered event")
	}
	select {
	case evt := <-subscriber.Events():
		req.Failf("unexpected event", "%v", evt)
	default:
	}
}

func TestSubscriber_Flags_Lag_When_Buffer_Full(t *testing.T) {
	req := require.New(t)
	bob := uuid.NewString()
	subscriber := NewSubscriber(bob, 1, testLogger())

	evt := event.MessageStored{ID: uuid.New(), SenderID: "alice", RecipientID: bob}
	req.NoError(subscriber.Consume(context.Background(), evt))

	// When the buffer is full the event is dropped, not blocked on
	err := subscriber.Consume(context.Background(), event.MessageStored{ID: uuid.New(), SenderID: "alice", RecipientID: bob})
	req.ErrorIs(err, apperrors.ErrSessionLagging)
	req.True(subscriber.Lagged())

	// And the flag clears once the session reconciled
	subscriber.ClearLag()
	req.False(subscriber.Lagged())
}

func TestSubscriber_No_Delivery_After_Close(t *testing.T) {
	req := require.New(t)
	bob := uuid.NewString()
	subscriber := NewSubscriber(bob, 4, testLogger())

	// When the subscriber is closed, twice
	subscriber.Close()
	subscriber.Close()

	// Then consuming reports the closed feed instead of panicking on the
	// closed channel
	err := subscriber.Consume(context.Background(), event.MessageStored{
		ID: uuid.New(), SenderID: "alice", RecipientID: bob,
	})
	req.ErrorIs(err, apperrors.ErrFeedClosed)

	// And the events channel is closed for the draining loop
	_, open := <-subscriber.Events()
	req.False(open)
}

func TestSubscriber_Concurrent_Consume_And_Close(t *testing.T) {
	req := require.New(t)
	bob := uuid.NewString()
	subscriber := NewSubscriber(bob, 2, testLogger())

	// Hammer Consume from one goroutine while closing from another; the
	// mutex makes close-then-send impossible.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_ = subscriber.Consume(context.Background(), event.MessageStored{
				ID: uuid.New(), SenderID: "alice", RecipientID: bob,
			})
		}
	}()
	go func() {
		for range subscriber.Events() {
		}
	}()

	subscriber.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		req.Fail("consumer goroutine did not finish")
	}
}
