package session

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"care-link/domain"
	"care-link/domain/event"
	"care-link/feed"
	"care-link/observability"
	"care-link/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*repositories.MessageRepository, *observability.Monitor, *slog.Logger) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repositories.NewMessageRepository(db, log), observability.NewMonitor(log), log
}

func newSession(owner string, repository *repositories.MessageRepository,
	monitor *observability.Monitor, log *slog.Logger) *Session {
	return New(owner, repository, feed.NewSubscriber(owner, 16, log), monitor, log)
}

func Test_OpenConversation_Zeroes_Unread_And_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repository, monitor, log := newFixture(t)
	alice := uuid.NewString()
	bob := uuid.NewString()

	// Given Alice sent Bob one message
	_, err := repository.Append(domain.Draft{SenderID: alice, RecipientID: bob, Body: "Hello"}, "")
	req.NoError(err)

	sess := newSession(bob, repository, monitor, log)
	req.NoError(sess.Reconcile())

	conversations, stale := sess.Conversations()
	req.False(stale)
	req.Len(conversations, 1)
	req.Equal(1, conversations[0].UnreadCount)

	// When Bob opens the conversation
	marked, err := sess.OpenConversation(alice)
	req.NoError(err)
	req.Equal(1, marked)

	conversations, _ = sess.Conversations()
	req.Equal(0, conversations[0].UnreadCount)

	// Then re-opening without new messages stays at zero
	marked, err = sess.OpenConversation(alice)
	req.NoError(err)
	req.Equal(0, marked)

	conversations, _ = sess.Conversations()
	req.Equal(0, conversations[0].UnreadCount)
}

func Test_Concurrent_Opens_Converge_To_Zero(t *testing.T) {
	req := require.New(t)
	repository, monitor, log := newFixture(t)
	alice := uuid.NewString()
	bob := uuid.NewString()

	_, err := repository.Append(domain.Draft{SenderID: alice, RecipientID: bob, Body: "Hello"}, "")
	req.NoError(err)

	// Given two sessions of Bob looking at the same thread
	first := newSession(bob, repository, monitor, log)
	second := newSession(bob, repository, monitor, log)
	req.NoError(first.Reconcile())
	req.NoError(second.Reconcile())

	// When both open it at the same time
	var wg sync.WaitGroup
	var firstErr, secondErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, firstErr = first.OpenConversation(alice)
	}()
	go func() {
		defer wg.Done()
		_, secondErr = second.OpenConversation(alice)
	}()
	wg.Wait()

	req.NoError(firstErr)
	req.NoError(secondErr)

	// Then both views report zero, never negative
	conversations, _ := first.Conversations()
	req.Equal(0, conversations[0].UnreadCount)
	conversations, _ = second.Conversations()
	req.Equal(0, conversations[0].UnreadCount)

	// And the store agrees
	thread, err := repository.FetchThread(alice, bob)
	req.NoError(err)
	req.True(thread[0].IsRead)
}

func Test_Reconcile_Recovers_Messages_Missed_Offline(t *testing.T) {
	req := require.New(t)
	repository, monitor, log := newFixture(t)
	alice := uuid.NewString()
	bob := uuid.NewString()

	// Given two messages sent while Bob's feed was down
	_, err := repository.Append(domain.Draft{SenderID: alice, RecipientID: bob, Body: "Hi"}, "")
	req.NoError(err)
	_, err = repository.Append(domain.Draft{SenderID: alice, RecipientID: bob, Body: "There"}, "")
	req.NoError(err)

	// When Bob reconnects and reconciles
	sess := newSession(bob, repository, monitor, log)
	req.NoError(sess.Reconcile())

	// Then the view reflects the full store state
	conversations, stale := sess.Conversations()
	req.False(stale)
	req.Len(conversations, 1)
	req.Equal("There", conversations[0].LastMessageBody)
	req.Equal(2, conversations[0].UnreadCount)
}

func Test_Run_Applies_Feed_Events(t *testing.T) {
	req := require.New(t)
	repository, monitor, log := newFixture(t)
	alice := uuid.NewString()
	bob := uuid.NewString()

	subscriber := feed.NewSubscriber(bob, 16, log)
	sess := New(bob, repository, subscriber, monitor, log)

	forwarded := make(chan event.FeedEvent, 1)
	sess.OnEvent(func(evt event.FeedEvent) { forwarded <- evt })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = sess.Run(ctx)
		close(done)
	}()

	// When a message lands in the store and its event reaches the feed
	message, err := repository.Append(domain.Draft{SenderID: alice, RecipientID: bob, Body: "Hello"}, "")
	req.NoError(err)
	req.NoError(subscriber.Consume(ctx, event.MessageStored{
		ID: message.ID, SenderID: alice, RecipientID: bob, Body: message.Body, At: message.CreatedAt,
	}))

	// Then the event is folded into the view and forwarded
	select {
	case <-forwarded:
	case <-time.After(time.Second):
		req.Fail("event was not forwarded")
	}

	req.Eventually(func() bool {
		conversations, _ := sess.Conversations()
		return len(conversations) == 1 && conversations[0].UnreadCount == 1
	}, time.Second, 10*time.Millisecond)

	// And closing the subscriber ends the pump
	subscriber.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("session did not stop after subscriber close")
	}
}
