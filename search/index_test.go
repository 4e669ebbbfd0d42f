package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"care-link/domain"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *MessageIndex {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewMessageIndex(writer, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func storedMessage(sender, recipient, body string) domain.Message {
	return domain.Message{
		ID:          uuid.New(),
		SenderID:    sender,
		RecipientID: recipient,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
	}
}

func Test_Search_Finds_Body_Terms(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	hit := storedMessage("alice", "bob", "cardiology referral for Mrs. Dupont")
	miss := storedMessage("alice", "bob", "see you at the clinic")
	req.NoError(index.Index(hit))
	req.NoError(index.Index(miss))

	ids, err := index.Search(context.Background(), "bob", "cardiology", 10)
	req.NoError(err)

	req.Equal([]uuid.UUID{hit.ID}, ids)
}

func Test_Search_Scoped_To_Participant(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	// Given the same term appears in two unrelated threads
	mine := storedMessage("alice", "bob", "urgent cardiology case")
	foreign := storedMessage("clara", "dave", "another cardiology case")
	req.NoError(index.Index(mine))
	req.NoError(index.Index(foreign))

	// When Bob searches
	ids, err := index.Search(context.Background(), "bob", "cardiology", 10)
	req.NoError(err)

	// Then only the thread Bob belongs to is visible
	req.Equal([]uuid.UUID{mine.ID}, ids)

	// And both sides of a thread see the same message
	ids, err = index.Search(context.Background(), "alice", "cardiology", 10)
	req.NoError(err)
	req.Equal([]uuid.UUID{mine.ID}, ids)
}

func Test_Search_Honors_Limit(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	for i := 0; i < 5; i++ {
		req.NoError(index.Index(storedMessage("alice", "bob", "cardiology followup")))
	}

	ids, err := index.Search(context.Background(), "bob", "cardiology", 2)
	req.NoError(err)
	req.Len(ids, 2)
}

func Test_Index_Update_Replaces_Document(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	message := storedMessage("alice", "bob", "cardiology referral")
	req.NoError(index.Index(message))

	// Re-indexing the same id must not create a duplicate hit
	req.NoError(index.Index(message))

	ids, err := index.Search(context.Background(), "bob", "cardiology", 10)
	req.NoError(err)
	req.Equal([]uuid.UUID{message.ID}, ids)
}
