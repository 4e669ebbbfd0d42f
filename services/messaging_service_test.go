package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"care-link/domain"
	apperrors "care-link/errors"
	"care-link/mocks"
	"care-link/profiles"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newServiceFixture(t *testing.T) (*MessagingService, *mocks.MockIMessageRepository, *mocks.MockIMessageIndex, *profiles.InMemoryDirectory) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	repository := mocks.NewMockIMessageRepository(ctrl)
	index := mocks.NewMockIMessageIndex(ctrl)
	directory := profiles.NewInMemoryDirectory()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	service := NewMessagingService(log, nil, repository, index, directory)
	return service, repository, index, directory
}

func Test_Thread_Rejects_Non_Participant(t *testing.T) {
	req := require.New(t)
	service, _, _, _ := newServiceFixture(t)

	// When Clara requests the thread between Alice and Bob
	_, err := service.Thread(context.Background(), "clara", "alice", "bob")

	// Then the request is refused before touching the store
	req.ErrorIs(err, apperrors.ErrNotParticipant)
}

func Test_Conversations_Sorted_With_Display_Names(t *testing.T) {
	req := require.New(t)
	service, repository, _, directory := newServiceFixture(t)
	at := time.Now().UTC()

	directory.Put("alice", "Dr. Alice Moreau")
	directory.Put("clara", "Dr. Clara Diaz")

	repository.EXPECT().FetchInvolving("bob").Return([]domain.Message{
		{ID: uuid.New(), SenderID: "clara", RecipientID: "bob", Body: "newer", CreatedAt: at},
		{ID: uuid.New(), SenderID: "alice", RecipientID: "bob", Body: "older", CreatedAt: at.Add(-time.Hour)},
	}, nil).Times(1)

	conversations, err := service.Conversations(context.Background(), "bob")
	req.NoError(err)

	req.Len(conversations, 2)
	req.Equal("clara", conversations[0].CounterpartID)
	req.Equal("Dr. Clara Diaz", conversations[0].CounterpartName)
	req.Equal("Dr. Alice Moreau", conversations[1].CounterpartName)
	req.Equal(1, conversations[0].UnreadCount)
}

func Test_OpenConversation_Skips_MarkRead_When_Nothing_Unread(t *testing.T) {
	req := require.New(t)
	service, repository, _, _ := newServiceFixture(t)

	// Given a thread where everything is already read
	repository.EXPECT().FetchThread("bob", "alice").Return([]domain.Message{
		{ID: uuid.New(), SenderID: "alice", RecipientID: "bob", IsRead: true},
	}, nil).Times(1)

	marked, err := service.OpenConversation(context.Background(), "bob", "alice")
	req.NoError(err)
	req.Equal(0, marked)
}

func Test_OpenConversation_Marks_Unread_Batch(t *testing.T) {
	req := require.New(t)
	service, repository, _, _ := newServiceFixture(t)

	unread1 := uuid.New()
	unread2 := uuid.New()
	repository.EXPECT().FetchThread("bob", "alice").Return([]domain.Message{
		{ID: unread1, SenderID: "alice", RecipientID: "bob"},
		{ID: uuid.New(), SenderID: "bob", RecipientID: "alice"},
		{ID: unread2, SenderID: "alice", RecipientID: "bob"},
	}, nil).Times(1)
	repository.EXPECT().MarkRead("bob", []uuid.UUID{unread1, unread2}).Return(2, nil).Times(1)

	marked, err := service.OpenConversation(context.Background(), "bob", "alice")
	req.NoError(err)
	req.Equal(2, marked)
}

func Test_Search_Resolves_Only_Owner_Messages(t *testing.T) {
	req := require.New(t)
	service, repository, index, _ := newServiceFixture(t)

	mine := domain.Message{ID: uuid.New(), SenderID: "alice", RecipientID: "bob", Body: "referral for cardiology"}
	foreign := uuid.New()

	index.EXPECT().Search(gomock.Any(), "bob", "cardiology", 10).
		Return([]uuid.UUID{foreign, mine.ID}, nil).Times(1)
	repository.EXPECT().FetchInvolving("bob").Return([]domain.Message{mine}, nil).Times(1)

	results, err := service.Search(context.Background(), "bob", "cardiology", 10)
	req.NoError(err)

	// Then the id the index leaked from another thread is discarded
	req.Len(results, 1)
	req.Equal(mine.ID, results[0].ID)
}
