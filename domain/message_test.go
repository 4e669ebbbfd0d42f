package domain

import (
	"testing"

	"care-link/errors"

	"github.com/stretchr/testify/require"
)

func TestDraftValidate(t *testing.T) {
	req := require.New(t)

	req.NoError(Draft{SenderID: "alice", RecipientID: "bob", Body: "hello"}.Validate())
	req.ErrorIs(Draft{SenderID: "alice", RecipientID: "bob", Body: ""}.Validate(), errors.ErrEmptyBody)
	req.ErrorIs(Draft{SenderID: "alice", RecipientID: "bob", Body: "   \t\n"}.Validate(), errors.ErrEmptyBody)
	req.ErrorIs(Draft{SenderID: "alice", RecipientID: "alice", Body: "note"}.Validate(), errors.ErrSelfAddressed)
}

func TestPairKeySymmetric(t *testing.T) {
	req := require.New(t)

	req.Equal(PairKey("alice", "bob"), PairKey("bob", "alice"))
	req.Equal("alice|bob", PairKey("bob", "alice"))
}

func TestCounterpart(t *testing.T) {
	req := require.New(t)
	message := Message{SenderID: "alice", RecipientID: "bob"}

	req.Equal("bob", message.Counterpart("alice"))
	req.Equal("alice", message.Counterpart("bob"))
	req.True(message.Involves("alice"))
	req.False(message.Involves("clara"))
}
