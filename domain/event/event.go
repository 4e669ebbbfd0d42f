package event

import (
	"time"

	"github.com/google/uuid"
)

// FeedEvent is anything the change feed can carry to a session.
type FeedEvent interface {
	// Participants returns the two users the event is relevant to.
	Participants() [2]string
}

// MessageStored is emitted once per accepted append. Delivery to sessions is
// at-least-once; consumers dedupe on ID.
type MessageStored struct {
	ID          uuid.UUID `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Body        string    `json:"body"`
	Lang        string    `json:"lang,omitempty"`
	At          time.Time `json:"created_at"`
}

func (e MessageStored) Participants() [2]string {
	return [2]string{e.SenderID, e.RecipientID}
}

// ThreadRead is applied locally by the session that marked the thread read.
// The store's feed does not push read transitions to other sessions.
type ThreadRead struct {
	OwnerID       string
	CounterpartID string
	Count         int
}

func (e ThreadRead) Participants() [2]string {
	return [2]string{e.OwnerID, e.CounterpartID}
}
