// Package domain contains core concepts of the referral messaging system.
// Messages are immutable once stored, except for the read flag which is
// flipped exactly once through the read tracker.
package domain

import (
	"strings"
	"time"

	"care-link/errors"

	"github.com/google/uuid"
)

// Message is a direct message between two portal users.
type Message struct {
	ID          uuid.UUID `json:"id"` // unique identifier, assigned by the store
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Body        string    `json:"body"`
	Lang        string    `json:"lang,omitempty"` // ISO-639-1 code detected at send time, presentation only
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"` // server-assigned, strictly increasing per store
}

// Draft is a message before the store has accepted it.
type Draft struct {
	SenderID    string
	RecipientID string
	Body        string
}

// Validate rejects drafts the store must never accept: blank bodies and
// self-addressed messages.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Body) == "" {
		return errors.ErrEmptyBody
	}
	if d.SenderID == d.RecipientID {
		return errors.ErrSelfAddressed
	}
	return nil
}

// Counterpart returns the other participant relative to owner.
func (m Message) Counterpart(owner string) string {
	if m.SenderID == owner {
		return m.RecipientID
	}
	return m.SenderID
}

// Involves reports whether user is a participant of the message.
func (m Message) Involves(user string) bool {
	return m.SenderID == user || m.RecipientID == user
}

// PairKey builds the canonical identifier of a two-party thread.
// The pair is ordered lexicographically so both directions map to
// the same thread.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
