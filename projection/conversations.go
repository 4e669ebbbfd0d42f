// Package projection builds local conversation views from observed events.
// Handles ordering, deduplication, and read-state application.
// Does not emit events or interact with transports directly.
package projection

import (
	"care-link/domain"
	"care-link/domain/event"

	"github.com/google/uuid"
)

// Conversations is the per-owner incremental aggregate: one summary per
// counterpart, kept equivalent to a full rescan of the store.
//
// It is owned by a single session and is not safe for concurrent use;
// the session's event loop is its only writer.
type Conversations struct {
	owner         string
	byCounterpart map[string]*domain.Conversation
	seen          map[uuid.UUID]struct{} // feed delivery is at-least-once
}

func NewConversations(owner string) *Conversations {
	return &Conversations{
		owner:         owner,
		byCounterpart: make(map[string]*domain.Conversation),
		seen:          make(map[uuid.UUID]struct{}),
	}
}

func (c *Conversations) Owner() string { return c.owner }

// Consume applies a feed event to the aggregate.
func (c *Conversations) Consume(e event.FeedEvent) {
	switch evt := e.(type) {
	case event.MessageStored:
		c.applyMessage(evt)
	case event.ThreadRead:
		if evt.OwnerID == c.owner {
			c.ApplyRead(evt.CounterpartID, evt.Count)
		}
	}
}

// applyMessage folds one new message into the aggregate. CreatedAt is
// monotonic per store, but concurrent sends may reach the feed out of
// creation order, so the summary only moves forward: an older body never
// overwrites a newer one. The unread count still reflects every message
// exactly once.
func (c *Conversations) applyMessage(evt event.MessageStored) {
	if evt.SenderID != c.owner && evt.RecipientID != c.owner {
		return
	}
	if _, duplicate := c.seen[evt.ID]; duplicate {
		return
	}
	c.seen[evt.ID] = struct{}{}

	counterpart := evt.SenderID
	if counterpart == c.owner {
		counterpart = evt.RecipientID
	}

	conversation, ok := c.byCounterpart[counterpart]
	if !ok {
		conversation = &domain.Conversation{CounterpartID: counterpart}
		c.byCounterpart[counterpart] = conversation
	}
	if evt.At.After(conversation.LastMessageTime) {
		conversation.LastMessageBody = evt.Body
		conversation.LastMessageTime = evt.At
	}
	if evt.RecipientID == c.owner {
		conversation.UnreadCount++
	}
}

// ApplyRead decrements the unread count for counterpart by newlyRead.
// The count never goes negative: concurrent sessions may have marked an
// overlapping batch, in which case the surplus is already accounted for.
func (c *Conversations) ApplyRead(counterpart string, newlyRead int) {
	conversation, ok := c.byCounterpart[counterpart]
	if !ok {
		return
	}
	conversation.UnreadCount -= newlyRead
	if conversation.UnreadCount < 0 {
		conversation.UnreadCount = 0
	}
}

// ZeroUnread clears the unread count for counterpart. Called by the read
// tracker once its mark-read batch has been accepted by the store.
func (c *Conversations) ZeroUnread(counterpart string) {
	if conversation, ok := c.byCounterpart[counterpart]; ok {
		conversation.UnreadCount = 0
	}
}

// Rebuild replaces the aggregate with the result of a full store scan.
// This is the consistency baseline: for any snapshot of the store, Rebuild
// and the incremental path converge to the same view.
func (c *Conversations) Rebuild(messages []domain.Message) {
	c.byCounterpart = make(map[string]*domain.Conversation)
	c.seen = make(map[uuid.UUID]struct{})
	for _, message := range messages {
		if !message.Involves(c.owner) {
			continue
		}
		c.seen[message.ID] = struct{}{}

		counterpart := message.Counterpart(c.owner)
		conversation, ok := c.byCounterpart[counterpart]
		if !ok {
			conversation = &domain.Conversation{CounterpartID: counterpart}
			c.byCounterpart[counterpart] = conversation
		}
		if message.CreatedAt.After(conversation.LastMessageTime) {
			conversation.LastMessageBody = message.Body
			conversation.LastMessageTime = message.CreatedAt
		}
		if message.RecipientID == c.owner && !message.IsRead {
			conversation.UnreadCount++
		}
	}
}

// UnreadCount returns the current unread count for counterpart.
func (c *Conversations) UnreadCount(counterpart string) int {
	if conversation, ok := c.byCounterpart[counterpart]; ok {
		return conversation.UnreadCount
	}
	return 0
}

// List returns the sorted conversation list: most recent first, ties broken
// by counterpart id.
func (c *Conversations) List() []domain.Conversation {
	conversations := make([]domain.Conversation, 0, len(c.byCounterpart))
	for _, conversation := range c.byCounterpart {
		conversations = append(conversations, *conversation)
	}
	domain.SortConversations(conversations)
	return conversations
}
