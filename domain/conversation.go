package domain

import (
	"sort"
	"time"
)

// Conversation is the derived summary of a thread between an owner and one
// counterpart. It is never persisted; it is rebuilt from the store or kept
// fresh incrementally by the projection.
type Conversation struct {
	CounterpartID   string    `json:"counterpart_id"`
	CounterpartName string    `json:"counterpart_name,omitempty"` // attached from the profile directory
	LastMessageBody string    `json:"last_message_body"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
}

// SortConversations orders a conversation list for display: most recent
// activity first, ties broken by counterpart id so the order is deterministic.
func SortConversations(conversations []Conversation) {
	sort.Slice(conversations, func(i, j int) bool {
		if !conversations[i].LastMessageTime.Equal(conversations[j].LastMessageTime) {
			return conversations[i].LastMessageTime.After(conversations[j].LastMessageTime)
		}
		return conversations[i].CounterpartID < conversations[j].CounterpartID
	})
}
