// Package feed implements the change feed: per-session subscribers and the
// registry that routes newly stored messages to every open session of both
// participants.
package feed

import (
	"sync"

	"care-link/contract"
)

type Set map[string]struct{}

// Registry tracks live sessions. One user may hold several sessions at once
// (two browser tabs, a phone and a desktop); each gets its own subscriber.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]contract.EventSink // session id -> sink
	userSessions map[string]Set                // user id -> session ids
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:     make(map[string]contract.EventSink),
		userSessions: make(map[string]Set),
	}
}

// SinksFor resolves all active sinks for a user. Two-step lookup:
// session ids via userSessions, then the actual sinks via sessions.
// Returns nil if the user has no open session.
func (r *Registry) SinksFor(userID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.userSessions[userID]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for sessionID := range members {
		if sink, exists := r.sessions[sessionID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

// Subscribe registers a session's sink under its user.
func (r *Registry) Subscribe(sessionID, userID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sessionID] = sink

	if _, ok := r.userSessions[userID]; !ok {
		r.userSessions[userID] = make(Set)
	}
	r.userSessions[userID][sessionID] = struct{}{}
}

// Unsubscribe removes a session. Empty per-user sets are deleted so the map
// does not grow with every reconnect.
func (r *Registry) Unsubscribe(sessionID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)

	if members, ok := r.userSessions[userID]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.userSessions, userID)
		}
	}
}
