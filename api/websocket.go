package api

import (
	"context"
	"net/http"
	"sync"

	"care-link/domain"
	"care-link/domain/event"
	"care-link/session"

	"github.com/gorilla/websocket"
)

// feedCommand is what the client sends upstream on the feed socket.
type feedCommand struct {
	Type        string `json:"type"` // "list", "thread" or "open"
	Counterpart string `json:"counterpart,omitempty"`
}

// feedFrame is what the server pushes downstream.
type feedFrame struct {
	Type          string                `json:"type"`
	Message       *event.MessageStored  `json:"message,omitempty"`
	Conversations []domain.Conversation `json:"conversations,omitempty"`
	Thread        []domain.Message      `json:"thread,omitempty"`
	Stale         bool                  `json:"stale,omitempty"`
	Counterpart   string                `json:"counterpart,omitempty"`
	MarkedRead    int                   `json:"marked_read,omitempty"`
	Error         string                `json:"error,omitempty"`
}

func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin header.
			return origin == "" || allowed[origin]
		},
	}
}

// HandleFeed upgrades GET /api/feed into the session's change feed stream.
// One subscriber and one session view live exactly as long as the socket;
// detaching on the way out guarantees no event is delivered afterwards.
func (h *Handler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	userID := identity(r.Context())

	upgrader := createUpgrader(h.allowedWS)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subscriber := h.orchestrator.Attach(userID)
	defer h.orchestrator.Detach(subscriber)

	sess := session.New(userID, h.repository, subscriber, h.monitor, h.log)

	// Gorilla connections allow one concurrent writer; the event pump and
	// the command replies share this lock.
	var writeMu sync.Mutex
	send := func(frame feedFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if writeErr := conn.WriteJSON(frame); writeErr != nil {
			h.log.Debug("Feed write failed", "session", subscriber.ID(), "error", writeErr)
		}
	}

	sess.OnEvent(func(evt event.FeedEvent) {
		if stored, ok := evt.(event.MessageStored); ok {
			send(feedFrame{Type: "message", Message: &stored})
		}
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		_ = sess.Run(ctx)
	}()

	h.log.Info("Feed session opened", "user", userID, "session", subscriber.ID())

	for {
		var cmd feedCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			h.log.Info("Feed session closed", "user", userID, "session", subscriber.ID())
			return
		}
		switch cmd.Type {
		case "list":
			conversations, stale := sess.Conversations()
			send(feedFrame{Type: "conversations", Conversations: conversations, Stale: stale})
		case "thread":
			messages, threadErr := sess.Thread(cmd.Counterpart)
			if threadErr != nil {
				send(feedFrame{Type: "error", Counterpart: cmd.Counterpart, Error: threadErr.Error()})
				continue
			}
			send(feedFrame{Type: "thread", Counterpart: cmd.Counterpart, Thread: messages})
		case "open":
			marked, openErr := sess.OpenConversation(cmd.Counterpart)
			if openErr != nil {
				send(feedFrame{Type: "error", Counterpart: cmd.Counterpart, Error: openErr.Error()})
				continue
			}
			send(feedFrame{Type: "read_applied", Counterpart: cmd.Counterpart, MarkedRead: marked})
		default:
			send(feedFrame{Type: "error", Error: "unknown command: " + cmd.Type})
		}
	}
}
