//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"care-link/domain"
	"care-link/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Append(draft domain.Draft, lang string) (domain.Message, error)
	FetchThread(userA, userB string) ([]domain.Message, error)
	FetchInvolving(userID string) ([]domain.Message, error)
	MarkRead(recipient string, ids []uuid.UUID) (int, error)
}

// MessageRepository is the single source of truth for messages.
// It accepts concurrent writers; visibility to other sessions goes through
// the feed or a subsequent fetch, never assumed instantaneous.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger

	mu     sync.Mutex
	lastAt time.Time // last assigned CreatedAt, guards monotonicity
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

// storedMessage is the on-disk shape of a message. is_read is the only
// field ever rewritten after insert.
type storedMessage struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
	Lang        string `json:"lang,omitempty"`
	IsRead      bool   `json:"is_read"`
	CreatedAt   int64  `json:"created_at"` // unix nanoseconds
}

// Key layout:
//
//	msg:{uuid}                         -> storedMessage (mutable: is_read)
//	thread:{pairKey}:{nano_padded}:{uuid} -> empty (per-pair index)
//	inbox:{user}:{nano_padded}:{uuid}     -> empty (one per participant)
//
// The 19-digit zero padding makes lexicographic order equal chronological
// order, so prefix scans return threads already sorted. The uuid tail keeps
// keys unique if two messages ever share a nanosecond (they cannot within a
// single store instance, see nextCreatedAt).
func primaryKey(id uuid.UUID) []byte {
	return []byte("msg:" + id.String())
}

func threadKey(pairKey string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("thread:%s:%019d:%s", pairKey, at.UnixNano(), id))
}

func inboxKey(user string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("inbox:%s:%019d:%s", user, at.UnixNano(), id))
}

// nextCreatedAt assigns the server timestamp. Strictly increasing within a
// store instance even if the wall clock stalls or steps backwards.
func (m *MessageRepository) nextCreatedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(m.lastAt) {
		now = m.lastAt.Add(time.Nanosecond)
	}
	m.lastAt = now
	return now
}

// Append validates the draft, assigns id and CreatedAt, and persists the
// message together with its two index entries in one transaction.
func (m *MessageRepository) Append(draft domain.Draft, lang string) (domain.Message, error) {
	if err := draft.Validate(); err != nil {
		return domain.Message{}, err
	}

	message := domain.Message{
		ID:          uuid.New(),
		SenderID:    draft.SenderID,
		RecipientID: draft.RecipientID,
		Body:        draft.Body,
		Lang:        lang,
		CreatedAt:   m.nextCreatedAt(),
	}

	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return domain.Message{}, err
	}

	pairKey := domain.PairKey(message.SenderID, message.RecipientID)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primaryKey(message.ID), bytes); err != nil {
			return err
		}
		if err := txn.Set(threadKey(pairKey, message.CreatedAt, message.ID), nil); err != nil {
			return err
		}
		if err := txn.Set(inboxKey(message.SenderID, message.CreatedAt, message.ID), nil); err != nil {
			return err
		}
		return txn.Set(inboxKey(message.RecipientID, message.CreatedAt, message.ID), nil)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// FetchThread returns every message between userA and userB, oldest first.
// The index scan yields creation order; the primary record is re-read so
// is_read is always current.
func (m *MessageRepository) FetchThread(userA, userB string) ([]domain.Message, error) {
	prefix := []byte(fmt.Sprintf("thread:%s:", domain.PairKey(userA, userB)))
	return m.scanIndex(prefix, false)
}

// FetchInvolving returns every message sent or received by userID, newest
// first. This is the reconciliation baseline for conversation rebuilds.
func (m *MessageRepository) FetchInvolving(userID string) ([]domain.Message, error) {
	prefix := []byte(fmt.Sprintf("inbox:%s:", userID))
	return m.scanIndex(prefix, true)
}

func (m *MessageRepository) scanIndex(prefix []byte, reverse bool) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = reverse
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := prefix
		if reverse {
			// Seek past the newest possible padded timestamp, then walk back.
			seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			// The uuid is the fixed-size tail of every index key.
			id, err := uuid.Parse(string(key[len(key)-36:]))
			if err != nil {
				return err
			}
			message, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	return messages, err
}

// MarkRead flips is_read to true for the given ids on behalf of recipient.
// Already-read ids are no-ops; the whole batch is rejected if any id is not
// addressed to the recipient. Returns the number of messages updated.
//
// Two sessions of the same recipient may mark the same thread concurrently;
// badger reports that as a transaction conflict, which is safe to retry
// because the operation is idempotent.
func (m *MessageRepository) MarkRead(recipient string, ids []uuid.UUID) (int, error) {
	for {
		updated, err := m.markReadOnce(recipient, ids)
		if err == badger.ErrConflict {
			m.log.Debug("Read batch conflicted, retrying", "recipient", recipient)
			continue
		}
		return updated, err
	}
}

func (m *MessageRepository) markReadOnce(recipient string, ids []uuid.UUID) (int, error) {
	updated := 0
	err := m.db.Update(func(txn *badger.Txn) error {
		updated = 0
		for _, id := range ids {
			message, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			if message.RecipientID != recipient {
				return fmt.Errorf("mark read %s: %w", id, errors.ErrNotRecipient)
			}
			if message.IsRead {
				continue
			}
			message.IsRead = true
			bytes, err := json.Marshal(fromMessage(message))
			if err != nil {
				return err
			}
			if err := txn.Set(primaryKey(id), bytes); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	m.log.Debug("Read batch applied", "recipient", recipient, "updated", updated)
	return updated, nil
}

func getMessage(txn *badger.Txn, id uuid.UUID) (domain.Message, error) {
	item, err := txn.Get(primaryKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return domain.Message{}, fmt.Errorf("%s: %w", id, errors.ErrUnknownMessage)
		}
		return domain.Message{}, err
	}
	var stored storedMessage
	if err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &stored)
	}); err != nil {
		return domain.Message{}, err
	}
	return toMessage(stored)
}

func fromMessage(message domain.Message) storedMessage {
	return storedMessage{
		ID:          message.ID.String(),
		SenderID:    message.SenderID,
		RecipientID: message.RecipientID,
		Body:        message.Body,
		Lang:        message.Lang,
		IsRead:      message.IsRead,
		CreatedAt:   message.CreatedAt.UnixNano(),
	}
}

func toMessage(stored storedMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(stored.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:          parsedID,
		SenderID:    stored.SenderID,
		RecipientID: stored.RecipientID,
		Body:        stored.Body,
		Lang:        stored.Lang,
		IsRead:      stored.IsRead,
		CreatedAt:   time.Unix(0, stored.CreatedAt).UTC(),
	}, nil
}

// UnreadIDs extracts the ids still unread by owner among thread messages.
func UnreadIDs(owner string, messages []domain.Message) []uuid.UUID {
	unread := lo.Filter(messages, func(item domain.Message, _ int) bool {
		return item.RecipientID == owner && !item.IsRead
	})
	return lo.Map(unread, func(item domain.Message, _ int) uuid.UUID {
		return item.ID
	})
}
