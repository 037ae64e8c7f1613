// Package repositories holds the durable collaborators of the broker: the
// BadgerDB message log and the Bluge full-text index. Both sit downstream
// of the in-memory registry and are mirrors, never a second source of truth.
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"darkroom/domain"
)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

// storeKey builds the key "msg:{room}:{seq_padded}:{uuid}". The 19-digit
// zero padding keeps lexicographic order equal to sequence order; the UUID
// tail is a collision disconnector should a key ever be rewritten.
func storeKey(msg domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", msg.Room, msg.Seq, msg.ID))
}

// StoreMessage persists one accepted message. Called by the persister
// worker off the hot path.
func (m *MessageRepository) StoreMessage(msg domain.Message) error {
	bytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(msg), bytes)
	})
}

// RecentMessages returns up to limit messages of the room with Seq strictly
// below beforeSeq, in chronological order. beforeSeq == 0 means "from the
// latest". The padded sequence in the key lets a reverse prefix scan walk
// newest-first without decoding values it will discard.
func (m *MessageRepository) RecentMessages(room domain.RoomID, beforeSeq uint64, limit int) ([]domain.Message, error) {
	prefix := []byte(fmt.Sprintf("msg:%s:", room))
	var seekKey []byte
	if beforeSeq == 0 {
		// Largest possible key under the prefix, then walk backwards.
		seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999:")...)
	} else {
		seekKey = append(append([]byte{}, prefix...), []byte(fmt.Sprintf("%019d", beforeSeq))...)
	}

	var raw [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raw) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Reverse scan collected newest-first; flip to chronological.
	messages := make([]domain.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var msg domain.Message
		if err = json.Unmarshal(raw[i], &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
