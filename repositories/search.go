package repositories

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/blugelabs/bluge"

	"darkroom/domain"
)

// MessageIndex is the full-text side index over persisted messages. It is
// written by the persister worker after the durable store; an index failure
// degrades search, never delivery.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// IndexMessage adds one message to the index. The whole record is kept as
// a stored-only field so search results can be returned without a second
// trip to Badger.
func (i *MessageIndex) IndexMessage(msg domain.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewTextField("body", msg.Body)).
		AddField(bluge.NewKeywordField("room", string(msg.Room))).
		AddField(bluge.NewKeywordField("sender", msg.Sender)).
		AddField(bluge.NewStoredOnlyField("raw", raw))
	return i.writer.Update(doc.ID(), doc)
}

// Search returns up to limit messages of the room matching the terms,
// best match first.
func (i *MessageIndex) Search(ctx context.Context, room domain.RoomID, terms string, limit int) ([]domain.Message, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("body")).
		AddMust(bluge.NewTermQuery(string(room)).SetField("room"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var messages []domain.Message
	match, err := iterator.Next()
	for err == nil && match != nil {
		var msg domain.Message
		var visitErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "raw" {
				visitErr = json.Unmarshal(value, &msg)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		if visitErr != nil {
			return nil, visitErr
		}
		messages = append(messages, msg)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return messages, nil
}
