package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/weiawesome/wes-io-dm/internal/chaterr"
)

func TestAppendUpdate(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := messageDoc{ID: "m1", SenderID: "alice", Text: "hi", Timestamp: ts}

	filter, update := appendUpdate("c1", "alice", 1, msg)

	assert.Equal(t, bson.M{"_id": "c1", "participants": "alice"}, filter)
	assert.Equal(t, bson.M{"messages": msg}, update["$push"])
	assert.Equal(t, bson.M{"unread.1": 1}, update["$inc"])
	assert.Equal(t, bson.M{"updated_at": ts}, update["$set"])
}

func TestSeenUpdate(t *testing.T) {
	match := bson.M{"m.sender_id": "bob", "m.seen": false}
	filter, update, arrayFilters := seenUpdate("c1", 0, match)

	assert.Equal(t, bson.M{"_id": "c1"}, filter)
	assert.Equal(t, bson.M{"messages.$[m].seen": true, "unread.0": 0}, update["$set"])
	assert.Equal(t, []any{match}, arrayFilters)
}

func TestUpsertConversation(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	filter, update := upsertConversation("key", "c1", [2]string{"alice", "bob"}, ts)

	assert.Equal(t, bson.M{"pair_key": "key"}, filter)
	doc := update["$setOnInsert"].(bson.M)
	assert.Equal(t, "c1", doc["_id"])
	assert.Equal(t, []string{"alice", "bob"}, doc["participants"])
	assert.Equal(t, []int64{0, 0}, doc["unread"])
	assert.Equal(t, ts, doc["created_at"])
}

func TestConversationDoc_ToDomain(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := conversationDoc{
		ID:           "c1",
		Participants: []string{"alice", "bob"},
		Messages:     []messageDoc{{ID: "m1", SenderID: "bob", Text: "hey", Timestamp: ts}},
		Unread:       []int64{1, 0},
		UpdatedAt:    ts,
	}

	c := d.toDomain()
	assert.Equal(t, [2]string{"alice", "bob"}, c.Participants)
	assert.EqualValues(t, 1, c.Unread.For("alice"))
	assert.Equal(t, []Message{{ID: "m1", SenderID: "bob", Text: "hey", Timestamp: ts}}, c.Messages)

	header := (&conversationDoc{ID: "c1", Participants: []string{"alice", "bob"}}).toDomain()
	assert.Nil(t, header.Messages)
	assert.EqualValues(t, 0, header.Unread.For("bob"))
}

func TestMongoErr(t *testing.T) {
	assert.ErrorIs(t, mongoErr("op", mongo.ErrNoDocuments), chaterr.ErrNotFound)
	assert.ErrorIs(t, mongoErr("op", ErrNotParticipant), chaterr.ErrValidation)

	err := mongoErr("op", errors.New("connection refused"))
	assert.ErrorIs(t, err, chaterr.ErrStoreUnavailable)
	assert.True(t, chaterr.Retryable(err))
}
