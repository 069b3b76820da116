package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/weiawesome/wes-io-dm/internal/chaterr"
	"github.com/weiawesome/wes-io-dm/internal/idgen"
	"github.com/weiawesome/wes-io-dm/internal/roomid"
)

// MongoConfig locates the conversations collection.
type MongoConfig struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type messageDoc struct {
	ID        string    `bson:"id"`
	SenderID  string    `bson:"sender_id"`
	Text      string    `bson:"text"`
	Seen      bool      `bson:"seen"`
	Timestamp time.Time `bson:"timestamp"`
}

// conversationDoc embeds the whole log. unread[i] belongs to
// participants[i], and participants is sorted.
type conversationDoc struct {
	ID           string       `bson:"_id"`
	PairKey      string       `bson:"pair_key"`
	Participants []string     `bson:"participants"`
	Messages     []messageDoc `bson:"messages"`
	Unread       []int64      `bson:"unread"`
	CreatedAt    time.Time    `bson:"created_at"`
	UpdatedAt    time.Time    `bson:"updated_at"`
}

func (d *conversationDoc) pair() [2]string {
	var p [2]string
	copy(p[:], d.Participants)
	return p
}

func (d *conversationDoc) toDomain() *Conversation {
	p := d.pair()
	var unread [2]int64
	copy(unread[:], d.Unread)

	c := &Conversation{
		ID:           d.ID,
		Participants: p,
		Unread:       NewUnreadCount(p, unread[0], unread[1]),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.Messages != nil {
		c.Messages = make([]Message, 0, len(d.Messages))
		for _, m := range d.Messages {
			c.Messages = append(c.Messages, Message{ID: m.ID, SenderID: m.SenderID, Text: m.Text, Seen: m.Seen, Timestamp: m.Timestamp})
		}
	}
	return c
}

// MongoStore implements Store with one document per conversation. Each
// mutation is a single-document update, which MongoDB applies atomically;
// array filters are evaluated against the document at write time.
type MongoStore struct {
	client        *mongo.Client
	coll          *mongo.Collection
	ids           idgen.Generator
	maxTextLength int
	now           func() time.Time
}

// NewMongoStore connects, pings and ensures indexes.
func NewMongoStore(ctx context.Context, cfg MongoConfig, ids idgen.Generator, maxTextLength int) (*MongoStore, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, chaterr.StoreUnavailable("connect mongo", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, chaterr.StoreUnavailable("ping mongo", err)
	}

	s := &MongoStore{
		client:        client,
		coll:          client.Database(cfg.Database).Collection(cfg.Collection),
		ids:           ids,
		maxTextLength: maxTextLength,
		now:           func() time.Time { return time.Now().UTC() },
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uidx_pair_key"),
		},
		{
			Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	})
	if err != nil {
		return chaterr.StoreUnavailable("create indexes", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) FindOrCreate(ctx context.Context, a, b string) (*Conversation, error) {
	if err := ValidatePair(a, b); err != nil {
		return nil, err
	}
	pair := canonicalPair(a, b)
	key, _ := roomid.Compute(pair[0], pair[1])

	id, err := s.ids.Generate()
	if err != nil {
		return nil, err
	}
	filter, update := upsertConversation(key, id, pair, s.now())

	// Two concurrent upserts can both miss and race on insert. The loser
	// gets a duplicate key error and reads the winner's document below.
	_, err = s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, mongoErr("upsert conversation", err)
	}

	var doc conversationDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mongoErr("load conversation", err)
	}
	return doc.toDomain(), nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, conversationID, senderID, text string) (*Message, *Conversation, error) {
	if err := validateID("conversation id", conversationID); err != nil {
		return nil, nil, err
	}
	if err := validateID("sender id", senderID); err != nil {
		return nil, nil, err
	}
	if err := ValidateText(text, s.maxTextLength); err != nil {
		return nil, nil, err
	}

	// Participants never change after creation, so reading them to pick
	// the counter slot does not race with anything.
	pair, err := s.participants(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	slot, ok := otherSlot(pair, senderID)
	if !ok {
		return nil, nil, ErrNotParticipant
	}

	msgID, err := s.ids.Generate()
	if err != nil {
		return nil, nil, err
	}
	msg := messageDoc{ID: msgID, SenderID: senderID, Text: text, Timestamp: s.now()}
	filter, update := appendUpdate(conversationID, senderID, slot, msg)

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: "messages", Value: 0}})

	var doc conversationDoc
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, nil, mongoErr("append message", err)
	}

	out := Message{ID: msg.ID, SenderID: msg.SenderID, Text: msg.Text, Timestamp: msg.Timestamp}
	return &out, doc.toDomain(), nil
}

func (s *MongoStore) MarkSeen(ctx context.Context, conversationID, viewerID, counterpartID string) (*Conversation, error) {
	if err := validateID("conversation id", conversationID); err != nil {
		return nil, err
	}
	pair, err := s.participants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	slot, ok := slotOf(pair, viewerID)
	if !ok || viewerID == counterpartID {
		return nil, ErrNotParticipant
	}
	if _, ok := slotOf(pair, counterpartID); !ok {
		return nil, ErrNotParticipant
	}

	filter, update, arrayFilters := seenUpdate(conversationID, slot, bson.M{"m.sender_id": counterpartID, "m.seen": false})
	opts := options.FindOneAndUpdate().
		SetArrayFilters(arrayFilters).
		SetReturnDocument(options.After)

	var doc conversationDoc
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, mongoErr("mark seen", err)
	}
	return doc.toDomain(), nil
}

func (s *MongoStore) ListForUser(ctx context.Context, userID string) ([]*Conversation, error) {
	if err := validateID("user id", userID); err != nil {
		return nil, err
	}
	cur, err := s.coll.Find(ctx, bson.M{"participants": userID},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mongoErr("list conversations", err)
	}
	var docs []conversationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mongoErr("decode conversations", err)
	}

	out := make([]*Conversation, 0, len(docs))
	for i := range docs {
		if docs[i].Messages == nil {
			docs[i].Messages = []messageDoc{}
		}
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

// MarkAllSeen sweeps each of the user's conversations with one atomic
// update apiece. The pre-image returned by each update tells exactly which
// messages that update flipped.
func (s *MongoStore) MarkAllSeen(ctx context.Context, userID string) (int64, error) {
	if err := validateID("user id", userID); err != nil {
		return 0, err
	}
	cur, err := s.coll.Find(ctx, bson.M{"participants": userID},
		options.Find().SetProjection(bson.D{{Key: "participants", Value: 1}}))
	if err != nil {
		return 0, mongoErr("list conversations", err)
	}
	var heads []conversationDoc
	if err := cur.All(ctx, &heads); err != nil {
		return 0, mongoErr("decode conversations", err)
	}

	var flipped int64
	for _, h := range heads {
		slot, ok := slotOf(h.pair(), userID)
		if !ok {
			continue
		}
		filter, update, arrayFilters := seenUpdate(h.ID, slot, bson.M{"m.sender_id": bson.M{"$ne": userID}, "m.seen": false})
		opts := options.FindOneAndUpdate().
			SetArrayFilters(arrayFilters).
			SetReturnDocument(options.Before).
			SetProjection(bson.D{{Key: "messages.sender_id", Value: 1}, {Key: "messages.seen", Value: 1}})

		var before conversationDoc
		if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&before); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				continue
			}
			return flipped, mongoErr("mark all seen", err)
		}
		for _, m := range before.Messages {
			if m.SenderID != userID && !m.Seen {
				flipped++
			}
		}
	}
	return flipped, nil
}

func (s *MongoStore) participants(ctx context.Context, conversationID string) ([2]string, error) {
	var head conversationDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": conversationID},
		options.FindOne().SetProjection(bson.D{{Key: "participants", Value: 1}})).Decode(&head)
	if err != nil {
		return [2]string{}, mongoErr("load participants", err)
	}
	return head.pair(), nil
}

func upsertConversation(pairKey, id string, pair [2]string, now time.Time) (bson.M, bson.M) {
	filter := bson.M{"pair_key": pairKey}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":          id,
		"pair_key":     pairKey,
		"participants": []string{pair[0], pair[1]},
		"messages":     bson.A{},
		"unread":       []int64{0, 0},
		"created_at":   now,
		"updated_at":   now,
	}}
	return filter, update
}

// appendUpdate pushes msg and bumps the receiver's counter. Filtering on
// the sender keeps a non-participant from ever matching.
func appendUpdate(conversationID, senderID string, receiverSlot int, msg messageDoc) (bson.M, bson.M) {
	filter := bson.M{"_id": conversationID, "participants": senderID}
	update := bson.M{
		"$push": bson.M{"messages": msg},
		"$inc":  bson.M{unreadField(receiverSlot): 1},
		"$set":  bson.M{"updated_at": msg.Timestamp},
	}
	return filter, update
}

func seenUpdate(conversationID string, viewerSlot int, match bson.M) (bson.M, bson.M, []any) {
	filter := bson.M{"_id": conversationID}
	update := bson.M{"$set": bson.M{
		"messages.$[m].seen":     true,
		unreadField(viewerSlot): 0,
	}}
	return filter, update, []any{match}
}

func unreadField(slot int) string {
	return "unread." + strconv.Itoa(slot)
}

func mongoErr(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return chaterr.NotFound("conversation")
	case errors.Is(err, chaterr.ErrValidation), errors.Is(err, chaterr.ErrNotFound):
		return err
	default:
		return chaterr.StoreUnavailable(op, fmt.Errorf("mongo: %w", err))
	}
}

var _ Store = (*MongoStore)(nil)
