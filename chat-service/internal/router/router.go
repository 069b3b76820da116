// Package router turns client intents into conversation mutations and
// fans the resulting state out to every connection joined to the room.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/weiawesome/wes-io-dm/chat-service/internal/audit"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/kafka"
	"github.com/weiawesome/wes-io-dm/internal/chaterr"
	"github.com/weiawesome/wes-io-dm/internal/conversation"
	"github.com/weiawesome/wes-io-dm/internal/membership"
	"github.com/weiawesome/wes-io-dm/internal/presence"
	"github.com/weiawesome/wes-io-dm/internal/roomid"
	"github.com/weiawesome/wes-io-dm/internal/userdir"
	pkglog "github.com/weiawesome/wes-io-dm/pkg/log"
	"github.com/weiawesome/wes-io-dm/pkg/pubsub"
)

// Conn is a live client connection.
type Conn interface {
	ConnID() string
	SendMessage(message any) error
}

// Fanout delivers frames to the connections of this instance.
type Fanout interface {
	Join(connID, roomID string) bool
	Leave(connID, roomID string)
	BroadcastToRoom(roomID string, data []byte, exclude string)
	BroadcastToAll(data []byte, exclude string)
}

// PresenceTracker is satisfied by *presence.Tracker.
type PresenceTracker interface {
	SetOnline(ctx context.Context, userID string) (presence.Event, error)
	SetOffline(ctx context.Context, userID string) (presence.Event, error)
	Subscribe(buffer int) (<-chan presence.Event, func())
}

type Config struct {
	// InstanceID tags relayed events so this instance skips its own.
	InstanceID          string
	TypingExcludeSender bool
	MaxTextLength       int
}

// Deps are the collaborators. Relay, Events and Directory are optional.
type Deps struct {
	Store     conversation.Store
	Guard     membership.Guard
	Presence  PresenceTracker
	Fanout    Fanout
	Relay     pubsub.Publisher
	Events    kafka.EventProducer
	Directory userdir.Directory
}

type session struct {
	*domain.Session
	conn Conn
}

// Router owns the session registry. For any one room, mutation and
// broadcast happen under the room's lock, so peers observe broadcasts in
// commit order.
type Router struct {
	cfg       Config
	store     conversation.Store
	guard     membership.Guard
	presence  PresenceTracker
	fanout    Fanout
	relay     pubsub.Publisher
	events    kafka.EventProducer
	directory userdir.Directory

	mu       sync.RWMutex
	sessions map[string]*session // connID -> session

	rooms   *roomLocks
	convIDs sync.Map // roomID -> conversation id; ids never change
}

func New(cfg Config, deps Deps) (*Router, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("router: store is required")
	case deps.Guard == nil:
		return nil, errors.New("router: membership guard is required")
	case deps.Presence == nil:
		return nil, errors.New("router: presence tracker is required")
	case deps.Fanout == nil:
		return nil, errors.New("router: fanout is required")
	}
	events := deps.Events
	if events == nil {
		events = kafka.NoopProducer{}
	}
	return &Router{
		cfg:       cfg,
		store:     deps.Store,
		guard:     deps.Guard,
		presence:  deps.Presence,
		fanout:    deps.Fanout,
		relay:     deps.Relay,
		events:    events,
		directory: deps.Directory,
		sessions:  make(map[string]*session),
		rooms:     newRoomLocks(),
	}, nil
}

// Run broadcasts presence transitions globally, in the order the tracker
// applied them, until ctx is done.
func (r *Router) Run(ctx context.Context) {
	events, unsubscribe := r.presence.Subscribe(64)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			r.broadcastPresence(context.WithoutCancel(ctx), ev)
		}
	}
}

// Connect registers conn for userID and marks the user online.
func (r *Router) Connect(ctx context.Context, conn Conn, userID string) (Outcome, error) {
	if err := validateUserID(userID); err != nil {
		return Outcome{}, err
	}
	connID := conn.ConnID()

	r.mu.Lock()
	if _, exists := r.sessions[connID]; exists {
		r.mu.Unlock()
		return Outcome{}, chaterr.Validation("connection %s is already registered", connID)
	}
	r.sessions[connID] = &session{Session: domain.NewSession(connID, userID), conn: conn}
	r.mu.Unlock()

	ctx = withConn(ctx, connID, userID)
	audit.Log(ctx, audit.ActionConnect, userID, "connection registered")
	_ = conn.SendMessage(&domain.ConnectedMessage{Type: domain.MsgTypeConnected, ConnID: connID, UserID: userID})

	if _, err := r.presence.SetOnline(context.WithoutCancel(ctx), userID); err != nil {
		return r.drop(ctx, audit.ActionConnect, userID, "", ReasonPresenceUnavailable, err), nil
	}
	return Delivered, nil
}

// JoinChat subscribes the connection to the room it shares with target.
func (r *Router) JoinChat(ctx context.Context, connID, targetUserID string) (Outcome, error) {
	s, ok := r.session(connID)
	if !ok {
		return r.drop(ctx, audit.ActionJoinChat, "", targetUserID, ReasonUnknownConnection, nil), nil
	}
	roomID, err := pairRoom(s.UserID, targetUserID)
	if err != nil {
		return Outcome{}, err
	}
	ctx = withRoom(withConn(ctx, connID, s.UserID), roomID)

	if !r.fanout.Join(connID, roomID) {
		return r.drop(ctx, audit.ActionJoinChat, s.UserID, targetUserID, ReasonUnknownConnection, nil), nil
	}
	s.JoinRoom(roomID, targetUserID)

	_ = s.conn.SendMessage(&domain.ChatJoinedMessage{Type: domain.MsgTypeChatJoined, RoomID: roomID, TargetUserID: targetUserID})
	l := pkglog.Ctx(ctx)
	l.Debug().Str(pkglog.FieldTargetUserID, targetUserID).Msg("joined chat")
	return Delivered, nil
}

// SendMessage appends text to the conversation with target and broadcasts
// messageReceived followed by unreadCountUpdate. Sends between users who
// are not connected are dropped without any side effect.
func (r *Router) SendMessage(ctx context.Context, connID, targetUserID, text, tempID string) (Outcome, error) {
	s, ok := r.session(connID)
	if !ok {
		return r.drop(ctx, audit.ActionSendMessage, "", targetUserID, ReasonUnknownConnection, nil), nil
	}
	userID := s.UserID
	roomID, err := pairRoom(userID, targetUserID)
	if err != nil {
		return Outcome{}, err
	}
	if err := conversation.ValidateText(text, r.cfg.MaxTextLength); err != nil {
		return Outcome{}, err
	}

	ctx = withRoom(withConn(ctx, connID, userID), roomID)
	mctx := context.WithoutCancel(ctx)

	connected, err := r.guard.IsConnected(mctx, userID, targetUserID)
	if err != nil {
		if errors.Is(err, chaterr.ErrValidation) {
			return Outcome{}, err
		}
		return r.drop(ctx, audit.ActionSendMessage, userID, targetUserID, ReasonGuardUnavailable, err), nil
	}
	if !connected {
		return r.drop(ctx, audit.ActionSendMessage, userID, targetUserID, ReasonNotConnected, nil), nil
	}

	sender := r.profile(mctx, userID)

	unlock := r.rooms.lock(roomID)
	defer unlock()

	convID, err := r.conversationID(mctx, roomID, userID, targetUserID)
	if err != nil {
		return r.storeFailure(ctx, audit.ActionSendMessage, userID, targetUserID, err)
	}
	msg, conv, err := r.store.AppendMessage(mctx, convID, userID, text)
	if err != nil {
		if errors.Is(err, chaterr.ErrNotFound) {
			r.convIDs.Delete(roomID)
		}
		return r.storeFailure(ctx, audit.ActionSendMessage, userID, targetUserID, err)
	}
	unread := conv.Unread.Map()

	r.broadcastRoom(mctx, roomID, &domain.MessageReceivedMessage{
		Type:           domain.MsgTypeMessageReceived,
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		FirstName:      sender.FirstName,
		LastName:       sender.LastName,
		Text:           msg.Text,
		Seen:           msg.Seen,
		Timestamp:      msg.Timestamp,
		TempID:         tempID,
	}, "")
	r.broadcastRoom(mctx, roomID, &domain.UnreadCountUpdateMessage{
		Type:           domain.MsgTypeUnreadCountUpdate,
		ConversationID: conv.ID,
		UnreadCount:    unread,
	}, "")

	r.produce(mctx, &domain.ChatEvent{
		Type:           domain.ChatEventMessageAppended,
		ConversationID: conv.ID,
		RoomID:         roomID,
		UserID:         userID,
		TargetUserID:   targetUserID,
		MessageID:      msg.ID,
		Text:           msg.Text,
		UnreadCount:    unread,
		OccurredAt:     msg.Timestamp,
	})
	return Delivered, nil
}

// MarkSeen flags the target's messages as seen by the connection's user
// and broadcasts messagesSeen.
func (r *Router) MarkSeen(ctx context.Context, connID, targetUserID string) (Outcome, error) {
	s, ok := r.session(connID)
	if !ok {
		return r.drop(ctx, audit.ActionMarkSeen, "", targetUserID, ReasonUnknownConnection, nil), nil
	}
	userID := s.UserID
	roomID, err := pairRoom(userID, targetUserID)
	if err != nil {
		return Outcome{}, err
	}

	ctx = withRoom(withConn(ctx, connID, userID), roomID)
	mctx := context.WithoutCancel(ctx)

	unlock := r.rooms.lock(roomID)
	defer unlock()

	convID, err := r.conversationID(mctx, roomID, userID, targetUserID)
	if err != nil {
		return r.storeFailure(ctx, audit.ActionMarkSeen, userID, targetUserID, err)
	}
	conv, err := r.store.MarkSeen(mctx, convID, userID, targetUserID)
	if err != nil {
		if errors.Is(err, chaterr.ErrNotFound) {
			r.convIDs.Delete(roomID)
		}
		return r.storeFailure(ctx, audit.ActionMarkSeen, userID, targetUserID, err)
	}
	unread := conv.Unread.Map()

	r.broadcastRoom(mctx, roomID, &domain.MessagesSeenMessage{
		Type:           domain.MsgTypeMessagesSeen,
		ConversationID: conv.ID,
		UserID:         userID,
		UnreadCount:    unread,
	}, "")

	r.produce(mctx, &domain.ChatEvent{
		Type:           domain.ChatEventMessagesSeen,
		ConversationID: conv.ID,
		RoomID:         roomID,
		UserID:         userID,
		TargetUserID:   targetUserID,
		UnreadCount:    unread,
		OccurredAt:     conv.UpdatedAt,
	})
	return Delivered, nil
}

// Typing relays a typing indicator to the room. Nothing is stored.
func (r *Router) Typing(ctx context.Context, connID, targetUserID string, isTyping bool) (Outcome, error) {
	s, ok := r.session(connID)
	if !ok {
		return r.drop(ctx, audit.ActionTyping, "", targetUserID, ReasonUnknownConnection, nil), nil
	}
	roomID, err := pairRoom(s.UserID, targetUserID)
	if err != nil {
		return Outcome{}, err
	}

	exclude := ""
	if r.cfg.TypingExcludeSender {
		exclude = connID
	}
	ctx = withRoom(withConn(ctx, connID, s.UserID), roomID)
	r.broadcastRoom(context.WithoutCancel(ctx), roomID, &domain.TypingStatusMessage{
		Type:     domain.MsgTypeTypingStatus,
		UserID:   s.UserID,
		IsTyping: isTyping,
	}, exclude)
	return Delivered, nil
}

// SetPresence applies an explicit userOnline or userOffline intent for the
// connection's user.
func (r *Router) SetPresence(ctx context.Context, connID string, online bool) (Outcome, error) {
	s, ok := r.session(connID)
	if !ok {
		return r.drop(ctx, audit.ActionPresence, "", "", ReasonUnknownConnection, nil), nil
	}
	ctx = withConn(ctx, connID, s.UserID)

	var err error
	if online {
		_, err = r.presence.SetOnline(context.WithoutCancel(ctx), s.UserID)
	} else {
		_, err = r.presence.SetOffline(context.WithoutCancel(ctx), s.UserID)
	}
	if err != nil {
		return r.drop(ctx, audit.ActionPresence, s.UserID, "", ReasonPresenceUnavailable, err), nil
	}
	return Delivered, nil
}

// Disconnect marks the user offline, leaves every room and removes the
// session.
func (r *Router) Disconnect(ctx context.Context, connID string) (Outcome, error) {
	s, ok := r.session(connID)
	if !ok {
		return r.drop(ctx, audit.ActionDisconnect, "", "", ReasonUnknownConnection, nil), nil
	}
	ctx = withConn(ctx, connID, s.UserID)

	_, presenceErr := r.presence.SetOffline(context.WithoutCancel(ctx), s.UserID)

	for _, roomID := range s.Rooms() {
		r.fanout.Leave(connID, roomID)
		s.LeaveRoom(roomID)
	}

	r.mu.Lock()
	delete(r.sessions, connID)
	r.mu.Unlock()

	audit.Log(ctx, audit.ActionDisconnect, s.UserID, "connection closed")
	if presenceErr != nil {
		return r.drop(ctx, audit.ActionDisconnect, s.UserID, "", ReasonPresenceUnavailable, presenceErr), nil
	}
	return Delivered, nil
}

// Session returns the registry entry of connID.
func (r *Router) Session(connID string) (*domain.Session, bool) {
	s, ok := r.session(connID)
	if !ok {
		return nil, false
	}
	return s.Session, true
}

func (r *Router) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Router) session(connID string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// conversationID resolves the room's conversation, creating it on first
// use. Callers hold the room lock.
func (r *Router) conversationID(ctx context.Context, roomID, userID, targetUserID string) (string, error) {
	if id, ok := r.convIDs.Load(roomID); ok {
		return id.(string), nil
	}
	conv, err := r.store.FindOrCreate(ctx, userID, targetUserID)
	if err != nil {
		return "", err
	}
	r.convIDs.Store(roomID, conv.ID)
	return conv.ID, nil
}

func (r *Router) profile(ctx context.Context, userID string) userdir.Profile {
	if r.directory == nil {
		return userdir.Profile{}
	}
	profiles, err := r.directory.Resolve(ctx, userID)
	if err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Msg("sender profile lookup failed")
		return userdir.Profile{}
	}
	return profiles[userID]
}

func (r *Router) broadcastRoom(ctx context.Context, roomID string, message any, exclude string) {
	data, err := json.Marshal(message)
	if err != nil {
		l := pkglog.Ctx(ctx)
		l.Error().Err(err).Msg("failed to marshal room broadcast")
		return
	}
	r.fanout.BroadcastToRoom(roomID, data, exclude)
	r.publish(ctx, pubsub.RoomToGatewayChannel(roomID), pubsub.EventRoomBroadcast, roomID, data)
}

func (r *Router) broadcastPresence(ctx context.Context, ev presence.Event) {
	data, err := json.Marshal(&domain.UserStatusChangedMessage{
		Type:       domain.MsgTypeUserStatusChanged,
		UserID:     ev.UserID,
		IsOnline:   ev.IsOnline,
		LastActive: ev.At,
	})
	if err != nil {
		return
	}
	r.fanout.BroadcastToAll(data, "")
	r.publish(ctx, pubsub.ChannelPresenceToGateway, pubsub.EventPresenceBroadcast, "", data)
}

// publish relays a frame to the other gateway instances.
func (r *Router) publish(ctx context.Context, channel, eventType, roomID string, frame []byte) {
	if r.relay == nil {
		return
	}
	ev, err := pubsub.NewEvent(eventType, roomID, json.RawMessage(frame))
	if err == nil {
		ev.Origin = r.cfg.InstanceID
		err = r.relay.Publish(ctx, channel, ev)
	}
	if err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str("channel", channel).Msg("relay publish failed")
	}
}

func (r *Router) produce(ctx context.Context, ev *domain.ChatEvent) {
	if err := r.events.ProduceEvent(ctx, ev); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str("event_type", ev.Type).Msg("chat event not produced")
	}
}

// storeFailure returns validation errors to the caller and turns anything
// else into a logged drop.
func (r *Router) storeFailure(ctx context.Context, action, userID, targetUserID string, err error) (Outcome, error) {
	if errors.Is(err, chaterr.ErrValidation) {
		return Outcome{}, err
	}
	return r.drop(ctx, action, userID, targetUserID, ReasonStoreUnavailable, err), nil
}

func (r *Router) drop(ctx context.Context, action, userID, targetUserID, reason string, err error) Outcome {
	audit.Dropped(ctx, action, userID, targetUserID, reason, err)
	return Dropped(reason)
}

func pairRoom(userID, targetUserID string) (string, error) {
	if err := conversation.ValidatePair(userID, targetUserID); err != nil {
		return "", err
	}
	return roomid.Compute(userID, targetUserID)
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return chaterr.Validation("user id is required")
	}
	if strings.Contains(userID, roomid.Separator) {
		return chaterr.Validation("user id %q contains reserved separator", userID)
	}
	return nil
}

func withConn(ctx context.Context, connID, userID string) context.Context {
	return pkglog.WithStr(pkglog.WithStr(ctx, pkglog.FieldConnID, connID), pkglog.FieldUserID, userID)
}

func withRoom(ctx context.Context, roomID string) context.Context {
	return pkglog.WithStr(ctx, pkglog.FieldRoomID, roomID)
}
