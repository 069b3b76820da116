package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-dm/chat-service/internal/audit"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/config"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/router"
	"github.com/weiawesome/wes-io-dm/internal/chaterr"
	"github.com/weiawesome/wes-io-dm/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-dm/pkg/log"
	"github.com/weiawesome/wes-io-dm/pkg/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var errNoCredentials = errors.New("missing credentials")

// ChatRouter is the intent surface of *router.Router.
type ChatRouter interface {
	Connect(ctx context.Context, conn router.Conn, userID string) (router.Outcome, error)
	JoinChat(ctx context.Context, connID, targetUserID string) (router.Outcome, error)
	SendMessage(ctx context.Context, connID, targetUserID, text, tempID string) (router.Outcome, error)
	MarkSeen(ctx context.Context, connID, targetUserID string) (router.Outcome, error)
	Typing(ctx context.Context, connID, targetUserID string, isTyping bool) (router.Outcome, error)
	SetPresence(ctx context.Context, connID string, online bool) (router.Outcome, error)
	Disconnect(ctx context.Context, connID string) (router.Outcome, error)
}

type WSHandler struct {
	hub       *hub.Hub
	router    ChatRouter
	validator jwt.Validator
	wsCfg     config.WebSocketConfig
	authCfg   config.AuthConfig
}

func NewWSHandler(h *hub.Hub, r ChatRouter, v jwt.Validator, wsCfg config.WebSocketConfig, authCfg config.AuthConfig) *WSHandler {
	return &WSHandler{
		hub:       h,
		router:    r,
		validator: v,
		wsCfg:     wsCfg,
		authCfg:   authCfg,
	}
}

// HandleWebSocket resolves the caller before upgrading; an unauthenticated
// request never becomes a connection.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		audit.LogWithDetail(r.Context(), audit.ActionAuthFailed, "", err.Error(), "websocket handshake rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := pkglog.Ctx(r.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The request context ends with this handler; the connection outlives it.
	ctx := context.WithoutCancel(r.Context())
	client := hub.NewClient(uuid.NewString(), userID, h.hub, conn, h.wsCfg)
	ctx = pkglog.WithStr(pkglog.WithStr(ctx, pkglog.FieldConnID, client.ID), pkglog.FieldUserID, userID)

	h.hub.Register(client)
	go client.WritePump()

	if _, err := h.router.Connect(ctx, client, userID); err != nil {
		_ = client.SendMessage(errorFrame(err))
		h.hub.Unregister(client)
		return
	}

	go client.ReadPump(
		func(c *hub.Client, message []byte) { h.Dispatch(ctx, c, c.UserID, message) },
		func(c *hub.Client) { _, _ = h.router.Disconnect(ctx, c.ID) },
	)
}

// authenticate returns the handshake identity: a bearer token from the
// token query parameter or the Authorization header, or the plain userId
// parameter when insecure identities are allowed.
func (h *WSHandler) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r.Header.Get(middleware.AuthHeaderKey))
	}
	if token != "" && h.validator != nil {
		claims, err := h.validator.ValidateToken(token)
		if err != nil {
			return "", err
		}
		return claims.UserID, nil
	}
	if h.authCfg.AllowInsecureUserID {
		if userID := r.URL.Query().Get("userId"); userID != "" {
			return userID, nil
		}
	}
	return "", errNoCredentials
}

// Dispatch decodes one client frame and applies it as userID on conn.
func (h *WSHandler) Dispatch(ctx context.Context, conn router.Conn, userID string, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		_ = conn.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	connID := conn.ConnID()
	var err error

	switch base.Type {
	case domain.MsgTypeJoinChat:
		var msg domain.JoinChatMessage
		if err = decode(message, &msg); err == nil {
			if err = checkIdentity(msg.UserID, userID); err == nil {
				_, err = h.router.JoinChat(ctx, connID, msg.TargetUserID)
			}
		}

	case domain.MsgTypeSendMessage:
		var msg domain.SendMessageMessage
		if err = decode(message, &msg); err == nil {
			if err = checkIdentity(msg.UserID, userID); err == nil {
				_, err = h.router.SendMessage(ctx, connID, msg.TargetUserID, msg.Text, msg.TempID)
			}
		}

	case domain.MsgTypeMarkAsSeen:
		var msg domain.MarkAsSeenMessage
		if err = decode(message, &msg); err == nil {
			if err = checkIdentity(msg.UserID, userID); err == nil {
				_, err = h.router.MarkSeen(ctx, connID, msg.TargetUserID)
			}
		}

	case domain.MsgTypeTyping:
		var msg domain.TypingMessage
		if err = decode(message, &msg); err == nil {
			if err = checkIdentity(msg.UserID, userID); err == nil {
				_, err = h.router.Typing(ctx, connID, msg.TargetUserID, msg.IsTyping)
			}
		}

	case domain.MsgTypeUserOnline, domain.MsgTypeUserOffline:
		var msg domain.PresenceMessage
		if err = decode(message, &msg); err == nil {
			if err = checkIdentity(msg.UserID, userID); err == nil {
				_, err = h.router.SetPresence(ctx, connID, base.Type == domain.MsgTypeUserOnline)
			}
		}

	case domain.MsgTypePing:
		_ = conn.SendMessage(&domain.PongMessage{Type: domain.MsgTypePong})

	default:
		_ = conn.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown message type"))
	}

	if err != nil {
		l := pkglog.Ctx(ctx)
		l.Debug().Err(err).Str(pkglog.FieldIntent, base.Type).Msg("intent rejected")
		_ = conn.SendMessage(errorFrame(err))
	}
}

func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/chat/ws", h.HandleWebSocket).Methods(http.MethodGet)
}

var errBadFrame = errors.New("malformed intent")

func decode(message []byte, dst any) error {
	if err := json.Unmarshal(message, dst); err != nil {
		return errBadFrame
	}
	return nil
}

// checkIdentity rejects a payload userId that disagrees with the
// handshake identity.
func checkIdentity(claimed, userID string) error {
	if claimed != "" && claimed != userID {
		return chaterr.Validation("userId does not match the connection")
	}
	return nil
}

func errorFrame(err error) *domain.ErrorMessage {
	switch {
	case errors.Is(err, errBadFrame):
		return domain.NewErrorMessage(domain.ErrCodeBadRequest, err.Error())
	case errors.Is(err, chaterr.ErrValidation):
		return domain.NewErrorMessage(domain.ErrCodeValidation, err.Error())
	default:
		return domain.NewErrorMessage(domain.ErrCodeInternalError, "internal error")
	}
}
