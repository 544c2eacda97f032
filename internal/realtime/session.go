package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/oggyb/muzz-connect/internal/auth"
	"github.com/oggyb/muzz-connect/internal/config"
	"github.com/oggyb/muzz-connect/internal/db"
	svcErr "github.com/oggyb/muzz-connect/internal/errors"
	"github.com/oggyb/muzz-connect/internal/metrics"
	"github.com/oggyb/muzz-connect/internal/room"
)

// ChatService is the persistence side of the realtime handlers.
type ChatService interface {
	AppendMessage(ctx context.Context, senderID, receiverID, body, msgType string) (db.Message, error)
	MarkRead(ctx context.Context, roomID, readerID string) (int64, error)
	UnreadCount(ctx context.Context, roomID, readerID string) (int64, error)
}

// Authenticator resolves a bearer token to its holder.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (auth.Identity, error)
}

// Handler upgrades HTTP requests to websocket sessions.
type Handler struct {
	hub      *Hub
	presence Presence
	chat     ChatService
	auth     Authenticator
	cfg      config.RealtimeConfig

	handshakeTimeout time.Duration
	upgrader         websocket.Upgrader
	log              *slog.Logger
	now              func() time.Time
}

func NewHandler(cfg *config.Config, hub *Hub, presence Presence, chat ChatService, authn Authenticator, log *slog.Logger) *Handler {
	timeout := cfg.Auth.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	h := &Handler{
		hub:              hub,
		presence:         presence,
		chat:             chat,
		auth:             authn,
		cfg:              cfg.Realtime,
		handshakeTimeout: timeout,
		log:              log.With("component", "realtime"),
		now:              func() time.Time { return time.Now().UTC() },
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.HTTP.AllowedOrigins),
	}
	return h
}

// originChecker accepts requests without an Origin header (native clients),
// a wildcard list, or an exact origin match.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] {
			return true
		}
		if set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && set[u.Scheme+"://"+u.Host]
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.WsHandshakeFailures.WithLabelValues("upgrade").Inc()
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	identity, err := h.handshake(r.Context(), conn, token)
	if err != nil {
		h.reject(conn, err)
		return
	}

	client := newClient(conn, identity.ID, identity.Name, h.cfg.SendBuffer)
	s := &session{
		h:       h,
		client:  client,
		id:      identity,
		limiter: rate.NewLimiter(rate.Limit(h.cfg.EventsPerSecond), h.cfg.EventBurst),
		log:     h.log.With("user", identity.ID, "conn", client.id),
	}

	h.hub.Register(client)
	go client.writePump()

	s.activate()
	defer s.close()
	s.run(r.Context())
}

// handshake authenticates the connection: header or query token, or else a
// first "authenticate" frame within the handshake timeout.
func (h *Handler) handshake(ctx context.Context, conn *websocket.Conn, token string) (auth.Identity, error) {
	deadline := time.Now().Add(h.handshakeTimeout)

	if token == "" {
		_ = conn.SetReadDeadline(deadline)
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return auth.Identity{}, svcErr.Wrap(svcErr.ErrAuthenticationFailed, err)
		}
		ev, err := DecodeEvent(frame)
		if err != nil {
			return auth.Identity{}, svcErr.Wrap(svcErr.ErrAuthenticationFailed, err)
		}
		a, ok := ev.(Authenticate)
		if !ok {
			return auth.Identity{}, svcErr.ErrAuthenticationFailed
		}
		token = a.Token
		_ = conn.SetReadDeadline(time.Time{})
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return h.auth.Resolve(ctx, token)
}

// reject reports the auth failure to the client and closes with a policy
// violation. The client never reaches the hub.
func (h *Handler) reject(conn *websocket.Conn, err error) {
	msg := svcErr.Public(err)
	reason := "auth_failed"
	switch {
	case errors.Is(err, svcErr.ErrTokenExpired):
		reason = "token_expired"
	case errors.Is(err, svcErr.ErrInvalidToken):
		reason = "invalid_token"
	}
	metrics.WsHandshakeFailures.WithLabelValues(reason).Inc()
	h.log.Info("websocket handshake rejected", "reason", reason, "err", err)

	deadline := time.Now().Add(writeWait)
	if frame, ferr := Frame(EventMessageError, MessageError{Message: msg}); ferr == nil {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg), deadline)
	_ = conn.Close()
}

// session is the Active state of one connection. Events are handled one at
// a time, in arrival order.
type session struct {
	h       *Handler
	client  *Client
	id      auth.Identity
	limiter *rate.Limiter
	log     *slog.Logger
}

func (s *session) activate() {
	now := s.h.now()
	s.h.hub.Join(room.Personal(s.id.ID), s.client)
	s.h.presence.Connect(s.id.ID, s.client.id, now)

	s.emit(EventAuthenticated, Authenticated{UserID: s.id.ID})
	if s.h.cfg.BroadcastPresence {
		s.broadcastAll(EventUserStatusChanged, UserStatus{UserID: s.id.ID, IsOnline: true})
	}
	s.log.Info("realtime session active")
}

func (s *session) close() {
	s.h.hub.Unregister(s.client)

	entry, offline := s.h.presence.Disconnect(s.id.ID, s.client.id, s.h.now())
	if offline && s.h.cfg.BroadcastPresence {
		lastSeen := entry.LastSeen
		s.broadcastAll(EventUserStatusChanged, UserStatus{UserID: s.id.ID, IsOnline: false, LastSeen: &lastSeen})
	}
	s.log.Info("realtime session closed", "offline", offline)
}

func (s *session) run(ctx context.Context) {
	s.client.prepareRead()
	for {
		_, frame, err := s.client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read ended", "err", err)
			}
			return
		}

		if !s.limiter.Allow() {
			metrics.WsEventsTotal.WithLabelValues("unknown", "rate_limited").Inc()
			s.fail("", "Too many events, slow down")
			continue
		}

		ev, err := DecodeEvent(frame)
		if err != nil {
			var evErr *EventError
			name := ""
			if errors.As(err, &evErr) {
				name = evErr.Event
			}
			metrics.WsEventsTotal.WithLabelValues(eventLabel(name), "invalid").Inc()
			s.fail(name, err.Error())
			continue
		}

		if _, ok := ev.(Logout); ok {
			metrics.WsEventsTotal.WithLabelValues(EventLogout, "ok").Inc()
			return
		}

		if err := s.handle(ctx, ev); err != nil {
			metrics.WsEventsTotal.WithLabelValues(ev.Name(), "error").Inc()
			s.fail(ev.Name(), svcErr.Public(err))
			continue
		}
		metrics.WsEventsTotal.WithLabelValues(ev.Name(), "ok").Inc()
	}
}

func (s *session) handle(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case Authenticate:
		// already authenticated; nothing to do
		return nil

	case JoinRoom:
		if e.OtherUserID == s.id.ID {
			return svcErr.ErrInvalidTarget
		}
		s.h.hub.Join(room.ID(s.id.ID, e.OtherUserID), s.client)
		return nil

	case SendMessage:
		return s.sendMessage(ctx, e)

	case MarkRead:
		if _, err := s.h.chat.MarkRead(ctx, e.RoomID, s.id.ID); err != nil {
			return err
		}
		s.broadcast(e.RoomID, EventMessagesRead, MessagesRead{RoomID: e.RoomID, ReaderID: s.id.ID})
		return nil

	case Typing:
		if !room.Has(e.RoomID, s.id.ID) {
			return svcErr.ErrNotRoomMember
		}
		s.broadcast(e.RoomID, EventUserTyping, UserTyping{
			RoomID:   e.RoomID,
			UserID:   s.id.ID,
			UserName: s.id.Name,
			IsTyping: e.IsTyping,
		})
		return nil

	case UserOnline:
		s.h.presence.Touch(s.id.ID, s.h.now())
		if s.h.cfg.BroadcastPresence {
			s.broadcastAll(EventUserStatusChanged, UserStatus{UserID: s.id.ID, IsOnline: true})
		}
		return nil
	}
	return nil
}

// sendMessage persists first; nothing is broadcast unless the write succeeded.
func (s *session) sendMessage(ctx context.Context, e SendMessage) error {
	msg, err := s.h.chat.AppendMessage(ctx, s.id.ID, e.ReceiverID, e.Message, e.MessageType)
	if err != nil {
		s.log.Warn("send_message failed", "receiver", e.ReceiverID, "err", err)
		return err
	}

	frame, err := Frame(EventNewMessage, msg)
	if err != nil {
		return err
	}
	s.h.hub.Broadcast(msg.RoomID, frame, nil)

	if !s.h.presence.Online(msg.ReceiverID) {
		return nil
	}
	unread, err := s.h.chat.UnreadCount(ctx, msg.RoomID, msg.ReceiverID)
	if err != nil {
		// the message is stored and delivered to the room; the badge can wait
		s.log.Warn("unread count for notification failed", "err", err)
		return nil
	}
	note, err := Frame(EventMessageNotification, MessageNotification{Message: msg, UnreadCount: unread})
	if err != nil {
		return err
	}
	// each receiver connection that has not joined the room gets the badge
	s.h.hub.BroadcastOutside(room.Personal(msg.ReceiverID), msg.RoomID, note)
	return nil
}

func (s *session) emit(event string, data any) {
	frame, err := Frame(event, data)
	if err != nil {
		s.log.Error("encode frame failed", "event", event, "err", err)
		return
	}
	s.h.hub.Send(s.client, frame)
}

// broadcast fans out to a group, skipping the originating connection.
func (s *session) broadcast(key, event string, data any) {
	frame, err := Frame(event, data)
	if err != nil {
		s.log.Error("encode frame failed", "event", event, "err", err)
		return
	}
	s.h.hub.Broadcast(key, frame, s.client)
}

func (s *session) broadcastAll(event string, data any) {
	frame, err := Frame(event, data)
	if err != nil {
		s.log.Error("encode frame failed", "event", event, "err", err)
		return
	}
	s.h.hub.BroadcastAll(frame, s.client)
}

func (s *session) fail(event, message string) {
	s.emit(EventMessageError, MessageError{Message: message, Event: event})
}

// eventLabel bounds metric label cardinality to known event names.
func eventLabel(name string) string {
	switch name {
	case EventAuthenticate, EventJoinRoom, EventSendMessage, EventMarkRead,
		EventTypingStart, EventTypingStop, EventUserOnline, EventLogout:
		return name
	}
	return "unknown"
}
