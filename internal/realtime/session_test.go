package realtime_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-connect/internal/app"
	"github.com/oggyb/muzz-connect/internal/auth"
	"github.com/oggyb/muzz-connect/internal/config"
	"github.com/oggyb/muzz-connect/internal/db"
	"github.com/oggyb/muzz-connect/internal/db/dbtest"
	svcErr "github.com/oggyb/muzz-connect/internal/errors"
	"github.com/oggyb/muzz-connect/internal/logger"
	"github.com/oggyb/muzz-connect/internal/realtime"
	"github.com/oggyb/muzz-connect/internal/service/chat"
	"github.com/oggyb/muzz-connect/internal/service/match"
)

type testEnv struct {
	server   *httptest.Server
	tokens   *auth.TokenManager
	presence *realtime.MemoryPresence
}

// failingChat fails every message whose body is failBody, as a lost DB
// connection would.
type failingChat struct {
	realtime.ChatService
	failBody string
}

func (f failingChat) AppendMessage(ctx context.Context, senderID, receiverID, body, msgType string) (db.Message, error) {
	if body == f.failBody {
		return db.Message{}, svcErr.Map(errors.New("driver: bad connection"))
	}
	return f.ChatService.AppendMessage(ctx, senderID, receiverID, body, msgType)
}

func setupEnv(t *testing.T, wrap ...func(realtime.ChatService) realtime.ChatService) *testEnv {
	t.Helper()

	gdb := dbtest.New(t)
	dbtest.SeedUser(t, gdb, "a", "Alice", db.GenderFemale)
	dbtest.SeedUser(t, gdb, "b", "Bob", db.GenderMale)

	cfg := config.Default()
	cfg.Auth.HandshakeTimeout = 500 * time.Millisecond
	log := logger.Discard()
	appCtx := app.New(cfg, gdb, nil, log)

	tokens := auth.NewTokenManager("secret", time.Hour)
	var chatSvc realtime.ChatService = chat.NewService(appCtx, match.NewService(appCtx))
	for _, w := range wrap {
		chatSvc = w(chatSvc)
	}
	presence := realtime.NewMemoryPresence()
	hub := realtime.NewHub(log)
	h := realtime.NewHandler(cfg, hub, presence, chatSvc, auth.NewResolver(tokens, gdb), log)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, tokens: tokens, presence: presence}
}

func (e *testEnv) url(query string) string {
	u := "ws" + strings.TrimPrefix(e.server.URL, "http")
	if query != "" {
		u += "?" + query
	}
	return u
}

func (e *testEnv) token(t *testing.T, id string) string {
	t.Helper()
	tok, err := e.tokens.Issue(auth.Identity{ID: id})
	require.NoError(t, err)
	return tok
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(realtime.Envelope{Event: event, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// readUntil skips frames until one named event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		var env realtime.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		if env.Event == event {
			return env.Data
		}
	}
}

// settle waits until every event sent so far on conn has been handled, using
// the error reply to an event the server is bound to reject.
func settle(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, realtime.EventTypingStart, realtime.Typing{RoomID: "chat_x_y"})
	readUntil(t, conn, realtime.EventMessageError)
}

func dialAs(t *testing.T, env *testEnv, id string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+env.token(t, id))
	conn := dial(t, env.url(""), header)
	readUntil(t, conn, realtime.EventAuthenticated)
	return conn
}

func TestSession_ChatFlow(t *testing.T) {
	env := setupEnv(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+env.token(t, "a"))
	alice := dial(t, env.url(""), header)
	readUntil(t, alice, realtime.EventAuthenticated)

	// Bob authenticates with a first frame instead of a header
	bob := dial(t, env.url(""), nil)
	send(t, bob, realtime.EventAuthenticate, realtime.Authenticate{Token: env.token(t, "b")})
	readUntil(t, bob, realtime.EventAuthenticated)

	var status realtime.UserStatus
	require.NoError(t, json.Unmarshal(readUntil(t, alice, realtime.EventUserStatusChanged), &status))
	assert.Equal(t, "b", status.UserID)
	assert.True(t, status.IsOnline)
	assert.True(t, env.presence.Online("b"))

	// Alice opens the room; Bob is online but elsewhere
	send(t, alice, realtime.EventJoinRoom, "b")
	send(t, alice, realtime.EventSendMessage, realtime.SendMessage{ReceiverID: "b", Message: "hi"})

	var msg db.Message
	require.NoError(t, json.Unmarshal(readUntil(t, alice, realtime.EventNewMessage), &msg))
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, "chat_a_b", msg.RoomID)

	var note realtime.MessageNotification
	require.NoError(t, json.Unmarshal(readUntil(t, bob, realtime.EventMessageNotification), &note))
	assert.Equal(t, msg.ID, note.Message.ID)
	assert.Equal(t, int64(1), note.UnreadCount)

	// Bob joins; typing is only seen by the other side
	send(t, bob, realtime.EventJoinRoom, realtime.JoinRoom{OtherUserID: "a"})
	send(t, bob, realtime.EventTypingStart, realtime.Typing{RoomID: "chat_a_b"})
	var typing realtime.UserTyping
	require.NoError(t, json.Unmarshal(readUntil(t, alice, realtime.EventUserTyping), &typing))
	assert.Equal(t, "b", typing.UserID)
	assert.Equal(t, "Bob", typing.UserName)
	assert.True(t, typing.IsTyping)

	send(t, alice, realtime.EventSendMessage, realtime.SendMessage{ReceiverID: "b", Message: "still there?"})
	require.NoError(t, json.Unmarshal(readUntil(t, bob, realtime.EventNewMessage), &msg))
	assert.Equal(t, "still there?", msg.Body)

	send(t, bob, realtime.EventMarkRead, realtime.MarkRead{RoomID: "chat_a_b"})
	var read realtime.MessagesRead
	require.NoError(t, json.Unmarshal(readUntil(t, alice, realtime.EventMessagesRead), &read))
	assert.Equal(t, realtime.MessagesRead{RoomID: "chat_a_b", ReaderID: "b"}, read)

	// failures go to the sender only
	send(t, bob, realtime.EventSendMessage, realtime.SendMessage{ReceiverID: "a", Message: "   "})
	var failure realtime.MessageError
	require.NoError(t, json.Unmarshal(readUntil(t, bob, realtime.EventMessageError), &failure))
	assert.Equal(t, "Message cannot be empty", failure.Message)
	assert.Equal(t, realtime.EventSendMessage, failure.Event)

	send(t, bob, realtime.EventLogout, struct{}{})
	require.NoError(t, json.Unmarshal(readUntil(t, alice, realtime.EventUserStatusChanged), &status))
	assert.Equal(t, "b", status.UserID)
	assert.False(t, status.IsOnline)
	assert.NotNil(t, status.LastSeen)
}

func TestSession_HandshakeRejected(t *testing.T) {
	env := setupEnv(t)

	tests := []struct {
		name    string
		url     string
		frame   func(*websocket.Conn)
		wantMsg string
	}{
		{name: "invalid query token", url: env.url("token=garbage"), wantMsg: "Invalid token"},
		{name: "unknown user", url: env.url("token=" + env.token(t, "ghost")), wantMsg: "Authentication failed"},
		{
			name: "first frame is not authenticate",
			url:  env.url(""),
			frame: func(c *websocket.Conn) {
				send(t, c, realtime.EventUserOnline, struct{}{})
			},
			wantMsg: "Authentication failed",
		},
		{name: "silent client times out", url: env.url(""), wantMsg: "Authentication failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, tt.url, nil)
			if tt.frame != nil {
				tt.frame(conn)
			}

			var failure realtime.MessageError
			require.NoError(t, json.Unmarshal(readUntil(t, conn, realtime.EventMessageError), &failure))
			assert.Equal(t, tt.wantMsg, failure.Message)

			_, _, err := conn.ReadMessage()
			assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
		})
	}
}

func TestSession_PersistenceFailureKeepsSessionUsable(t *testing.T) {
	env := setupEnv(t, func(c realtime.ChatService) realtime.ChatService {
		return failingChat{ChatService: c, failBody: "lost"}
	})

	alice := dialAs(t, env, "a")
	bob := dialAs(t, env, "b")
	send(t, alice, realtime.EventJoinRoom, "b")
	send(t, bob, realtime.EventJoinRoom, "a")
	settle(t, alice)
	settle(t, bob)

	send(t, alice, realtime.EventSendMessage, realtime.SendMessage{ReceiverID: "b", Message: "lost"})
	var failure realtime.MessageError
	require.NoError(t, json.Unmarshal(readUntil(t, alice, realtime.EventMessageError), &failure))
	assert.Equal(t, svcErr.GenericMessage, failure.Message)
	assert.Equal(t, realtime.EventSendMessage, failure.Event)

	// same socket still works, and the failed message never reached the room
	send(t, alice, realtime.EventSendMessage, realtime.SendMessage{ReceiverID: "b", Message: "delivered"})

	var msg db.Message
	require.NoError(t, json.Unmarshal(readUntil(t, bob, realtime.EventNewMessage), &msg))
	assert.Equal(t, "delivered", msg.Body)
	require.NoError(t, json.Unmarshal(readUntil(t, alice, realtime.EventNewMessage), &msg))
	assert.Equal(t, "delivered", msg.Body)
}

func TestSession_NotificationPerConnection(t *testing.T) {
	env := setupEnv(t)

	alice := dialAs(t, env, "a")
	bobInRoom := dialAs(t, env, "b")
	bobElsewhere := dialAs(t, env, "b")
	send(t, bobInRoom, realtime.EventJoinRoom, "a")
	settle(t, bobInRoom)

	send(t, alice, realtime.EventSendMessage, realtime.SendMessage{ReceiverID: "b", Message: "hey"})

	var msg db.Message
	require.NoError(t, json.Unmarshal(readUntil(t, bobInRoom, realtime.EventNewMessage), &msg))
	assert.Equal(t, "hey", msg.Body)

	var note realtime.MessageNotification
	require.NoError(t, json.Unmarshal(readUntil(t, bobElsewhere, realtime.EventMessageNotification), &note))
	assert.Equal(t, msg.ID, note.Message.ID)
	assert.Equal(t, int64(1), note.UnreadCount)

	// the in-room connection gets no badge: the rejected typing event is
	// answered before any other chat frame
	send(t, bobInRoom, realtime.EventTypingStart, realtime.Typing{RoomID: "chat_x_y"})
	require.NoError(t, bobInRoom.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, frame, err := bobInRoom.ReadMessage()
		require.NoError(t, err)
		var next realtime.Envelope
		require.NoError(t, json.Unmarshal(frame, &next))
		if next.Event == realtime.EventUserStatusChanged {
			continue
		}
		assert.Equal(t, realtime.EventMessageError, next.Event)
		break
	}
}
