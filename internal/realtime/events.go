package realtime

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/oggyb/muzz-connect/internal/db"
	"github.com/oggyb/muzz-connect/internal/validation"
)

// Inbound event names.
const (
	EventAuthenticate = "authenticate"
	EventJoinRoom     = "join_chat_room"
	EventSendMessage  = "send_message"
	EventMarkRead     = "mark_messages_read"
	EventTypingStart  = "typing_start"
	EventTypingStop   = "typing_stop"
	EventUserOnline   = "user_online"
	EventLogout       = "logout"
)

// Outbound event names.
const (
	EventAuthenticated       = "authenticated"
	EventNewMessage          = "new_message"
	EventMessageNotification = "message_notification"
	EventMessagesRead        = "messages_read"
	EventUserTyping          = "user_typing"
	EventUserStatusChanged   = "user_status_changed"
	EventMessageError        = "message_error"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is a decoded inbound event.
type Event interface {
	Name() string
}

type Authenticate struct {
	Token string `json:"token" validate:"required"`
}

// JoinRoom accepts either a bare id string or {"otherUserId": "..."}.
type JoinRoom struct {
	OtherUserID string `json:"otherUserId" validate:"required"`
}

type SendMessage struct {
	ReceiverID  string `json:"receiverId" validate:"required"`
	Message     string `json:"message" validate:"max=5000"`
	MessageType string `json:"messageType"`
}

type MarkRead struct {
	RoomID string `json:"roomId" validate:"required"`
}

type Typing struct {
	RoomID   string `json:"roomId" validate:"required"`
	IsTyping bool   `json:"-"`
}

type UserOnline struct{}

type Logout struct{}

func (Authenticate) Name() string { return EventAuthenticate }
func (JoinRoom) Name() string     { return EventJoinRoom }
func (SendMessage) Name() string  { return EventSendMessage }
func (MarkRead) Name() string     { return EventMarkRead }
func (UserOnline) Name() string   { return EventUserOnline }
func (Logout) Name() string       { return EventLogout }

func (t Typing) Name() string {
	if t.IsTyping {
		return EventTypingStart
	}
	return EventTypingStop
}

// EventError reports an inbound frame that could not be decoded or validated.
type EventError struct {
	Event   string
	Message string
}

func (e *EventError) Error() string {
	if e.Event == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Event, e.Message)
}

// DecodeEvent parses one inbound frame into its typed event.
func DecodeEvent(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &EventError{Message: "malformed frame"}
	}

	var ev Event
	var err error
	switch env.Event {
	case EventAuthenticate:
		ev, err = decodeInto[Authenticate](env.Data)
	case EventJoinRoom:
		ev, err = decodeJoinRoom(env.Data)
	case EventSendMessage:
		ev, err = decodeInto[SendMessage](env.Data)
	case EventMarkRead:
		ev, err = decodeInto[MarkRead](env.Data)
	case EventTypingStart, EventTypingStop:
		var t Typing
		t, err = decodeInto[Typing](env.Data)
		t.IsTyping = env.Event == EventTypingStart
		ev = t
	case EventUserOnline:
		ev = UserOnline{}
	case EventLogout:
		ev = Logout{}
	case "":
		return nil, &EventError{Message: "event is required"}
	default:
		return nil, &EventError{Event: env.Event, Message: "unknown event"}
	}
	if err != nil {
		return nil, &EventError{Event: env.Event, Message: err.Error()}
	}
	return ev, nil
}

func decodeInto[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if err := json.Unmarshal(data, &v); err != nil {
			return v, fmt.Errorf("invalid payload")
		}
	}
	if err := validation.Struct(v); err != nil {
		return v, err
	}
	return v, nil
}

func decodeJoinRoom(data json.RawMessage) (JoinRoom, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		j := JoinRoom{OtherUserID: id}
		return j, validation.Struct(j)
	}
	return decodeInto[JoinRoom](data)
}

// Outbound payloads.

type MessageNotification struct {
	Message     db.Message `json:"message"`
	UnreadCount int64      `json:"unreadCount"`
}

type MessagesRead struct {
	RoomID   string `json:"roomId"`
	ReaderID string `json:"readerId"`
}

type UserTyping struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

type UserStatus struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type MessageError struct {
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

type Authenticated struct {
	UserID string `json:"userId"`
}

// Frame encodes an outbound event.
func Frame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
