package chat

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-connect/internal/app"
	"github.com/oggyb/muzz-connect/internal/config"
	"github.com/oggyb/muzz-connect/internal/db"
	svcErr "github.com/oggyb/muzz-connect/internal/errors"
	"github.com/oggyb/muzz-connect/internal/metrics"
	"github.com/oggyb/muzz-connect/internal/repository"
	"github.com/oggyb/muzz-connect/internal/room"
	"github.com/oggyb/muzz-connect/internal/service/match"
)

// MatchLister supplies mutual matches so fresh matches show up as empty
// conversations.
type MatchLister interface {
	ListMatches(ctx context.Context, userID string) ([]match.Match, error)
}

// Service owns room identity and the message log.
type Service struct {
	cfg         config.ChatConfig
	messageRepo *repository.MessageRepository
	userRepo    *repository.UserRepository
	matches     MatchLister
	log         *slog.Logger
	now         func() time.Time
}

func NewService(appCtx *app.AppContext, matches MatchLister) *Service {
	return &Service{
		cfg:         appCtx.Config.Chat,
		messageRepo: repository.NewMessageRepository(appCtx.DB),
		userRepo:    repository.NewUserRepository(appCtx.DB),
		matches:     matches,
		log:         appCtx.Logger.With("component", "chat"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RoomIDFor is the room shared by a and b, independent of argument order.
func RoomIDFor(a, b string) string { return room.ID(a, b) }

// ParseRoomID returns the two participants of a room id.
func ParseRoomID(id string) (a, b string, ok bool) { return room.Parse(id) }

// AppendMessage persists a message from sender to receiver, unread.
func (s *Service) AppendMessage(ctx context.Context, senderID, receiverID, body, msgType string) (db.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return db.Message{}, svcErr.ErrEmptyBody
	}
	switch msgType {
	case "":
		msgType = db.MessageText
	case db.MessageText, db.MessageImage, db.MessageLocation:
	default:
		return db.Message{}, svcErr.ErrInvalidMessageType
	}
	if senderID == receiverID {
		return db.Message{}, svcErr.ErrInvalidTarget
	}

	ok, err := s.userRepo.Exists(ctx, receiverID)
	if err != nil {
		return db.Message{}, svcErr.Map(err)
	}
	if !ok {
		return db.Message{}, svcErr.ErrReceiverNotFound
	}

	msg := db.Message{
		RoomID:     room.ID(senderID, receiverID),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		Type:       msgType,
	}
	if err := s.messageRepo.Create(ctx, &msg); err != nil {
		s.log.Error("persist message failed", "room", msg.RoomID, "err", err)
		return db.Message{}, svcErr.Map(err)
	}
	metrics.MessagesTotal.WithLabelValues(msgType).Inc()
	return msg, nil
}

// Page is one slice of a room's history, oldest first.
type Page struct {
	Messages    []db.Message
	RoomID      string
	CurrentPage int
	HasMore     bool
}

// History returns page `page` of the conversation between reader and other,
// then marks everything addressed to reader in that room as read. The page
// reflects the state before the read update.
func (s *Service) History(ctx context.Context, readerID, otherUserID string, page, pageSize int) (Page, error) {
	if readerID == otherUserID {
		return Page{}, svcErr.ErrInvalidTarget
	}
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = s.cfg.DefaultPageSize
	case pageSize > s.cfg.MaxPageSize:
		pageSize = s.cfg.MaxPageSize
	}

	roomID := room.ID(readerID, otherUserID)
	msgs, err := s.messageRepo.ListRoom(ctx, roomID, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Page{}, svcErr.Map(err)
	}

	hasMore := len(msgs) > pageSize
	if hasMore {
		msgs = msgs[:pageSize]
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if _, err := s.messageRepo.MarkRoomRead(ctx, roomID, readerID, s.now()); err != nil {
		// history itself succeeded; the next read retries the update
		s.log.Warn("mark read on history failed", "room", roomID, "err", err)
	}

	return Page{Messages: msgs, RoomID: roomID, CurrentPage: page, HasMore: hasMore}, nil
}

// MarkRead flips every unread message addressed to readerID in roomID.
func (s *Service) MarkRead(ctx context.Context, roomID, readerID string) (int64, error) {
	if _, _, ok := room.Parse(roomID); !ok {
		return 0, svcErr.ErrInvalidRoom
	}
	if !room.Has(roomID, readerID) {
		return 0, svcErr.ErrNotRoomMember
	}

	n, err := s.messageRepo.MarkRoomRead(ctx, roomID, readerID, s.now())
	if err != nil {
		return 0, svcErr.Map(err)
	}
	return n, nil
}

// UnreadCount is the number of unread messages addressed to readerID in roomID.
func (s *Service) UnreadCount(ctx context.Context, roomID, readerID string) (int64, error) {
	n, err := s.messageRepo.CountUnread(ctx, roomID, readerID)
	if err != nil {
		return 0, svcErr.Map(err)
	}
	return n, nil
}

// Conversation summarizes one room for the conversation list.
type Conversation struct {
	RoomID                 string
	OtherUser              db.User
	LastMessage            *db.Message
	UnreadCount            int64
	IsMatchWithoutMessages bool
	LastActivityAt         time.Time
}

// ListConversations returns every room userID has messages in, plus one
// empty entry per match without messages, most recent activity first.
// Rooms whose counterpart no longer exists are skipped.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	latest, err := s.messageRepo.LatestPerRoom(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	unread, err := s.messageRepo.UnreadByRoom(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	matches, err := s.matches.ListMatches(ctx, userID)
	if err != nil {
		return nil, err
	}

	convs := make([]Conversation, 0, len(latest)+len(matches))
	seen := make(map[string]bool, len(latest))
	otherIDs := make([]string, 0, len(latest)+len(matches))

	for i := range latest {
		m := latest[i]
		other, ok := room.Other(m.RoomID, userID)
		if !ok {
			s.log.Warn("skipping message with malformed room id", "room", m.RoomID, "message", m.ID)
			continue
		}
		seen[m.RoomID] = true
		otherIDs = append(otherIDs, other)
		convs = append(convs, Conversation{
			RoomID:         m.RoomID,
			OtherUser:      db.User{ID: other},
			LastMessage:    &m,
			UnreadCount:    unread[m.RoomID],
			LastActivityAt: m.CreatedAt,
		})
	}
	for _, mt := range matches {
		roomID := room.ID(userID, mt.OtherUserID)
		if seen[roomID] {
			continue
		}
		otherIDs = append(otherIDs, mt.OtherUserID)
		convs = append(convs, Conversation{
			RoomID:                 roomID,
			OtherUser:              db.User{ID: mt.OtherUserID},
			IsMatchWithoutMessages: true,
			LastActivityAt:         mt.MatchedAt,
		})
	}

	users, err := s.userRepo.FindByIDs(ctx, otherIDs)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	out := convs[:0]
	for _, c := range convs {
		u, ok := users[c.OtherUser.ID]
		if !ok {
			continue
		}
		c.OtherUser = u
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

// LookupUser loads a chat counterpart; ErrTargetNotFound when absent.
func (s *Service) LookupUser(ctx context.Context, id string) (db.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.User{}, svcErr.ErrTargetNotFound
	} else if err != nil {
		return db.User{}, svcErr.Map(err)
	}
	return u, nil
}
