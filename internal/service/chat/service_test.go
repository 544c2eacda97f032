package chat_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-connect/internal/app"
	"github.com/oggyb/muzz-connect/internal/config"
	"github.com/oggyb/muzz-connect/internal/db"
	"github.com/oggyb/muzz-connect/internal/db/dbtest"
	svcErr "github.com/oggyb/muzz-connect/internal/errors"
	"github.com/oggyb/muzz-connect/internal/logger"
	"github.com/oggyb/muzz-connect/internal/service/chat"
	"github.com/oggyb/muzz-connect/internal/service/discovery"
	"github.com/oggyb/muzz-connect/internal/service/match"
)

type services struct {
	chat      *chat.Service
	match     *match.Service
	discovery *discovery.Service
	db        *gorm.DB
}

func setup(t *testing.T) services {
	t.Helper()

	dbase := dbtest.New(t)
	appCtx := app.New(config.Default(), dbase, nil, logger.Discard())
	m := match.NewService(appCtx)
	return services{
		chat:      chat.NewService(appCtx, m),
		match:     m,
		discovery: discovery.NewService(appCtx),
		db:        dbase,
	}
}

func TestRoomIDFor_Symmetric(t *testing.T) {
	assert.Equal(t, chat.RoomIDFor("a", "b"), chat.RoomIDFor("b", "a"))
	assert.Equal(t, "chat_a_b", chat.RoomIDFor("b", "a"))

	a, b, ok := chat.ParseRoomID(chat.RoomIDFor("y", "x"))
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, []string{a, b})
}

func TestAppendMessage_Validation(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	dbtest.SeedUser(t, s.db, "a", "A", db.GenderMale)
	dbtest.SeedUser(t, s.db, "b", "B", db.GenderFemale)

	_, err := s.chat.AppendMessage(ctx, "a", "b", "   \n\t", "")
	assert.ErrorIs(t, err, svcErr.ErrEmptyBody)

	_, err = s.chat.AppendMessage(ctx, "a", "b", "hi", "video")
	assert.ErrorIs(t, err, svcErr.ErrInvalidMessageType)

	_, err = s.chat.AppendMessage(ctx, "a", "ghost", "hi", "")
	assert.ErrorIs(t, err, svcErr.ErrReceiverNotFound)

	_, err = s.chat.AppendMessage(ctx, "a", "a", "hi", "")
	assert.ErrorIs(t, err, svcErr.ErrInvalidTarget)

	msg, err := s.chat.AppendMessage(ctx, "a", "b", "  hello  ", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, db.MessageText, msg.Type)
	assert.Equal(t, "chat_a_b", msg.RoomID)
	assert.False(t, msg.IsRead)
	assert.NotEmpty(t, msg.ID)
}

func TestHistory_ReadStateFlipsForReceiverOnly(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	dbtest.SeedUser(t, s.db, "a", "A", db.GenderMale)
	dbtest.SeedUser(t, s.db, "b", "B", db.GenderFemale)

	sent, err := s.chat.AppendMessage(ctx, "a", "b", "hello", "")
	require.NoError(t, err)

	// the sender reading history does not mark their own message
	page, err := s.chat.History(ctx, "a", "b", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.False(t, page.Messages[0].IsRead)

	// the receiver sees the unread snapshot, then it flips
	page, err = s.chat.History(ctx, "b", "a", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.False(t, page.Messages[0].IsRead)

	page, err = s.chat.History(ctx, "b", "a", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, sent.ID, page.Messages[0].ID)
	assert.True(t, page.Messages[0].IsRead)
	assert.NotNil(t, page.Messages[0].ReadAt)
}

func TestHistory_PaginationOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	dbtest.SeedUser(t, s.db, "a", "A", db.GenderMale)
	dbtest.SeedUser(t, s.db, "b", "B", db.GenderFemale)

	for i := 1; i <= 5; i++ {
		_, err := s.chat.AppendMessage(ctx, "a", "b", fmt.Sprintf("m%d", i), "")
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	page, err := s.chat.History(ctx, "b", "a", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m4", "m5"}, bodies(page.Messages))
	assert.True(t, page.HasMore)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, "chat_a_b", page.RoomID)

	page, err = s.chat.History(ctx, "b", "a", 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, bodies(page.Messages))
	assert.False(t, page.HasMore)

	// exact page boundary: no phantom next page
	page, err = s.chat.History(ctx, "b", "a", 1, 5)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 5)
	assert.False(t, page.HasMore)
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	dbtest.SeedUser(t, s.db, "a", "A", db.GenderMale)
	dbtest.SeedUser(t, s.db, "b", "B", db.GenderFemale)

	for i := 0; i < 3; i++ {
		_, err := s.chat.AppendMessage(ctx, "a", "b", "ping", "")
		require.NoError(t, err)
	}
	roomID := chat.RoomIDFor("a", "b")

	n, err := s.chat.UnreadCount(ctx, roomID, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = s.chat.MarkRead(ctx, "room-1", "b")
	assert.ErrorIs(t, err, svcErr.ErrInvalidRoom)

	_, err = s.chat.MarkRead(ctx, roomID, "c")
	assert.ErrorIs(t, err, svcErr.ErrNotRoomMember)

	n, err = s.chat.MarkRead(ctx, roomID, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.chat.MarkRead(ctx, roomID, "b")
	require.NoError(t, err)
	assert.Zero(t, n)
}

// Paris scenario: two nearby users find each other, match, and start talking.
func TestParisScenario(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	dbtest.SeedUser(t, s.db, "a", "Antoine", db.GenderMale, dbtest.At(48.8566, 2.3522), dbtest.Radius(50))
	dbtest.SeedUser(t, s.db, "b", "Beatrice", db.GenderFemale, dbtest.At(48.8746, 2.3522), dbtest.Radius(50))

	found, err := s.discovery.FindCandidates(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, found.Candidates, 1)
	assert.Equal(t, "b", found.Candidates[0].User.ID)

	first, err := s.match.RecordSwipe(ctx, "a", "b", db.ActionLike)
	require.NoError(t, err)
	assert.False(t, first.IsNewMatch)

	second, err := s.match.RecordSwipe(ctx, "b", "a", db.ActionLike)
	require.NoError(t, err)
	assert.True(t, second.IsNewMatch)

	convs, err := s.chat.ListConversations(ctx, "a")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.True(t, convs[0].IsMatchWithoutMessages)
	assert.Nil(t, convs[0].LastMessage)
	assert.Equal(t, "Beatrice", convs[0].OtherUser.Name)

	_, err = s.chat.AppendMessage(ctx, "a", "b", "hi", "")
	require.NoError(t, err)

	convs, err = s.chat.ListConversations(ctx, "a")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.False(t, convs[0].IsMatchWithoutMessages)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "hi", convs[0].LastMessage.Body)
	assert.Zero(t, convs[0].UnreadCount, "own message is not unread for the sender")

	theirs, err := s.chat.ListConversations(ctx, "b")
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, int64(1), theirs[0].UnreadCount)

	// swiped users drop out of discovery
	found, err = s.discovery.FindCandidates(ctx, "a", 10)
	require.NoError(t, err)
	assert.Empty(t, found.Candidates)
}

func TestListConversations_OrderedByActivity(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	dbtest.SeedUser(t, s.db, "me", "Me", db.GenderMale)
	dbtest.SeedUser(t, s.db, "x", "X", db.GenderFemale)
	dbtest.SeedUser(t, s.db, "y", "Y", db.GenderFemale)
	dbtest.SeedUser(t, s.db, "z", "Z", db.GenderFemale)

	_, err := s.chat.AppendMessage(ctx, "x", "me", "old", "")
	require.NoError(t, err)
	time.Sleep(3 * time.Millisecond)

	_, err = s.match.RecordSwipe(ctx, "me", "z", db.ActionLike)
	require.NoError(t, err)
	_, err = s.match.RecordSwipe(ctx, "z", "me", db.ActionLike)
	require.NoError(t, err)
	time.Sleep(3 * time.Millisecond)

	_, err = s.chat.AppendMessage(ctx, "me", "y", "new", "")
	require.NoError(t, err)

	convs, err := s.chat.ListConversations(ctx, "me")
	require.NoError(t, err)
	var others []string
	for _, c := range convs {
		others = append(others, c.OtherUser.ID)
	}
	assert.Equal(t, []string{"y", "z", "x"}, others)
	assert.Equal(t, int64(1), convs[2].UnreadCount)
}

func bodies(msgs []db.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}
