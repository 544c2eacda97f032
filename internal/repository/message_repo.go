package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-connect/internal/db"
)

// MessageRepository provides data access for the chat message log.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

// Create persists m; ID and CreatedAt are filled in on success.
func (r *MessageRepository) Create(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListRoom returns one page of a room, newest first.
func (r *MessageRepository) ListRoom(ctx context.Context, roomID string, offset, limit int) ([]db.Message, error) {
	var msgs []db.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// MarkRoomRead flips every unread message addressed to readerID in the room.
// Already-read rows are untouched, so readAt is set exactly once.
func (r *MessageRepository) MarkRoomRead(ctx context.Context, roomID, readerID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("room_id = ? AND receiver_id = ? AND is_read = ?", roomID, readerID, false).
		Updates(map[string]any{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

// CountUnread counts unread messages addressed to readerID in one room.
func (r *MessageRepository) CountUnread(ctx context.Context, roomID, readerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("room_id = ? AND receiver_id = ? AND is_read = ?", roomID, readerID, false).
		Count(&count).Error
	return count, err
}

// LatestPerRoom returns the most recent message of every room userID takes
// part in, newest room first.
func (r *MessageRepository) LatestPerRoom(ctx context.Context, userID string) ([]db.Message, error) {
	latest := r.db.
		Model(&db.Message{}).
		Select("room_id, MAX(created_at) AS last_at").
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Group("room_id")

	var msgs []db.Message
	err := r.db.WithContext(ctx).
		Table("messages m").
		Select("m.*").
		Joins("JOIN (?) t ON t.room_id = m.room_id AND t.last_at = m.created_at", latest).
		Order("m.created_at DESC, m.id DESC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	// ties on created_at can yield two rows for one room; keep the newest id
	seen := make(map[string]bool, len(msgs))
	out := msgs[:0]
	for _, m := range msgs {
		if seen[m.RoomID] {
			continue
		}
		seen[m.RoomID] = true
		out = append(out, m)
	}
	return out, nil
}

// UnreadByRoom returns unread counts for userID keyed by room.
func (r *MessageRepository) UnreadByRoom(ctx context.Context, userID string) (map[string]int64, error) {
	var rows []struct {
		RoomID string
		Unread int64
	}
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Select("room_id, COUNT(*) AS unread").
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Group("room_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.RoomID] = row.Unread
	}
	return out, nil
}
