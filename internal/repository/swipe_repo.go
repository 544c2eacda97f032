package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-connect/internal/db"
	"github.com/oggyb/muzz-connect/internal/utils/pagination"
)

// SwipeRepository provides data access for the swipe ledger.
// Rows are insert-only; nothing here updates or deletes a swipe.
type SwipeRepository struct {
	db *gorm.DB
}

// NewSwipeRepository creates a new repository bound to the given DB connection.
func NewSwipeRepository(database *gorm.DB) *SwipeRepository {
	return &SwipeRepository{db: database}
}

// Create inserts a swipe made by swiper -> swiped.
//
// Behavior:
//   - The unique index on (swiper_id, swiped_id) rejects a second row for
//     the same ordered pair; the error surfaces as gorm.ErrDuplicatedKey.
//   - No upsert: an existing decision is never overwritten.
//
// Example:
//
//	repo.Create(ctx, "u1", "u2", db.ActionLike) // u1 liked u2
func (r *SwipeRepository) Create(ctx context.Context, swiperID, swipedID, action string) (db.Swipe, error) {
	swipe := db.Swipe{
		SwiperID: swiperID,
		SwipedID: swipedID,
		Action:   action,
	}
	if err := r.db.WithContext(ctx).Create(&swipe).Error; err != nil {
		return db.Swipe{}, err
	}
	return swipe, nil
}

// Exists reports whether swiper already swiped on swiped, with any action.
func (r *SwipeRepository) Exists(ctx context.Context, swiperID, swipedID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Swipe{}).
		Where("swiper_id = ? AND swiped_id = ?", swiperID, swipedID).
		Count(&count).Error
	return count > 0, err
}

// HasLiked checks whether an actor has liked a recipient.
//
// Example:
//
//	repo.HasLiked(ctx, "u1", "u2") // -> true if u1 liked u2
func (r *SwipeRepository) HasLiked(ctx context.Context, actorID, recipientID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Swipe{}).
		Where("swiper_id = ? AND swiped_id = ? AND action = ?", actorID, recipientID, db.ActionLike).
		Count(&count).Error
	return count > 0, err
}

// SwipedIDs returns every user the swiper has decided on, like or dislike.
func (r *SwipeRepository) SwipedIDs(ctx context.Context, swiperID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&db.Swipe{}).
		Where("swiper_id = ?", swiperID).
		Pluck("swiped_id", &ids).Error
	return ids, err
}

// MutualLike is one reciprocal like pair seen from a user's side.
type MutualLike struct {
	OtherUserID string
	MineAt      time.Time
	TheirsAt    time.Time
}

// MatchedAt is the time the pair was completed: the later of the two likes.
func (m MutualLike) MatchedAt() time.Time {
	if m.TheirsAt.After(m.MineAt) {
		return m.TheirsAt
	}
	return m.MineAt
}

// ListMutualLikes returns every user that the given user liked and who
// liked them back.
//
// Behavior:
//   - Self-join of likes authored by userID with likes targeting userID.
//   - Dislikes never participate.
func (r *SwipeRepository) ListMutualLikes(ctx context.Context, userID string) ([]MutualLike, error) {
	var rows []MutualLike
	err := r.db.WithContext(ctx).
		Table("swipes s1").
		Select("s1.swiped_id AS other_user_id, s1.created_at AS mine_at, s2.created_at AS theirs_at").
		Joins("JOIN swipes s2 ON s2.swiper_id = s1.swiped_id AND s2.swiped_id = s1.swiper_id AND s2.action = ?", db.ActionLike).
		Where("s1.swiper_id = ? AND s1.action = ?", userID, db.ActionLike).
		Scan(&rows).Error
	return rows, err
}

// incomingLikes builds the shared filter: likes targeting recipientID with
// no reciprocal like from recipientID.
func (r *SwipeRepository) incomingLikes(ctx context.Context, recipientID string) *gorm.DB {
	reciprocal := r.db.
		Table("swipes s2").
		Select("1").
		Where("s2.swiper_id = s.swiped_id AND s2.swiped_id = s.swiper_id AND s2.action = ?", db.ActionLike)

	return r.db.WithContext(ctx).
		Table("swipes s").
		Where("s.swiped_id = ? AND s.action = ?", recipientID, db.ActionLike).
		Where("NOT EXISTS (?)", reciprocal)
}

// ListIncomingLikes returns likes received by recipientID that were not
// liked back.
//
// Behavior:
//   - Excludes mutual likes only; a dislike by the recipient does not hide the liker.
//   - Ordered by created_at DESC, id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.ListIncomingLikes(ctx, "u42", nil, 20) // first 20 one-way likes for u42
func (r *SwipeRepository) ListIncomingLikes(
	ctx context.Context,
	recipientID string,
	paginationToken *string,
	limit int,
) ([]db.Swipe, *string, error) {
	var swipes []db.Swipe

	// decode cursor if provided
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.incomingLikes(ctx, recipientID).
		Select("s.*").
		Order("s.created_at DESC, s.id DESC").
		Limit(limit + 1)

	// apply cursor
	if !cursor.IsZero() {
		ts := time.UnixMicro(cursor.CreatedUnix).UTC()
		query = query.Where(
			"(s.created_at < ? OR (s.created_at = ? AND s.id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&swipes).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(swipes) > limit {
		last := swipes[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:          last.ID,
			CreatedUnix: last.CreatedAt.UnixMicro(),
		})
		nextToken = &token
		swipes = swipes[:limit]
	}

	return swipes, nextToken, nil
}

// CountIncomingLikes counts likes received by recipientID that were not liked back.
// Used in conjunction with the Redis cache (DB is fallback).
func (r *SwipeRepository) CountIncomingLikes(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	if err := r.incomingLikes(ctx, recipientID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
