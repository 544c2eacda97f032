package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-connect/internal/app"
	"github.com/oggyb/muzz-connect/internal/db"
	svcErr "github.com/oggyb/muzz-connect/internal/errors"
	"github.com/oggyb/muzz-connect/internal/metrics"
	"github.com/oggyb/muzz-connect/internal/repository"
	"github.com/oggyb/muzz-connect/internal/utils/pagination"
)

// Service detects mutual matches on top of the swipe ledger.
// Match state is never stored; every listing recomputes it from swipes.
type Service struct {
	appCtx    *app.AppContext
	swipeRepo *repository.SwipeRepository
	userRepo  *repository.UserRepository
	log       *slog.Logger
}

// NewService creates a match Service with dependencies from AppContext.
// Dependencies include:
//   - DB connection (via SwipeRepository and UserRepository)
//   - RedisCache for the incoming-like counter, optional
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:    appCtx,
		swipeRepo: repository.NewSwipeRepository(appCtx.DB),
		userRepo:  repository.NewUserRepository(appCtx.DB),
		log:       appCtx.Logger.With("component", "match"),
	}
}

// SwipeResult is the outcome of a recorded swipe.
type SwipeResult struct {
	Swipe      db.Swipe
	Target     db.User
	IsNewMatch bool
}

// MatchMessage is the celebratory text shown when the swipe completed a match.
func (r SwipeResult) MatchMessage() *string {
	if !r.IsNewMatch {
		return nil
	}
	msg := fmt.Sprintf("It's a match! You and %s have liked each other!", r.Target.Name)
	return &msg
}

// RecordSwipe stores a like/dislike from swiper on swiped and reports
// whether it completed a mutual match.
//
// Behavior:
//   - Self-swipe → ErrInvalidTarget; unknown action → ErrInvalidAction.
//   - Unknown target → ErrTargetNotFound.
//   - Any existing swipe on the ordered pair → ErrDuplicateSwipe, including
//     a concurrent insert that loses the race on the unique index.
//   - Only a like checks for the reciprocal like.
//   - The target's cached incoming-like count is invalidated.
func (s *Service) RecordSwipe(ctx context.Context, swiperID, swipedID, action string) (SwipeResult, error) {
	s.log.Debug("RecordSwipe called", "swiper", swiperID, "swiped", swipedID, "action", action)

	if swiperID == swipedID {
		return SwipeResult{}, svcErr.ErrInvalidTarget
	}
	if action != db.ActionLike && action != db.ActionDislike {
		return SwipeResult{}, svcErr.ErrInvalidAction
	}

	target, err := s.userRepo.FindByID(ctx, swipedID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SwipeResult{}, svcErr.ErrTargetNotFound
	} else if err != nil {
		s.log.Error("load swipe target failed", "err", err)
		return SwipeResult{}, svcErr.Map(err)
	}

	exists, err := s.swipeRepo.Exists(ctx, swiperID, swipedID)
	if err != nil {
		return SwipeResult{}, svcErr.Map(err)
	}
	if exists {
		return SwipeResult{}, svcErr.ErrDuplicateSwipe
	}

	swipe, err := s.swipeRepo.Create(ctx, swiperID, swipedID, action)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return SwipeResult{}, svcErr.Wrap(svcErr.ErrDuplicateSwipe, err)
	} else if err != nil {
		s.log.Error("create swipe failed", "err", err)
		return SwipeResult{}, svcErr.Map(err)
	}
	metrics.SwipesTotal.WithLabelValues(action).Inc()

	s.invalidateLikeCount(ctx, swipedID)
	// a like back removes the target from our own incoming list
	if action == db.ActionLike {
		s.invalidateLikeCount(ctx, swiperID)
	}

	result := SwipeResult{Swipe: swipe, Target: target}
	if action == db.ActionLike {
		result.IsNewMatch, err = s.swipeRepo.HasLiked(ctx, swipedID, swiperID)
		if err != nil {
			// the swipe is durable; report the lookup failure rather than a false negative
			return result, svcErr.Map(err)
		}
		if result.IsNewMatch {
			metrics.MatchesTotal.Inc()
			s.log.Info("match created", "a", swiperID, "b", swipedID)
		}
	}

	return result, nil
}

// Match is one mutual match from the requesting user's side.
type Match struct {
	OtherUserID string
	MatchedAt   time.Time
}

// ListMatches returns every mutual match of userID, newest first.
// matchedAt is the later of the two like timestamps, so both sides see the
// same value.
func (s *Service) ListMatches(ctx context.Context, userID string) ([]Match, error) {
	pairs, err := s.swipeRepo.ListMutualLikes(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	matches := make([]Match, 0, len(pairs))
	for _, p := range pairs {
		matches = append(matches, Match{OtherUserID: p.OtherUserID, MatchedAt: p.MatchedAt()})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].MatchedAt.Equal(matches[j].MatchedAt) {
			return matches[i].MatchedAt.After(matches[j].MatchedAt)
		}
		return matches[i].OtherUserID < matches[j].OtherUserID
	})
	return matches, nil
}

// IncomingLike is a like received and not yet reciprocated.
type IncomingLike struct {
	OtherUserID string
	SwipeID     string
	LikedAt     time.Time
}

// ListIncomingLikes returns one page of likes targeting userID that userID
// has not liked back.
func (s *Service) ListIncomingLikes(ctx context.Context, userID string, token *string, limit int) ([]IncomingLike, *string, error) {
	if limit <= 0 {
		limit = 20
	}

	swipes, next, err := s.swipeRepo.ListIncomingLikes(ctx, userID, token, limit)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidToken) {
			return nil, nil, svcErr.Validation("Invalid cursor")
		}
		return nil, nil, svcErr.Map(err)
	}

	likes := make([]IncomingLike, 0, len(swipes))
	for _, sw := range swipes {
		likes = append(likes, IncomingLike{OtherUserID: sw.SwiperID, SwipeID: sw.ID, LikedAt: sw.CreatedAt})
	}
	return likes, next, nil
}

// CountIncomingLikes returns how many non-mutual likes userID has received.
// Cache-first strategy:
//  1. Attempts to read from Redis (likes:count:userID).
//  2. On a miss or cache failure, falls back to DB via CountIncomingLikes.
//  3. On DB fetch, repopulates Redis with the configured TTL, unless a swipe
//     invalidated the count since the read started.
func (s *Service) CountIncomingLikes(ctx context.Context, userID string) (int64, error) {
	rc := s.appCtx.RedisCache
	var gen int64
	if rc != nil {
		n, found, err := rc.GetLikeCount(ctx, userID)
		if err != nil {
			s.log.Warn("like count cache read failed", "err", err)
			rc = nil
		} else if found {
			return n, nil
		}
	}
	if rc != nil {
		var err error
		if gen, err = rc.LikeCountGeneration(ctx, userID); err != nil {
			s.log.Warn("like count generation read failed", "err", err)
			rc = nil
		}
	}

	count, err := s.swipeRepo.CountIncomingLikes(ctx, userID)
	if err != nil {
		return 0, svcErr.Map(err)
	}

	if rc != nil {
		stored, err := rc.SetLikeCount(ctx, userID, gen, count)
		if err != nil {
			s.log.Warn("like count cache write failed", "err", err)
		} else if !stored {
			s.log.Debug("like count changed during read, not cached", "user", userID)
		}
	}
	return count, nil
}

func (s *Service) invalidateLikeCount(ctx context.Context, userID string) {
	if s.appCtx.RedisCache == nil {
		return
	}
	if err := s.appCtx.RedisCache.InvalidateLikeCount(ctx, userID); err != nil {
		s.log.Warn("like count cache invalidation failed", "user", userID, "err", err)
	}
}
