package match_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-connect/internal/app"
	"github.com/oggyb/muzz-connect/internal/cache"
	"github.com/oggyb/muzz-connect/internal/config"
	"github.com/oggyb/muzz-connect/internal/db"
	"github.com/oggyb/muzz-connect/internal/db/dbtest"
	svcErr "github.com/oggyb/muzz-connect/internal/errors"
	"github.com/oggyb/muzz-connect/internal/logger"
	"github.com/oggyb/muzz-connect/internal/service/match"
)

//
// Test helpers
//

// seedMinimal inserts a deterministic dataset:
//   - Users: u1 (male), u2 (female), u3 (female)
//   - u1 → u2 like, u3 → u1 like, u1 → u3 dislike
func seedMinimal(t *testing.T, gdb *gorm.DB) {
	t.Helper()

	dbtest.SeedUser(t, gdb, "u1", "Alex", db.GenderMale)
	dbtest.SeedUser(t, gdb, "u2", "Sam", db.GenderFemale)
	dbtest.SeedUser(t, gdb, "u3", "Kim", db.GenderFemale)

	for _, s := range []db.Swipe{
		{SwiperID: "u1", SwipedID: "u2", Action: db.ActionLike},
		{SwiperID: "u3", SwipedID: "u1", Action: db.ActionLike},
		{SwiperID: "u1", SwipedID: "u3", Action: db.ActionDislike},
	} {
		require.NoError(t, gdb.Create(&s).Error)
		time.Sleep(2 * time.Millisecond)
	}
}

// setupService wires an in-memory SQLite DB and a miniredis into a match
// Service. Each test gets its own isolated DB + Redis.
func setupService(t *testing.T) (*match.Service, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()

	dbase := dbtest.New(t)
	seedMinimal(t, dbase)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.Default()
	cfg.Redis.Addr = mr.Addr()
	redisCache := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = redisCache.Close() })

	appCtx := app.New(cfg, dbase, redisCache, logger.Discard())
	return match.NewService(appCtx), dbase, mr
}

//
// Tests
//

func TestRecordSwipe_MutualLike(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)

	res, err := svc.RecordSwipe(ctx, "u2", "u1", db.ActionLike)
	require.NoError(t, err)

	assert.True(t, res.IsNewMatch)
	require.NotNil(t, res.MatchMessage())
	assert.Equal(t, "It's a match! You and Alex have liked each other!", *res.MatchMessage())
	assert.Equal(t, "u1", res.Target.ID)
	assert.NotEmpty(t, res.Swipe.ID)
}

func TestRecordSwipe_NoMatch(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)

	// u3 liked u1 but u1 disliked u3; a dislike never matches
	res, err := svc.RecordSwipe(ctx, "u2", "u3", db.ActionDislike)
	require.NoError(t, err)
	assert.False(t, res.IsNewMatch)
	assert.Nil(t, res.MatchMessage())

	// like on someone who has not liked back
	res, err = svc.RecordSwipe(ctx, "u3", "u2", db.ActionLike)
	require.NoError(t, err)
	assert.False(t, res.IsNewMatch)
}

func TestRecordSwipe_Rejections(t *testing.T) {
	ctx := context.Background()
	svc, gdb, _ := setupService(t)

	_, err := svc.RecordSwipe(ctx, "u1", "u1", db.ActionLike)
	assert.ErrorIs(t, err, svcErr.ErrInvalidTarget)

	_, err = svc.RecordSwipe(ctx, "u1", "u2", "superlike")
	assert.ErrorIs(t, err, svcErr.ErrInvalidAction)

	_, err = svc.RecordSwipe(ctx, "u1", "ghost", db.ActionLike)
	assert.ErrorIs(t, err, svcErr.ErrTargetNotFound)

	// the existing like is never overwritten by a dislike
	_, err = svc.RecordSwipe(ctx, "u1", "u2", db.ActionDislike)
	assert.ErrorIs(t, err, svcErr.ErrDuplicateSwipe)
	assert.Equal(t, svcErr.KindConflict, svcErr.KindOf(err))

	var stored db.Swipe
	require.NoError(t, gdb.Where("swiper_id = ? AND swiped_id = ?", "u1", "u2").Take(&stored).Error)
	assert.Equal(t, db.ActionLike, stored.Action)
}

func TestRecordSwipe_ConcurrentLikesExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	svc, gdb, _ := setupService(t)

	const n = 6
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ok    int
		dupes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordSwipe(ctx, "u2", "u3", db.ActionLike)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if assert.ErrorIs(t, err, svcErr.ErrDuplicateSwipe) {
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dupes)

	var count int64
	require.NoError(t, gdb.Model(&db.Swipe{}).Where("swiper_id = ? AND swiped_id = ?", "u2", "u3").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestListMatches_SymmetricAndOrdered(t *testing.T) {
	ctx := context.Background()
	svc, gdb, _ := setupService(t)
	dbtest.SeedUser(t, gdb, "u4", "Robin", db.GenderFemale)

	_, err := svc.RecordSwipe(ctx, "u2", "u1", db.ActionLike)
	require.NoError(t, err)
	time.Sleep(3 * time.Millisecond)
	_, err = svc.RecordSwipe(ctx, "u1", "u4", db.ActionLike)
	require.NoError(t, err)
	_, err = svc.RecordSwipe(ctx, "u4", "u1", db.ActionLike)
	require.NoError(t, err)

	mine, err := svc.ListMatches(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "u4", mine[0].OtherUserID, "most recent match first")
	assert.Equal(t, "u2", mine[1].OtherUserID)

	theirs, err := svc.ListMatches(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "u1", theirs[0].OtherUserID)
	assert.True(t, theirs[0].MatchedAt.Equal(mine[1].MatchedAt))

	none, err := svc.ListMatches(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListIncomingLikes(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)

	// u3 liked u1 and u1 only disliked back, so u3 still shows up
	likes, next, err := svc.ListIncomingLikes(ctx, "u1", nil, 10)
	require.NoError(t, err)
	assert.Nil(t, next)
	require.Len(t, likes, 1)
	assert.Equal(t, "u3", likes[0].OtherUserID)

	// mutual likes are never incoming
	_, err = svc.RecordSwipe(ctx, "u2", "u1", db.ActionLike)
	require.NoError(t, err)
	likes, _, err = svc.ListIncomingLikes(ctx, "u2", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, likes)

	bad := "%%%"
	_, _, err = svc.ListIncomingLikes(ctx, "u1", &bad, 10)
	assert.Equal(t, svcErr.KindValidation, svcErr.KindOf(err))
}

func TestCountIncomingLikes_CacheAndInvalidation(t *testing.T) {
	ctx := context.Background()
	svc, _, mr := setupService(t)

	// First call → DB, then populated in Redis
	n, err := svc.CountIncomingLikes(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, mr.Exists("likes:count:u2"))

	// Second call → cache
	mr.Set("likes:count:u2", "1")
	n, err = svc.CountIncomingLikes(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// a new like on u2 drops the cached value
	_, err = svc.RecordSwipe(ctx, "u3", "u2", db.ActionLike)
	require.NoError(t, err)
	assert.False(t, mr.Exists("likes:count:u2"))

	n, err = svc.CountIncomingLikes(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCountIncomingLikes_FallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	svc, _, mr := setupService(t)
	mr.Close()

	n, err := svc.CountIncomingLikes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
