// Package discovery selects potential matches for a user and owns the
// location settings that drive the radius filter.
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-connect/internal/app"
	"github.com/oggyb/muzz-connect/internal/config"
	"github.com/oggyb/muzz-connect/internal/db"
	svcErr "github.com/oggyb/muzz-connect/internal/errors"
	"github.com/oggyb/muzz-connect/internal/geo"
	"github.com/oggyb/muzz-connect/internal/repository"
)

type Service struct {
	cfg      config.DiscoveryConfig
	userRepo *repository.UserRepository
	log      *slog.Logger
	now      func() time.Time
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		cfg:      appCtx.Config.Discovery,
		userRepo: repository.NewUserRepository(appCtx.DB),
		log:      appCtx.Logger.With("component", "discovery"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Candidate is a discoverable profile. Distance is nil when either side has
// no stored point.
type Candidate struct {
	User     db.User
	Distance *float64
}

type Result struct {
	Candidates        []Candidate
	RadiusKm          int
	LocationFiltering bool
}

// FindCandidates returns up to limit users that userID may swipe on.
//
// Behavior:
//   - Self and everyone userID already swiped are excluded.
//   - male sees female, female sees male, anyone else sees both.
//   - With a stored point and location enabled, candidates must be
//     location-enabled and within the radius, nearest first. In
//     unbounded-at-zero mode a radius of 0 switches the filter off.
//   - Without the radius filter, candidates come in insertion order.
func (s *Service) FindCandidates(ctx context.Context, userID string, limit int) (Result, error) {
	limit = s.clampLimit(limit)

	me, err := s.userRepo.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Result{}, svcErr.ErrUserNotFound
	} else if err != nil {
		return Result{}, svcErr.Map(err)
	}

	origin, hasPoint := me.Point()
	filtering := hasPoint && me.LocationEnabled &&
		!(me.LocationRadius == 0 && s.cfg.RadiusFilterMode != config.RadiusStrict)

	q := repository.CandidateQuery{
		ExcludeID:       me.ID,
		ExcludeSwipedBy: me.ID,
		Genders:         gendersFor(me.Gender),
	}
	if me.AgeFilterEnabled {
		q.MinAge, q.MaxAge = me.MinAgeFilter, me.MaxAgeFilter
	}
	if filtering {
		box := geo.BoundingBox(origin, float64(me.LocationRadius))
		q.Box = &box
	} else {
		// insertion order is already final; let the DB cap it
		q.Limit = limit
	}

	users, err := s.userRepo.FindCandidates(ctx, q)
	if err != nil {
		s.log.Error("candidate scan failed", "user", userID, "err", err)
		return Result{}, svcErr.Map(err)
	}

	candidates := make([]Candidate, 0, len(users))
	for _, u := range users {
		c := Candidate{User: u}
		if p, ok := u.Point(); ok && hasPoint {
			d := geo.Distance(origin, p)
			if filtering && d > float64(me.LocationRadius) {
				continue
			}
			rounded := geo.Round1(d)
			c.Distance = &rounded
		}
		candidates = append(candidates, c)
	}

	if filtering {
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i].Distance, candidates[j].Distance
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return *a < *b
			}
		})
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	s.log.Debug("candidates selected", "user", userID, "count", len(candidates), "filtering", filtering)
	return Result{
		Candidates:        candidates,
		RadiusKm:          me.LocationRadius,
		LocationFiltering: filtering,
	}, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

// gendersFor returns the genders shown to a requester.
func gendersFor(gender string) []string {
	switch gender {
	case db.GenderMale:
		return []string{db.GenderFemale}
	case db.GenderFemale:
		return []string{db.GenderMale}
	default:
		return []string{db.GenderMale, db.GenderFemale}
	}
}

// LocationUpdate carries a location write. Lat and Lon are required;
// RadiusKm and Enabled are left unchanged when nil.
type LocationUpdate struct {
	Lat      *float64
	Lon      *float64
	RadiusKm *int
	Enabled  *bool
}

// UpdateLocation validates and stores the user's point and search settings.
func (s *Service) UpdateLocation(ctx context.Context, userID string, in LocationUpdate) (db.User, error) {
	if in.Lat == nil || in.Lon == nil {
		return db.User{}, svcErr.ErrMissingLocation
	}
	p := geo.Point{Lat: *in.Lat, Lon: *in.Lon}
	if !p.Valid() {
		return db.User{}, svcErr.ErrInvalidLocation
	}
	if in.RadiusKm != nil && (*in.RadiusKm < 0 || *in.RadiusKm > s.cfg.MaxRadiusKm) {
		return db.User{}, svcErr.ErrInvalidRadius
	}

	u, err := s.userRepo.UpdateLocation(ctx, userID, repository.LocationSettings{
		Point:    &p,
		RadiusKm: in.RadiusKm,
		Enabled:  in.Enabled,
	}, s.now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.User{}, svcErr.ErrUserNotFound
	} else if err != nil {
		s.log.Error("location update failed", "user", userID, "err", err)
		return db.User{}, svcErr.Map(err)
	}

	s.log.Info("location updated", "user", userID, "radius_km", u.LocationRadius, "enabled", u.LocationEnabled)
	return u, nil
}
