package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-connect/internal/db"
	"github.com/oggyb/muzz-connect/internal/geo"
)

// UserRepository reads profiles for the matching core and writes the
// location settings it owns.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// FindByID returns gorm.ErrRecordNotFound when the user does not exist.
func (r *UserRepository) FindByID(ctx context.Context, id string) (db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error
	return u, err
}

// FindByIDAndRole resolves an identity of a specific role.
func (r *UserRepository) FindByIDAndRole(ctx context.Context, id, role string) (db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).Where("id = ? AND role = ?", id, role).Take(&u).Error
	return u, err
}

// FindByIDs loads many users keyed by id. Missing ids are simply absent.
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]db.User, error) {
	out := make(map[string]db.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var users []db.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// Exists reports whether a user with id exists.
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// CandidateQuery narrows the discovery scan. Zero values disable a filter.
type CandidateQuery struct {
	// ExcludeID is the requester; ExcludeSwipedBy removes everyone they swiped.
	ExcludeID       string
	ExcludeSwipedBy string
	Genders         []string
	// Box restricts to located, location-enabled users inside the rectangle.
	Box    *geo.Box
	MinAge int
	MaxAge int
	Limit  int
}

// FindCandidates runs the coarse discovery scan in insertion order.
// Exact distance filtering and sorting happen in the service.
func (r *UserRepository) FindCandidates(ctx context.Context, q CandidateQuery) ([]db.User, error) {
	query := r.db.WithContext(ctx).Model(&db.User{}).Where("role = ?", db.RoleUser)

	if q.ExcludeID != "" {
		query = query.Where("id <> ?", q.ExcludeID)
	}
	if q.ExcludeSwipedBy != "" {
		swiped := r.db.Model(&db.Swipe{}).Select("swiped_id").Where("swiper_id = ?", q.ExcludeSwipedBy)
		query = query.Where("id NOT IN (?)", swiped)
	}
	if len(q.Genders) > 0 {
		query = query.Where("gender IN ?", q.Genders)
	}
	if q.Box != nil {
		query = query.
			Where("location_enabled = ?", true).
			Where("latitude IS NOT NULL AND longitude IS NOT NULL").
			Where("latitude BETWEEN ? AND ?", q.Box.MinLat, q.Box.MaxLat).
			Where("longitude BETWEEN ? AND ?", q.Box.MinLon, q.Box.MaxLon)
	}
	if q.MinAge > 0 {
		query = query.Where("age >= ?", q.MinAge)
	}
	if q.MaxAge > 0 {
		query = query.Where("age <= ?", q.MaxAge)
	}

	query = query.Order("created_at ASC, id ASC")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var users []db.User
	err := query.Find(&users).Error
	return users, err
}

// LocationSettings is the subset of a profile written by location updates.
type LocationSettings struct {
	Point    *geo.Point
	RadiusKm *int
	Enabled  *bool
}

// UpdateLocation writes the provided fields and stamps last_location_update
// when a point is given. Zero values are written as-is.
func (r *UserRepository) UpdateLocation(ctx context.Context, id string, s LocationSettings, at time.Time) (db.User, error) {
	fields := map[string]any{}
	if s.Point != nil {
		fields["latitude"] = s.Point.Lat
		fields["longitude"] = s.Point.Lon
		fields["last_location_update"] = at
	}
	if s.RadiusKm != nil {
		fields["location_radius"] = *s.RadiusKm
	}
	if s.Enabled != nil {
		fields["location_enabled"] = *s.Enabled
	}

	if len(fields) > 0 {
		res := r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return db.User{}, res.Error
		}
		if res.RowsAffected == 0 {
			return db.User{}, gorm.ErrRecordNotFound
		}
	}
	return r.FindByID(ctx, id)
}
