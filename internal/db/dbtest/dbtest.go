// Package dbtest provides in-memory SQLite databases for package tests.
package dbtest

import (
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/muzz-connect/internal/db"
)

// New spins up an isolated, migrated in-memory SQLite DB named after the test.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	database, err := db.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
		Logger:                 logger.New(log.New(io.Discard, "", 0), logger.Config{LogLevel: logger.Silent}),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	// a single connection keeps the shared in-memory DB alive and serialized
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return database
}

// UserOpt customizes a seeded user.
type UserOpt func(*db.User)

// At places the user at lat/lon with location enabled.
func At(lat, lon float64) UserOpt {
	return func(u *db.User) {
		u.Latitude = &lat
		u.Longitude = &lon
		u.LocationEnabled = true
	}
}

// Radius sets the search radius in km.
func Radius(km int) UserOpt {
	return func(u *db.User) { u.LocationRadius = km }
}

// Age sets the user's age.
func Age(years int) UserOpt {
	return func(u *db.User) { u.Age = years }
}

// LocationOff keeps the stored point but disables location.
func LocationOff() UserOpt {
	return func(u *db.User) { u.LocationEnabled = false }
}

// AgeFilter enables the age window.
func AgeFilter(min, max int) UserOpt {
	return func(u *db.User) {
		u.AgeFilterEnabled = true
		u.MinAgeFilter = min
		u.MaxAgeFilter = max
	}
}

// Role sets the identity role.
func Role(role string) UserOpt {
	return func(u *db.User) { u.Role = role }
}

// SeedUser inserts a user with sane defaults; created_at advances per call
// so insertion order is stable.
func SeedUser(t *testing.T, gdb *gorm.DB, id, name, gender string, opts ...UserOpt) db.User {
	t.Helper()

	u := db.User{
		ID:             id,
		Name:           name,
		Email:          strings.ToLower(name) + "@test.com",
		PasswordHash:   "x",
		Role:           db.RoleUser,
		Gender:         gender,
		Age:            28,
		LocationRadius: 50,
		MinAgeFilter:   18,
		MaxAgeFilter:   100,
	}
	for _, opt := range opts {
		opt(&u)
	}
	require.NoError(t, gdb.Create(&u).Error)
	if u.LocationRadius == 0 {
		// gorm skips zero values on columns with a default
		require.NoError(t, gdb.Model(&u).Update("location_radius", 0).Error)
	}
	time.Sleep(2 * time.Millisecond)
	return u
}
