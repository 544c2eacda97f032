package db

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-connect/internal/room"
)

// SeedPassword is the plaintext password of every seeded account.
const SeedPassword = "password"

var seedCities = []struct {
	name     string
	lat, lon float64
}{
	{"Paris", 48.8566, 2.3522},
	{"London", 51.5074, -0.1278},
}

// SeedTestData resets the database and populates it with demo users, swipes
// and messages.
//
// Behavior:
//  1. Clears existing data in `messages`, `swipes` and `users`.
//  2. Creates 20 users (10 male, 10 female) scattered within ~20 km of Paris
//     or London, plus one admin account.
//  3. Generates swipes with ~70% likes; every 3rd pair is made mutual and
//     gets a short opening exchange.
func SeedTestData(db *gorm.DB, log *slog.Logger) ([]User, error) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	for _, table := range []string{"messages", "swipes", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	log.Info("cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// --- Seed Users ---
	users := make([]User, 0, 21)
	for i := 1; i <= 20; i++ {
		gender := GenderMale
		if i > 10 {
			gender = GenderFemale
		}
		city := seedCities[i%len(seedCities)]
		lat := city.lat + (r.Float64()-0.5)*0.3
		lon := city.lon + (r.Float64()-0.5)*0.4
		now := time.Now().UTC()

		user := User{
			Name:               fmt.Sprintf("user%d", i),
			Email:              fmt.Sprintf("user%d@example.com", i),
			PasswordHash:       string(hash),
			Role:               RoleUser,
			Gender:             gender,
			Age:                20 + r.Intn(20),
			Bio:                fmt.Sprintf("Hello from %s", city.name),
			Latitude:           &lat,
			Longitude:          &lon,
			LocationEnabled:    true,
			LocationRadius:     50,
			LastLocationUpdate: &now,
			MinAgeFilter:       18,
			MaxAgeFilter:       100,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to seed user: %w", err)
		}
		users = append(users, user)
	}

	admin := User{
		Name:         "admin",
		Email:        "admin@example.com",
		PasswordHash: string(hash),
		Role:         RoleAdmin,
		Gender:       GenderOther,
		Age:          30,
		MinAgeFilter: 18,
		MaxAgeFilter: 100,
	}
	if err := db.Create(&admin).Error; err != nil {
		return nil, fmt.Errorf("failed to seed admin: %w", err)
	}
	log.Info("seeded users", "count", len(users)+1)

	// --- Seed Swipes ---
	counter, mutuals := 0, 0
	seen := make(map[[2]string]bool)
	swipe := func(from, to User, action string) error {
		key := [2]string{from.ID, to.ID}
		if seen[key] {
			return nil
		}
		seen[key] = true
		return db.Create(&Swipe{SwiperID: from.ID, SwipedID: to.ID, Action: action}).Error
	}

	for _, actor := range users {
		for j := 0; j < 6; j++ {
			target := users[r.Intn(len(users))]
			if target.ID == actor.ID || target.Gender == actor.Gender || seen[[2]string{actor.ID, target.ID}] {
				continue
			}

			action := ActionDislike
			if r.Intn(100) < 70 {
				action = ActionLike
			}

			// guarantee mutual likes every 3rd pair
			if counter%3 == 0 && !seen[[2]string{target.ID, actor.ID}] {
				if err := swipe(actor, target, ActionLike); err != nil {
					return nil, fmt.Errorf("failed to seed swipe: %w", err)
				}
				if err := swipe(target, actor, ActionLike); err != nil {
					return nil, fmt.Errorf("failed to seed swipe: %w", err)
				}
				if err := seedExchange(db, actor, target); err != nil {
					return nil, err
				}
				mutuals++
			} else if err := swipe(actor, target, action); err != nil {
				return nil, fmt.Errorf("failed to seed swipe: %w", err)
			}
			counter++
		}
	}
	log.Info("seeded swipes", "pairs", counter, "mutual", mutuals)

	return append(users, admin), nil
}

func seedExchange(db *gorm.DB, a, b User) error {
	roomID := room.ID(a.ID, b.ID)
	lines := []Message{
		{RoomID: roomID, SenderID: a.ID, ReceiverID: b.ID, Body: "Hey " + b.Name + "!", Type: MessageText, IsRead: true},
		{RoomID: roomID, SenderID: b.ID, ReceiverID: a.ID, Body: "Hi! How's your week going?", Type: MessageText},
	}
	for i := range lines {
		if lines[i].IsRead {
			now := time.Now().UTC()
			lines[i].ReadAt = &now
		}
		if err := db.Create(&lines[i]).Error; err != nil {
			return fmt.Errorf("failed to seed message: %w", err)
		}
	}
	return nil
}
