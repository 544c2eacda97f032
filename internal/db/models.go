package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-connect/internal/geo"
)

// Roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Genders.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// Swipe actions.
const (
	ActionLike    = "like"
	ActionDislike = "dislike"
)

// Message types.
const (
	MessageText     = "text"
	MessageImage    = "image"
	MessageLocation = "location"
)

// User is the profile record read by discovery, matching and chat.
//
// Indexes:
//   - idx_users_location(latitude, longitude)
//     Bounding-box prefilter for radius discovery.
//   - idx_users_gender_created(gender, created_at)
//     Candidate scan in insertion order.
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string `gorm:"size:64;not null"`
	Email        string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         string `gorm:"size:16;not null;default:user"`
	Gender       string `gorm:"size:16;not null;index:idx_users_gender_created,priority:1"`
	Age          int    `gorm:"not null"`
	Bio          string `gorm:"size:512"`
	Photo        string `gorm:"size:255"`
	Height       *int

	Latitude           *float64 `gorm:"index:idx_users_location,priority:1"`
	Longitude          *float64 `gorm:"index:idx_users_location,priority:2"`
	LocationEnabled    bool     `gorm:"not null;default:false"`
	LocationRadius     int      `gorm:"not null;default:50"`
	LastLocationUpdate *time.Time

	AgeFilterEnabled bool `gorm:"not null;default:false"`
	MinAgeFilter     int  `gorm:"not null;default:18"`
	MaxAgeFilter     int  `gorm:"not null;default:100"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_users_gender_created,priority:2"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Point returns the stored location and whether one is present.
func (u *User) Point() (geo.Point, bool) {
	if u.Latitude == nil || u.Longitude == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *u.Latitude, Lon: *u.Longitude}, true
}

// Swipe is one immutable like/dislike decision by Swiper about Swiped.
//
// Indexes:
//   - idx_swipes_pair(swiper_id, swiped_id) UNIQUE
//     At most one swipe per ordered pair; also serves the reciprocal lookup.
//   - idx_swipes_target_action(swiped_id, action, created_at)
//     Incoming likes ("who likes me") and match joins.
type Swipe struct {
	ID        string    `gorm:"primaryKey;size:36"`
	SwiperID  string    `gorm:"size:36;not null;uniqueIndex:idx_swipes_pair,priority:1"`
	SwipedID  string    `gorm:"size:36;not null;uniqueIndex:idx_swipes_pair,priority:2;index:idx_swipes_target_action,priority:1"`
	Action    string    `gorm:"size:8;not null;index:idx_swipes_target_action,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_swipes_target_action,priority:3"`
}

func (s *Swipe) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = newOrderedID()
	}
	return nil
}

// Message is one chat line inside a two-party room.
//
// Indexes:
//   - idx_messages_room_created(room_id, created_at)
//     History pagination and latest-per-room.
//   - idx_messages_receiver_read(receiver_id, is_read)
//     Unread counters.
type Message struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	RoomID     string     `gorm:"size:96;not null;index:idx_messages_room_created,priority:1" json:"roomId"`
	SenderID   string     `gorm:"size:36;not null;index" json:"senderId"`
	ReceiverID string     `gorm:"size:36;not null;index:idx_messages_receiver_read,priority:1" json:"receiverId"`
	Body       string     `gorm:"type:text;not null" json:"message"`
	Type       string     `gorm:"size:16;not null;default:text" json:"messageType"`
	IsRead     bool       `gorm:"not null;default:false;index:idx_messages_receiver_read,priority:2" json:"isRead"`
	ReadAt     *time.Time `json:"readAt"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index:idx_messages_room_created,priority:2" json:"createdAt"`
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newOrderedID()
	}
	return nil
}

// newOrderedID returns a UUIDv7; ids sort in creation order within the process,
// which breaks created_at ties in history pagination.
func newOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Models lists every table managed by AutoMigrate.
func Models() []any {
	return []any{&User{}, &Swipe{}, &Message{}}
}
