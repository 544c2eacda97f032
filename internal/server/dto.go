package server

import (
	"time"

	"github.com/oggyb/muzz-connect/internal/db"
	"github.com/oggyb/muzz-connect/internal/service/chat"
	"github.com/oggyb/muzz-connect/internal/service/discovery"
)

// Request bodies.

type swipeRequest struct {
	TargetUserID string `json:"targetUserId" validate:"required"`
	Action       string `json:"action" validate:"required,oneof=like dislike"`
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	RadiusKm  *int     `json:"radiusKm" validate:"omitempty,min=0"`
	Enabled   *bool    `json:"enabled"`
}

// Response payloads.

// userSummary is the public view of another user. Email, role and the
// password hash never leave the server.
type userSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
	Bio    string `json:"bio,omitempty"`
	Photo  string `json:"photo,omitempty"`
	Height *int   `json:"height,omitempty"`
}

func toUserSummary(u db.User) userSummary {
	return userSummary{
		ID:     u.ID,
		Name:   u.Name,
		Age:    u.Age,
		Gender: u.Gender,
		Bio:    u.Bio,
		Photo:  u.Photo,
		Height: u.Height,
	}
}

type targetUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Photo string `json:"photo,omitempty"`
}

type swipeResponse struct {
	Action       string     `json:"action"`
	IsMatch      bool       `json:"isMatch"`
	MatchMessage *string    `json:"matchMessage"`
	TargetUser   targetUser `json:"targetUser"`
}

type candidateView struct {
	userSummary
	Distance *float64 `json:"distance,omitempty"`
}

type potentialResponse struct {
	Candidates        []candidateView `json:"candidates"`
	CurrentUserRadius int             `json:"currentUserRadius"`
	LocationFiltering bool            `json:"locationFiltering"`
}

func toPotential(res discovery.Result) potentialResponse {
	out := potentialResponse{
		Candidates:        make([]candidateView, 0, len(res.Candidates)),
		CurrentUserRadius: res.RadiusKm,
		LocationFiltering: res.LocationFiltering,
	}
	for _, c := range res.Candidates {
		out.Candidates = append(out.Candidates, candidateView{userSummary: toUserSummary(c.User), Distance: c.Distance})
	}
	return out
}

type matchView struct {
	User      userSummary `json:"user"`
	MatchedAt time.Time   `json:"matchedAt"`
}

type likeView struct {
	User    userSummary `json:"user"`
	LikedAt time.Time   `json:"likedAt"`
	SwipeID string      `json:"swipeId"`
}

type likesResponse struct {
	Likes      []likeView `json:"likes"`
	NextCursor *string    `json:"nextCursor"`
}

type locationResponse struct {
	Latitude           *float64   `json:"latitude"`
	Longitude          *float64   `json:"longitude"`
	RadiusKm           int        `json:"radiusKm"`
	Enabled            bool       `json:"enabled"`
	LastLocationUpdate *time.Time `json:"lastLocationUpdate"`
}

func toLocation(u db.User) locationResponse {
	return locationResponse{
		Latitude:           u.Latitude,
		Longitude:          u.Longitude,
		RadiusKm:           u.LocationRadius,
		Enabled:            u.LocationEnabled,
		LastLocationUpdate: u.LastLocationUpdate,
	}
}

type conversationView struct {
	RoomID                 string      `json:"roomId"`
	OtherUser              userSummary `json:"otherUser"`
	LastMessage            *db.Message `json:"lastMessage"`
	UnreadCount            int64       `json:"unreadCount"`
	IsMatchWithoutMessages bool        `json:"isMatchWithoutMessages"`
	LastActivityAt         time.Time   `json:"lastActivityAt"`
}

func toConversations(convs []chat.Conversation) []conversationView {
	out := make([]conversationView, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationView{
			RoomID:                 c.RoomID,
			OtherUser:              toUserSummary(c.OtherUser),
			LastMessage:            c.LastMessage,
			UnreadCount:            c.UnreadCount,
			IsMatchWithoutMessages: c.IsMatchWithoutMessages,
			LastActivityAt:         c.LastActivityAt,
		})
	}
	return out
}

type historyResponse struct {
	Messages    []db.Message `json:"messages"`
	RoomID      string       `json:"roomId"`
	CurrentPage int          `json:"currentPage"`
	HasMore     bool         `json:"hasMore"`
}

func toHistory(p chat.Page) historyResponse {
	msgs := p.Messages
	if msgs == nil {
		msgs = []db.Message{}
	}
	return historyResponse{Messages: msgs, RoomID: p.RoomID, CurrentPage: p.CurrentPage, HasMore: p.HasMore}
}
