package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oggyb/muzz-connect/internal/auth"
	"github.com/oggyb/muzz-connect/internal/db"
	svcErr "github.com/oggyb/muzz-connect/internal/errors"
	"github.com/oggyb/muzz-connect/internal/repository"
	"github.com/oggyb/muzz-connect/internal/service/chat"
	"github.com/oggyb/muzz-connect/internal/service/discovery"
	"github.com/oggyb/muzz-connect/internal/service/match"
	"github.com/oggyb/muzz-connect/internal/validation"
)

type handlers struct {
	responder
	match     *match.Service
	discovery *discovery.Service
	chat      *chat.Service
	users     *repository.UserRepository
}

// caller returns the authenticated identity. Routes using it are mounted
// behind auth.Authenticate.
func caller(r *http.Request) (auth.Identity, error) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Identity{}, svcErr.ErrAuthenticationFailed
	}
	return id, nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, svcErr.Validation(name + " must be a non-negative integer")
	}
	return n, nil
}

func (h *handlers) swipe(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req swipeRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.match.RecordSwipe(r.Context(), me.ID, req.TargetUserID, req.Action)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	message := "Profile passed"
	if res.Swipe.Action == db.ActionLike {
		message = "Profile liked!"
	}
	h.ok(w, swipeResponse{
		Action:       res.Swipe.Action,
		IsMatch:      res.IsNewMatch,
		MatchMessage: res.MatchMessage(),
		TargetUser:   targetUser{ID: res.Target.ID, Name: res.Target.Name, Photo: res.Target.Photo},
	}, message)
}

func (h *handlers) potential(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.discovery.FindCandidates(r.Context(), me.ID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, toPotential(res), "Potential matches retrieved")
}

func (h *handlers) matches(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	list, err := h.match.ListMatches(r.Context(), me.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ids := make([]string, 0, len(list))
	for _, m := range list {
		ids = append(ids, m.OtherUserID)
	}
	users, err := h.lookup(r.Context(), ids)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]matchView, 0, len(list))
	for _, m := range list {
		u, ok := users[m.OtherUserID]
		if !ok {
			continue
		}
		out = append(out, matchView{User: u, MatchedAt: m.MatchedAt})
	}
	h.ok(w, map[string]any{"matches": out}, "Matches retrieved")
}

func (h *handlers) likes(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	list, next, err := h.match.ListIncomingLikes(r.Context(), me.ID, cursor, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ids := make([]string, 0, len(list))
	for _, l := range list {
		ids = append(ids, l.OtherUserID)
	}
	users, err := h.lookup(r.Context(), ids)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := likesResponse{Likes: make([]likeView, 0, len(list)), NextCursor: next}
	for _, l := range list {
		u, ok := users[l.OtherUserID]
		if !ok {
			continue
		}
		resp.Likes = append(resp.Likes, likeView{User: u, LikedAt: l.LikedAt, SwipeID: l.SwipeID})
	}
	h.ok(w, resp, "Likes retrieved")
}

func (h *handlers) likesCount(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.match.CountIncomingLikes(r.Context(), me.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, map[string]int64{"count": n}, "")
}

func (h *handlers) updateLocation(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req locationRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.discovery.UpdateLocation(r.Context(), me.ID, discovery.LocationUpdate{
		Lat:      req.Latitude,
		Lon:      req.Longitude,
		RadiusKm: req.RadiusKm,
		Enabled:  req.Enabled,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, toLocation(u), "Location updated")
}

func (h *handlers) conversations(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	convs, err := h.chat.ListConversations(r.Context(), me.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, map[string]any{"conversations": toConversations(convs)}, "Conversations retrieved")
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.chat.History(r.Context(), me.ID, chi.URLParam(r, "otherUserId"), page, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, toHistory(p), "Chat history retrieved")
}

// lookup loads the public view of users by id; missing users are skipped.
func (h *handlers) lookup(ctx context.Context, ids []string) (map[string]userSummary, error) {
	found, err := h.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	out := make(map[string]userSummary, len(found))
	for id, u := range found {
		out[id] = toUserSummary(u)
	}
	return out, nil
}
