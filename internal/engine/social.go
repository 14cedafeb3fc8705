package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"skillroutine/internal/domain"
	"skillroutine/internal/engine/auth"
	"skillroutine/internal/events"
	"skillroutine/internal/progress"
	"skillroutine/internal/repo"
)

const (
	SearchMinQuery = 2
	SearchLimit    = 10
	RankLimit      = 10
)

// SearchUsers matches usernames containing q. Short queries return nothing.
func (e Engine) SearchUsers(ctx context.Context, callerID, q string) ([]domain.User, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < SearchMinQuery {
		return []domain.User{}, nil
	}
	users, err := e.Repo.SearchUsers(ctx, q, callerID, SearchLimit)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// levelsOf reads another user's levels without taking their lock.
func (e Engine) levelsOf(ctx context.Context, userID string) (map[string]int, error) {
	s, err := e.loadState(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	return s.Levels(), nil
}

// Profile is the public view of a user.
type Profile struct {
	Username      string         `json:"username"`
	OverallLevel  int            `json:"overallLevel"`
	Title         progress.Title `json:"title"`
	TopSkill      string         `json:"topSkill"`
	TopSkillLevel int            `json:"topSkillLevel"`
	Skills        map[string]int `json:"skills"`
}

func (e Engine) PublicProfile(ctx context.Context, username string) (Profile, error) {
	if strings.TrimSpace(username) == "" {
		return Profile{}, validationError("username", "is required")
	}
	u, err := e.Repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return Profile{}, err
	}
	levels, err := e.levelsOf(ctx, u.ID)
	if err != nil {
		return Profile{}, err
	}
	overall := e.Catalog.OverallLevel(levels)
	top, topLevel := e.Catalog.TopSkill(levels)
	skills := make(map[string]int, len(e.Catalog.Skills))
	for _, id := range e.Catalog.SkillIDs() {
		skills[id] = levels[id]
	}
	return Profile{
		Username:      u.Username,
		OverallLevel:  overall,
		Title:         e.Catalog.Title(overall),
		TopSkill:      top,
		TopSkillLevel: topLevel,
		Skills:        skills,
	}, nil
}

// SkillRanking returns the top users per catalog skill.
func (e Engine) SkillRanking(ctx context.Context) (map[string][]progress.RankEntry, error) {
	rows, err := e.Repo.ListStates(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]progress.UserLevels, 0, len(rows))
	for _, row := range rows {
		s, err := e.Progress().Load([]byte(row.StateJSON))
		if err != nil {
			e.logger().Warn("skipping unreadable state in ranking")
			continue
		}
		users = append(users, progress.UserLevels{Username: row.Username, Levels: s.Levels()})
	}
	return e.Catalog.RankSkills(users, RankLimit), nil
}

// FriendRequestResult reports where a request ended up.
type FriendRequestResult struct {
	Status  string               `json:"status" enum:"pending,accepted,rejected"`
	Request domain.FriendRequest `json:"request"`
}

// RequestFriend sends a request to the named user. A pending request in the
// opposite direction is accepted instead, and existing requests are returned
// unchanged.
func (e Engine) RequestFriend(ctx context.Context, fromID, toUsername string) (FriendRequestResult, error) {
	toUsername = strings.TrimSpace(toUsername)
	if toUsername == "" {
		return FriendRequestResult{}, validationError("username", "is required")
	}
	to, err := e.Repo.GetUserByUsername(ctx, toUsername)
	if err != nil {
		return FriendRequestResult{}, err
	}
	if to.ID == fromID {
		return FriendRequestResult{}, validationError("username", "cannot send a friend request to yourself")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return FriendRequestResult{}, err
	}
	defer tx.Rollback()
	ts := e.timestamp()

	reverse, err := e.Repo.FriendRequestFrom(ctx, tx, to.ID, fromID)
	switch {
	case err == nil && reverse.Status == domain.FriendPending:
		if err := e.Repo.SetFriendRequestStatus(ctx, tx, reverse.ID, domain.FriendAccepted, ts); err != nil {
			return FriendRequestResult{}, err
		}
		reverse.Status, reverse.UpdatedAt = domain.FriendAccepted, ts
		if err := e.Events.Append(ctx, tx, events.FriendResponded, fromID, "friend_request", reverse.ID, fromID,
			events.EventPayload{"status": domain.FriendAccepted, "from": to.ID}); err != nil {
			return FriendRequestResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return FriendRequestResult{}, err
		}
		return FriendRequestResult{Status: domain.FriendAccepted, Request: reverse}, nil
	case err == nil && reverse.Status == domain.FriendAccepted:
		return FriendRequestResult{Status: domain.FriendAccepted, Request: reverse}, nil
	case err != nil && !errors.Is(err, repo.ErrNotFound):
		return FriendRequestResult{}, err
	}

	existing, err := e.Repo.FriendRequestFrom(ctx, tx, fromID, to.ID)
	if err == nil {
		return FriendRequestResult{Status: existing.Status, Request: existing}, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return FriendRequestResult{}, err
	}

	fr := domain.FriendRequest{
		ID:         uuid.NewString(),
		FromUserID: fromID,
		ToUserID:   to.ID,
		Status:     domain.FriendPending,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if err := e.Repo.InsertFriendRequest(ctx, tx, fr); err != nil {
		return FriendRequestResult{}, err
	}
	if err := e.Events.Append(ctx, tx, events.FriendRequested, fromID, "friend_request", fr.ID, fromID,
		events.EventPayload{"to": to.ID, "username": to.Username}); err != nil {
		return FriendRequestResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return FriendRequestResult{}, err
	}
	return FriendRequestResult{Status: domain.FriendPending, Request: fr}, nil
}

func (e Engine) PendingFriendRequests(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	reqs, err := e.Repo.PendingRequestsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = []domain.FriendRequest{}
	}
	return reqs, nil
}

// RespondFriendRequest accepts or rejects a request addressed to userID.
func (e Engine) RespondFriendRequest(ctx context.Context, userID, requestID, action string) (domain.FriendRequest, error) {
	var status string
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "accept":
		status = domain.FriendAccepted
	case "reject":
		status = domain.FriendRejected
	default:
		return domain.FriendRequest{}, validationError("action", "must be accept or reject")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FriendRequest{}, err
	}
	defer tx.Rollback()
	fr, err := e.Repo.GetFriendRequest(ctx, tx, requestID)
	if err != nil {
		return domain.FriendRequest{}, err
	}
	if fr.ToUserID != userID {
		return domain.FriendRequest{}, auth.ForbiddenError{Action: "respond to this friend request"}
	}
	ts := e.timestamp()
	if err := e.Repo.SetFriendRequestStatus(ctx, tx, fr.ID, status, ts); err != nil {
		return domain.FriendRequest{}, err
	}
	if err := e.Events.Append(ctx, tx, events.FriendResponded, userID, "friend_request", fr.ID, userID,
		events.EventPayload{"status": status, "from": fr.FromUserID}); err != nil {
		return domain.FriendRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.FriendRequest{}, err
	}
	fr.Status, fr.UpdatedAt = status, ts
	return fr, nil
}

// FriendSummary is one row of a friends list.
type FriendSummary struct {
	Username     string         `json:"username"`
	OverallLevel int            `json:"overallLevel"`
	Title        progress.Title `json:"title"`
}

func (e Engine) Friends(ctx context.Context, userID string) ([]FriendSummary, error) {
	users, err := e.Repo.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := make([]FriendSummary, 0, len(users))
	for _, u := range users {
		levels, err := e.levelsOf(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		overall := e.Catalog.OverallLevel(levels)
		res = append(res, FriendSummary{Username: u.Username, OverallLevel: overall, Title: e.Catalog.Title(overall)})
	}
	return res, nil
}
