package server

import (
	"encoding/json"

	"skillroutine/internal/domain"
	"skillroutine/internal/progress"
)

// Request payloads

type RegisterRequest struct {
	Email    string `json:"email" format:"email"`
	Username string `json:"username" minLength:"2" maxLength:"20"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LogActivityRequest struct {
	Activity      string `json:"activity"`
	Minutes       int    `json:"minutes,omitempty" maximum:"1440"`
	Difficulty    string `json:"difficulty,omitempty" example:"medium"`
	NoDistraction bool   `json:"noDistraction,omitempty"`
}

type FriendRequestRequest struct {
	Username string `json:"username"`
}

type FriendRespondRequest struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action" enum:"accept,reject"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Responses

type CatalogResponse struct {
	Skills     []progress.SkillDef `json:"skills"`
	Activities []progress.Activity `json:"activities"`
}

type QuestsResponse struct {
	Date   string           `json:"date"`
	Quests []progress.Quest `json:"quests"`
}

type UsersResponse struct {
	Users []PublicUser `json:"users"`
}

// PublicUser omits the email of other users.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type FriendRequestsResponse struct {
	Requests []domain.FriendRequest `json:"requests"`
}

type FriendsResponse struct {
	Friends []FriendResponse `json:"friends"`
}

type FriendResponse struct {
	Username     string `json:"username"`
	OverallLevel int    `json:"overallLevel"`
	Title        string `json:"title"`
}

type RankResponse struct {
	Skills map[string][]progress.RankEntry `json:"skills"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type APIKeysResponse struct {
	Keys []domain.APIKey `json:"keys"`
}

// Conversion helpers

func publicUsers(items []domain.User) []PublicUser {
	out := make([]PublicUser, 0, len(items))
	for _, u := range items {
		out = append(out, PublicUser{ID: u.ID, Username: u.Username})
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
