package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"skillroutine/internal/domain"
	"skillroutine/internal/engine"
	"skillroutine/internal/progress"
)

type bodyOut[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *bodyOut[T] {
	return &bodyOut[T]{Body: v}
}

func registerAuth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Create an account and sign in",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*bodyOut[engine.Session], error) {
		u, err := e.Register(ctx, engine.RegisterOptions{
			Email:    input.Body.Email,
			Username: input.Body.Username,
			Password: input.Body.Password,
		})
		if err != nil {
			return nil, handleError(err)
		}
		sess, err := e.IssueSession(u)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(sess), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange email and password for a token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*bodyOut[engine.Session], error) {
		sess, err := e.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(sess), nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[domain.User], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.GetUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(u), nil
	})
}

func registerState(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-state",
		Method:      http.MethodGet,
		Path:        "/state",
		Summary:     "Progress state with overall level and title",
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[engine.StateView], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.LoadState(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(e.View(s)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-state",
		Method:      http.MethodPut,
		Path:        "/state",
		Summary:     "Replace the whole progress state",
		Description: "The document is migrated and normalized before it is stored. Concurrent replaces are last-write-wins.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"application/json"`
	}) (*bodyOut[engine.StateView], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		blob := input.RawBody
		if len(blob) == 0 {
			blob = bodyBytes(ctx)
		}
		if len(blob) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		s, err := e.ReplaceState(ctx, userID, blob)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(e.View(s)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-state",
		Method:      http.MethodPost,
		Path:        "/state/reset",
		Summary:     "Discard all progress",
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[engine.StateView], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.ResetState(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(e.View(s)), nil
	})
}

func registerActivities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "log-activity",
		Method:      http.MethodPost,
		Path:        "/activities",
		Summary:     "Log a completed activity",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body LogActivityRequest `json:"body"`
	}) (*bodyOut[engine.ActivityResult], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.LogActivity(ctx, userID, progress.ActivityInput{
			Activity:   strings.TrimSpace(input.Body.Activity),
			Minutes:    input.Body.Minutes,
			Difficulty: input.Body.Difficulty,
			Focus:      input.Body.NoDistraction,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activity-catalog",
		Method:      http.MethodGet,
		Path:        "/activities/catalog",
		Summary:     "Skills and activities",
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[CatalogResponse], error) {
		return reply(CatalogResponse{
			Skills:     nonNilSlice(e.Catalog.Skills),
			Activities: nonNilSlice(e.Catalog.Activities),
		}), nil
	})
}

func registerQuests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-quests",
		Method:      http.MethodPost,
		Path:        "/quests/generate",
		Summary:     "Replace today's quests",
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[QuestsResponse], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		quests, err := e.GenerateQuests(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(QuestsResponse{Date: e.Progress().Today(), Quests: nonNilSlice(quests)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "today-quests",
		Method:      http.MethodGet,
		Path:        "/quests",
		Summary:     "Today's quests",
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[QuestsResponse], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		quests, err := e.TodayQuests(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(QuestsResponse{Date: e.Progress().Today(), Quests: nonNilSlice(quests)}), nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "search-users",
		Method:      http.MethodGet,
		Path:        "/users/search",
		Summary:     "Find users by username",
		Description: "Queries shorter than two characters return no users.",
	}, func(ctx context.Context, input *struct {
		Q string `query:"q"`
	}) (*bodyOut[UsersResponse], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		users, err := e.SearchUsers(ctx, userID, input.Q)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(UsersResponse{Users: publicUsers(users)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "public-profile",
		Method:      http.MethodGet,
		Path:        "/users/public",
		Summary:     "Public profile of a user",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Username string `query:"username"`
	}) (*bodyOut[engine.Profile], error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.PublicProfile(ctx, input.Username)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})
}

func registerFriends(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "request-friend",
		Method:      http.MethodPost,
		Path:        "/friends/request",
		Summary:     "Send a friend request",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body FriendRequestRequest `json:"body"`
	}) (*bodyOut[engine.FriendRequestResult], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.RequestFriend(ctx, userID, input.Body.Username)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pending-friend-requests",
		Method:      http.MethodGet,
		Path:        "/friends/requests",
		Summary:     "Friend requests waiting on the caller",
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[FriendRequestsResponse], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		reqs, err := e.PendingFriendRequests(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(FriendRequestsResponse{Requests: reqs}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "respond-friend-request",
		Method:      http.MethodPost,
		Path:        "/friends/respond",
		Summary:     "Accept or reject a friend request",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body FriendRespondRequest `json:"body"`
	}) (*bodyOut[domain.FriendRequest], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		fr, err := e.RespondFriendRequest(ctx, userID, input.Body.RequestID, input.Body.Action)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(fr), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-friends",
		Method:      http.MethodGet,
		Path:        "/friends",
		Summary:     "Friends with their overall level and title",
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[FriendsResponse], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		friends, err := e.Friends(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := FriendsResponse{Friends: []FriendResponse{}}
		for _, f := range friends {
			resp.Friends = append(resp.Friends, FriendResponse{Username: f.Username, OverallLevel: f.OverallLevel, Title: f.Title.Name})
		}
		return reply(resp), nil
	})
}

func registerRank(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "rank-skills",
		Method:      http.MethodGet,
		Path:        "/rank/skills",
		Summary:     "Top users per skill",
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[RankResponse], error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		rank, err := e.SkillRanking(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(RankResponse{Skills: rank}), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "The caller's recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type   string `query:"type"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*bodyOut[paginatedEvents], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, userID, limit+1, cursorID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return reply(resp), nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/me/api-keys",
		Summary:       "Mint a personal API key",
		Description:   "The plain key is only returned by this call.",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*bodyOut[engine.CreatedAPIKey], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, err := e.CreateAPIKey(ctx, userID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(key), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/me/api-keys",
		Summary:     "The caller's API keys",
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[APIKeysResponse], error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(APIKeysResponse{Keys: nonNilSlice(keys)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/me/api-keys/{id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAPIKey(ctx, userID, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
