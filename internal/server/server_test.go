package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"skillroutine/internal/config"
	"skillroutine/internal/db"
	"skillroutine/internal/engine"
	"skillroutine/internal/engine/auth"
	"skillroutine/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestEngine(t *testing.T) engine.Engine {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	e := engine.New(conn, cfg)
	e.Tokens = auth.Tokens{Secret: "test-secret", TTL: time.Hour}
	e.Rand = rand.New(rand.NewPCG(7, 7))
	return e
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	e := newTestEngine(t)
	handler, err := New(Config{Engine: e, BasePath: "/api"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func expectStatus(t *testing.T, res *http.Response, body []byte, status int) {
	t.Helper()
	if res.StatusCode != status {
		t.Fatalf("%s %s: expected %d, got %d: %s", res.Request.Method, res.Request.URL.Path, status, res.StatusCode, string(body))
	}
}

func expectErrorCode(t *testing.T, body []byte, code string) {
	t.Helper()
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode error envelope: %v: %s", err, string(body))
	}
	if envelope.Error.Code != code {
		t.Fatalf("expected error code %s, got %+v", code, envelope.Error)
	}
}

func register(t *testing.T, srv *testServer, username string) (engine.Session, map[string]string) {
	t.Helper()
	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/register", map[string]any{
		"email":    username + "@example.com",
		"username": username,
		"password": "secret",
	}, nil)
	expectStatus(t, res, body, http.StatusCreated)
	var sess engine.Session
	if err := json.Unmarshal(body, &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Token == "" || sess.User.Username != username {
		t.Fatalf("unexpected session %+v", sess)
	}
	return sess, map[string]string{"Authorization": "Bearer " + sess.Token}
}

func TestPublicAndProtectedRoutes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/health", nil, nil)
	expectStatus(t, res, body, http.StatusOK)

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, nil)
	expectStatus(t, res, body, http.StatusUnauthorized)
	expectErrorCode(t, body, "unauthorized")

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, map[string]string{"Authorization": "Bearer nope"})
	expectStatus(t, res, body, http.StatusUnauthorized)
	expectErrorCode(t, body, "invalid_credentials")

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/openapi.json", nil, nil)
	expectStatus(t, res, body, http.StatusOK)
	if !strings.Contains(string(body), "/api/activities") || !strings.Contains(string(body), "bearerAuth") {
		t.Fatalf("openapi document missing routes or security: %s", string(body)[:200])
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/docs", nil, nil)
	expectStatus(t, res, body, http.StatusOK)
}

func TestRegisterLoginAndErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	sess, headers := register(t, srv, "neo")

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, headers)
	expectStatus(t, res, body, http.StatusOK)
	if strings.Contains(string(body), "password") {
		t.Fatalf("password hash leaked: %s", string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/register", map[string]any{
		"email": "other@example.com", "username": "NEO", "password": "secret",
	}, nil)
	expectStatus(t, res, body, http.StatusConflict)
	expectErrorCode(t, body, "conflict")

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/register", map[string]any{
		"email": "x@example.com", "username": "bad name", "password": "secret",
	}, nil)
	expectStatus(t, res, body, http.StatusBadRequest)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"email": "neo@example.com", "password": "wrong",
	}, nil)
	expectStatus(t, res, body, http.StatusUnauthorized)
	expectErrorCode(t, body, "invalid_credentials")

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"email": "neo@example.com", "password": "secret",
	}, nil)
	expectStatus(t, res, body, http.StatusOK)
	var again engine.Session
	if err := json.Unmarshal(body, &again); err != nil || again.User.ID != sess.User.ID {
		t.Fatalf("login returned another user: %+v %v", again, err)
	}
}

func TestActivityQuestAndStateFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	_, headers := register(t, srv, "neo")

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/state", nil, headers)
	expectStatus(t, res, body, http.StatusOK)
	var view engine.StateView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if view.OverallLevel != 8 || view.Title.Name != "Beta" {
		t.Fatalf("unexpected fresh view %+v", view)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/quests/generate", nil, headers)
	expectStatus(t, res, body, http.StatusOK)
	var quests QuestsResponse
	if err := json.Unmarshal(body, &quests); err != nil || len(quests.Quests) != 3 {
		t.Fatalf("generate quests: %s %v", string(body), err)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/activities", map[string]any{
		"activity": "study", "minutes": 30, "difficulty": "hard", "noDistraction": true,
	}, headers)
	expectStatus(t, res, body, http.StatusOK)
	var result engine.ActivityResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode activity result: %v", err)
	}
	// 60 * 1.35 * 1.2 = 97.2
	if result.Outcome.BaseXP != 97 || len(result.View.State.Log) != 1 {
		t.Fatalf("unexpected activity result %+v", result.Outcome)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/activities", map[string]any{
		"activity": "study", "minutes": 1 << 40,
	}, headers)
	expectStatus(t, res, body, http.StatusBadRequest)
	expectErrorCode(t, body, "bad_request")

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/quests", nil, headers)
	expectStatus(t, res, body, http.StatusOK)
	var today QuestsResponse
	if err := json.Unmarshal(body, &today); err != nil || len(today.Quests) != 3 || today.Quests[0].ID != quests.Quests[0].ID {
		t.Fatalf("today's quests: %s %v", string(body), err)
	}

	res, body = doJSON(t, client, http.MethodPut, srv.URL+"/api/state", []byte(`{"skills":{"foco":{"level":4,"xp":0}},"log":[]}`), headers)
	expectStatus(t, res, body, http.StatusOK)
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode replaced state: %v", err)
	}
	if view.State.Skills["determination"].Level != 4 {
		t.Fatalf("replace did not migrate legacy skill: %+v", view.State.Skills)
	}

	res, body = doJSON(t, client, http.MethodPut, srv.URL+"/api/state", []byte(`[1,2`), headers)
	expectStatus(t, res, body, http.StatusBadRequest)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/state/reset", nil, headers)
	expectStatus(t, res, body, http.StatusOK)
	if err := json.Unmarshal(body, &view); err != nil || view.OverallLevel != 8 || len(view.State.Log) != 0 {
		t.Fatalf("reset: %+v %v", view, err)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/activities/catalog", nil, headers)
	expectStatus(t, res, body, http.StatusOK)
	var catalog CatalogResponse
	if err := json.Unmarshal(body, &catalog); err != nil || len(catalog.Skills) != 8 || len(catalog.Activities) == 0 {
		t.Fatalf("catalog: %s %v", string(body), err)
	}
}

func TestFriendsProfileAndRank(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	_, neo := register(t, srv, "neo")
	_, trinity := register(t, srv, "trinity")
	_, smith := register(t, srv, "smith")

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/friends/request", map[string]any{"username": "neo"}, neo)
	expectStatus(t, res, body, http.StatusBadRequest)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/friends/request", map[string]any{"username": "ghost"}, neo)
	expectStatus(t, res, body, http.StatusNotFound)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/friends/request", map[string]any{"username": "trinity"}, neo)
	expectStatus(t, res, body, http.StatusOK)
	var sent engine.FriendRequestResult
	if err := json.Unmarshal(body, &sent); err != nil || sent.Status != "pending" {
		t.Fatalf("send request: %s %v", string(body), err)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/friends/requests", nil, trinity)
	expectStatus(t, res, body, http.StatusOK)
	var pending FriendRequestsResponse
	if err := json.Unmarshal(body, &pending); err != nil || len(pending.Requests) != 1 || pending.Requests[0].FromUsername != "neo" {
		t.Fatalf("pending: %s %v", string(body), err)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/friends/respond", map[string]any{
		"request_id": sent.Request.ID, "action": "accept",
	}, smith)
	expectStatus(t, res, body, http.StatusForbidden)
	expectErrorCode(t, body, "forbidden")

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/friends/respond", map[string]any{
		"request_id": sent.Request.ID, "action": "accept",
	}, trinity)
	expectStatus(t, res, body, http.StatusOK)

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/friends", nil, neo)
	expectStatus(t, res, body, http.StatusOK)
	var friends FriendsResponse
	if err := json.Unmarshal(body, &friends); err != nil || len(friends.Friends) != 1 || friends.Friends[0].Username != "trinity" {
		t.Fatalf("friends: %s %v", string(body), err)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/users/search?q=tri", nil, neo)
	expectStatus(t, res, body, http.StatusOK)
	var users UsersResponse
	if err := json.Unmarshal(body, &users); err != nil || len(users.Users) != 1 || users.Users[0].Username != "trinity" {
		t.Fatalf("search: %s %v", string(body), err)
	}
	if strings.Contains(string(body), "@example.com") {
		t.Fatalf("search leaked emails: %s", string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/activities", map[string]any{"activity": "cardio", "minutes": 60}, trinity)
	expectStatus(t, res, body, http.StatusOK)

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/users/public?username=trinity", nil, neo)
	expectStatus(t, res, body, http.StatusOK)
	var profile engine.Profile
	if err := json.Unmarshal(body, &profile); err != nil || profile.TopSkill != "health" {
		t.Fatalf("profile: %s %v", string(body), err)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/rank/skills", nil, neo)
	expectStatus(t, res, body, http.StatusOK)
	var rank RankResponse
	if err := json.Unmarshal(body, &rank); err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(rank.Skills["health"]) != 3 || rank.Skills["health"][0].Username != "trinity" {
		t.Fatalf("unexpected health ranking %+v", rank.Skills["health"])
	}
}

func TestAPIKeyAuthAndEvents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	_, headers := register(t, srv, "neo")

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/me/api-keys", map[string]any{"name": "cli"}, headers)
	expectStatus(t, res, body, http.StatusCreated)
	var key engine.CreatedAPIKey
	if err := json.Unmarshal(body, &key); err != nil || !strings.HasPrefix(key.Key, "sr_") {
		t.Fatalf("create key: %s %v", string(body), err)
	}
	keyHeaders := map[string]string{"X-Api-Key": key.Key}

	for i := 0; i < 3; i++ {
		res, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/activities", map[string]any{"activity": "reading", "minutes": 10}, keyHeaders)
		expectStatus(t, res, body, http.StatusOK)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/events?type=activity.logged&limit=2", nil, keyHeaders)
	expectStatus(t, res, body, http.StatusOK)
	var page paginatedEvents
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected a full first page with cursor, got %+v", page)
	}
	if page.Items[0].Payload["activity"] != "reading" {
		t.Fatalf("unexpected payload %+v", page.Items[0].Payload)
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/events?type=activity.logged&limit=2&cursor="+page.NextCursor, nil, keyHeaders)
	expectStatus(t, res, body, http.StatusOK)
	var next paginatedEvents
	if err := json.Unmarshal(body, &next); err != nil || len(next.Items) != 1 || next.NextCursor != "" {
		t.Fatalf("second page: %s %v", string(body), err)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/events?cursor=abc", nil, keyHeaders)
	expectStatus(t, res, body, http.StatusBadRequest)

	res, body = doJSON(t, client, http.MethodDelete, srv.URL+"/api/me/api-keys/"+key.ID, nil, headers)
	expectStatus(t, res, body, http.StatusNoContent)
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, keyHeaders)
	expectStatus(t, res, body, http.StatusUnauthorized)
}
