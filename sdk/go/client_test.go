package skillroutinesdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"skillroutine/internal/config"
	"skillroutine/internal/db"
	"skillroutine/internal/engine"
	"skillroutine/internal/engine/auth"
	"skillroutine/internal/migrate"
	"skillroutine/internal/server"
)

func newTestAPI(t *testing.T) string {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Tokens = auth.Tokens{Secret: "sdk-secret", TTL: time.Hour}
	handler, err := server.New(server.Config{Engine: e, BasePath: "/api"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL + "/api"
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	base := newTestAPI(t)

	neo := New(base)
	if _, err := neo.Register(ctx, "neo@example.com", "neo", "secret"); err != nil {
		t.Fatalf("register neo: %v", err)
	}
	trinity := New(base)
	if _, err := trinity.Register(ctx, "trinity@example.com", "trinity", "secret"); err != nil {
		t.Fatalf("register trinity: %v", err)
	}

	me, err := neo.Me(ctx)
	if err != nil || me.Username != "neo" {
		t.Fatalf("me: %+v %v", me, err)
	}

	quests, err := neo.GenerateQuests(ctx)
	if err != nil || len(quests) != 3 {
		t.Fatalf("generate quests: %+v %v", quests, err)
	}
	res, err := neo.LogActivity(ctx, Activity{Activity: "deep-work", Minutes: 50, Difficulty: "médio", NoDistraction: true})
	if err != nil {
		t.Fatalf("log activity: %v", err)
	}
	// 100 * 1.15 * 1.2 = 138
	if res.Outcome.BaseXP != 138 || res.Outcome.Entry.Skill != "determination" {
		t.Fatalf("unexpected outcome %+v", res.Outcome)
	}
	view, err := neo.State(ctx)
	if err != nil || len(view.State.Log) != 1 || view.EarnedToday != res.Outcome.Entry.Gained {
		t.Fatalf("state: %+v %v", view, err)
	}

	sent, err := neo.RequestFriend(ctx, "trinity")
	if err != nil || sent.Status != "pending" {
		t.Fatalf("request friend: %+v %v", sent, err)
	}
	reqs, err := trinity.FriendRequests(ctx)
	if err != nil || len(reqs) != 1 {
		t.Fatalf("friend requests: %+v %v", reqs, err)
	}
	if _, err := trinity.RespondFriendRequest(ctx, reqs[0].ID, "accept"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	friends, err := trinity.Friends(ctx)
	if err != nil || len(friends) != 1 || friends[0].Username != "neo" || friends[0].OverallLevel <= 8 {
		t.Fatalf("friends: %+v %v", friends, err)
	}

	profile, err := trinity.Profile(ctx, "neo")
	if err != nil || profile.TopSkill != "determination" {
		t.Fatalf("profile: %+v %v", profile, err)
	}
	rank, err := neo.RankSkills(ctx)
	if err != nil || rank["determination"][0].Username != "neo" {
		t.Fatalf("rank: %+v %v", rank, err)
	}

	key, err := neo.CreateAPIKey(ctx, "script")
	if err != nil || key.Key == "" {
		t.Fatalf("create key: %+v %v", key, err)
	}
	byKey := New(base)
	byKey.APIKey = key.Key
	page, err := byKey.EventsPage(ctx, 100, "")
	if err != nil || len(page.Items) == 0 {
		t.Fatalf("events by api key: %+v %v", page, err)
	}

	if _, err := neo.Profile(ctx, "ghost"); !IsStatus(err, http.StatusNotFound) {
		t.Fatalf("expected 404, got %v", err)
	}
	anon := New(base)
	_, err = anon.Me(ctx)
	if !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected 401, got %v", err)
	}
	if apiErr := err.(*APIError); apiErr.Code != "unauthorized" {
		t.Fatalf("expected decoded error code, got %+v", apiErr)
	}
}
