package app

import (
	"context"
	"os"
	"testing"

	"skillroutine/internal/config"
)

func TestResolveConfigFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := ResolveConfig(dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cfg.Skills) != 8 {
		t.Fatalf("expected default catalog, got %d skills", len(cfg.Skills))
	}

	custom := "server:\n  addr: 127.0.0.1:9999\ncalendar:\n  timezone: UTC\nskills:\n  - id: a\n    label: Alpha\nactivities:\n  - id: act\n    label: Act\n    skill: a\n    weights:\n      a: 1\n"
	if err := os.WriteFile(config.Path(dir), []byte(custom), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = ResolveConfig(dir)
	if err != nil {
		t.Fatalf("resolve custom: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" || len(cfg.Skills) != 1 {
		t.Fatalf("custom config not used: %+v", cfg.Server)
	}
}

func TestOpenEngineMigrates(t *testing.T) {
	dir := t.TempDir()
	e, conn, err := OpenEngine(context.Background(), Options{Workspace: dir, JWTSecret: "s"})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	defer conn.Close()
	if e.Tokens.Secret != "s" {
		t.Fatalf("secret not applied")
	}
	users, err := e.ListUsers(context.Background())
	if err != nil || len(users) != 0 {
		t.Fatalf("expected empty users table, got %v %v", users, err)
	}
}
