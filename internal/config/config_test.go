package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skillroutine/internal/progress"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cat := cfg.Catalog()
	if len(cat.Skills) != 8 || len(cat.Activities) != 9 {
		t.Fatalf("unexpected catalog sizes: %d skills, %d activities", len(cat.Skills), len(cat.Activities))
	}
	if w, ok := cat.Classify("Deep work"); !ok || w["discipline"] != 0.8 {
		t.Fatalf("deep work weights not loaded: %v", w)
	}
	if cfg.Server.BasePath != "/api" || cfg.TokenTTL().Hours() != 720 {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
}

func TestDefaultLegacySkillsPreferNewerIDs(t *testing.T) {
	e := progress.Engine{Catalog: Default().Catalog()}
	s, err := e.Load([]byte(`{"skills":{"foco":{"level":5},"determinacao":{"level":2},"estudo":{"level":4},"inteligencia":{"level":3,"xp":7}}}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := *s.Skills["determination"]; got != (progress.Skill{Level: 2}) {
		t.Fatalf("determinacao should win over foco, got %+v", got)
	}
	if got := *s.Skills["intelligence"]; got != (progress.Skill{Level: 3, XP: 7}) {
		t.Fatalf("inteligencia should win over estudo, got %+v", got)
	}
	for _, legacy := range []string{"foco", "determinacao", "estudo", "inteligencia"} {
		if _, ok := s.Skills[legacy]; ok {
			t.Fatalf("legacy skill %s should be removed", legacy)
		}
	}
}

func TestValidateRejectsBadCatalog(t *testing.T) {
	cases := map[string]string{
		"unknown weight skill": strings.Replace(defaultTemplate, "weights: {social: 1.0, energy: 0.4}", "weights: {social: 1.0, charisma: 0.4}", 1),
		"weight above one":     strings.Replace(defaultTemplate, "weights: {social: 1.0, energy: 0.4}", "weights: {social: 1.5}", 1),
		"legacy to unknown":    strings.Replace(defaultTemplate, "{from: saude, to: health}", "{from: saude, to: wellness}", 1),
		"tiers out of order":   strings.Replace(defaultTemplate, "{min: 20, title: In progress}", "{min: 5, title: In progress}", 1),
		"bad timezone":         strings.Replace(defaultTemplate, "timezone: UTC", "timezone: Mars/Olympus", 1),
		"webhook without url":  strings.Replace(defaultTemplate, "webhooks: []", "webhooks:\n  - events: [activity.logged]", 1),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config for empty workspace, got %v %v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skillroutine.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("load: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Fatalf("unexpected location %v %v", loc, err)
	}
}
