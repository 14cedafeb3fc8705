package progress_test

import (
	"reflect"
	"testing"

	"skillroutine/internal/progress"
)

func TestFreshStateTitle(t *testing.T) {
	c := testCatalog()
	s := c.NewState(fixedNow)
	overall := c.OverallLevel(s.Levels())
	if overall != 8 {
		t.Fatalf("expected overall 8, got %d", overall)
	}
	title := c.Title(overall)
	if title.Name != "Beta" || !title.HasNext || title.NextName != "Beginner" || title.NextMin != 10 {
		t.Fatalf("unexpected title %+v", title)
	}
}

func TestTitleBoundaries(t *testing.T) {
	c := testCatalog()
	cases := map[int]string{9: "Beta", 10: "Beginner", 34: "In progress", 35: "Intermediate", 219: "Master", 220: "Aura", 900: "Aura"}
	for overall, want := range cases {
		if got := c.Title(overall).Name; got != want {
			t.Fatalf("overall %d: expected %s, got %s", overall, want, got)
		}
	}
	if top := c.Title(300); top.HasNext {
		t.Fatalf("top tier should have no next: %+v", top)
	}
}

func TestOverallLevelIgnoresUnknownSkills(t *testing.T) {
	c := testCatalog()
	levels := map[string]int{"health": 5, "social": 2, "ghost": 40}
	if got := c.OverallLevel(levels); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestRankSkills(t *testing.T) {
	c := progress.Catalog{Skills: []progress.SkillDef{{ID: "health"}, {ID: "social"}}}
	users := []progress.UserLevels{
		{Username: "carol", Levels: map[string]int{"health": 4, "social": 1}},
		{Username: "alice", Levels: map[string]int{"health": 4}},
		{Username: "Bob", Levels: map[string]int{"health": 7, "social": 0}},
	}
	got := c.RankSkills(users, 2)
	want := map[string][]progress.RankEntry{
		"health": {{Username: "Bob", Level: 7}, {Username: "alice", Level: 4}},
		"social": {{Username: "carol", Level: 1}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected ranking %+v", got)
	}
}

func TestTopSkillPrefersCatalogOrder(t *testing.T) {
	c := testCatalog()
	skill, level := c.TopSkill(map[string]int{"discipline": 3, "health": 3, "social": 1})
	if skill != "discipline" || level != 3 {
		t.Fatalf("expected discipline/3, got %s/%d", skill, level)
	}
}
