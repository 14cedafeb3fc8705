package progress_test

import (
	"time"

	"skillroutine/internal/progress"
)

var testSkills = []progress.SkillDef{
	{ID: "determination", Label: "Determination"},
	{ID: "intelligence", Label: "Intelligence"},
	{ID: "discipline", Label: "Discipline"},
	{ID: "organization", Label: "Organization"},
	{ID: "health", Label: "Health"},
	{ID: "energy", Label: "Energy"},
	{ID: "creativity", Label: "Creativity"},
	{ID: "social", Label: "Social"},
}

func testCatalog() progress.Catalog {
	return progress.Catalog{
		Skills: testSkills,
		Activities: []progress.Activity{
			{ID: "study", Label: "Study", Skill: "intelligence", Weights: map[string]float64{"intelligence": 1.0, "determination": 0.6, "discipline": 0.4}},
			{ID: "deep-work", Label: "Deep work", Skill: "determination", Weights: map[string]float64{"determination": 1.0, "discipline": 0.8, "intelligence": 0.4}},
		},
		Tiers: progress.DefaultTiers(),
		Legacy: []progress.LegacySkill{
			{From: "determinacao", To: "determination"},
			{From: "inteligencia", To: "intelligence"},
			{From: "foco", To: "determination"},
			{From: "estudo", To: "intelligence"},
		},
		Achievements: []progress.AchievementRule{
			{ID: "first_activity", Kind: progress.AchievementActivities, Threshold: 1},
			{ID: "study_5", Kind: progress.AchievementDays, Skill: "intelligence", Threshold: 5},
		},
	}
}

// twoSkillCatalog has a single activity weighting A fully and B by half.
func twoSkillCatalog() progress.Catalog {
	return progress.Catalog{
		Skills: []progress.SkillDef{{ID: "A", Label: "Alpha"}, {ID: "B", Label: "Bravo"}},
		Activities: []progress.Activity{
			{ID: "act", Label: "Act", Skill: "A", Weights: map[string]float64{"A": 1.0, "B": 0.5}},
		},
	}
}

var fixedNow = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

func testEngine(c progress.Catalog) progress.Engine {
	return progress.Engine{
		Catalog:  c,
		Now:      func() time.Time { return fixedNow },
		Location: time.UTC,
	}
}

// scriptedRand replays a fixed sequence of draws.
type scriptedRand struct {
	seq []int
	i   int
}

func (r *scriptedRand) IntN(n int) int {
	v := r.seq[r.i%len(r.seq)]
	r.i++
	return v % n
}
