package progress_test

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"skillroutine/internal/progress"
)

func TestCompleteActivityEndToEnd(t *testing.T) {
	e := testEngine(twoSkillCatalog())
	s := e.Reset()
	today := e.Today()
	s.QuestsByDay[today] = []progress.Quest{
		{ID: today + "-0", Skill: "A", Kind: progress.QuestCount, Target: 1},
		{ID: today + "-1", Skill: "B", Kind: progress.QuestCount, Target: 1},
	}

	out := e.CompleteActivity(s, progress.ActivityInput{Activity: "act", Minutes: 20, Difficulty: "medium"})

	// round(min(240, 40) * 1.15) = 46
	if out.BaseXP != 46 {
		t.Fatalf("expected base 46, got %d", out.BaseXP)
	}
	if !reflect.DeepEqual(out.Entry.GainedBySkill, map[string]int{"A": 46, "B": 23}) {
		t.Fatalf("unexpected breakdown %v", out.Entry.GainedBySkill)
	}
	if out.Entry.Gained != 69 || out.EarnedToday != 69 || s.DailyEarned[today] != 69 {
		t.Fatalf("expected 69 gained today, got entry %d outcome %d state %d", out.Entry.Gained, out.EarnedToday, s.DailyEarned[today])
	}
	if s.Skills["A"].XP != 46 || s.Skills["B"].XP != 23 {
		t.Fatalf("unexpected ledger A=%+v B=%+v", s.Skills["A"], s.Skills["B"])
	}
	if len(s.Log) != 1 || s.Log[0].Skill != "A" {
		t.Fatalf("expected one entry for A, got %+v", s.Log)
	}
	if !reflect.DeepEqual(out.CompletedQuests, []string{today + "-0"}) {
		t.Fatalf("expected quest 0 completed, got %v", out.CompletedQuests)
	}
	if s.QuestsByDay[today][1].Done {
		t.Fatalf("quest for B should not move: primary skill is A")
	}
	if got := s.Log[0].Text; got != "Act • 20min • medium • with distractions • +69 XP" {
		t.Fatalf("unexpected entry text %q", got)
	}
}

func TestCompleteActivityClampsMinutes(t *testing.T) {
	e := testEngine(twoSkillCatalog())
	s := e.Reset()
	today := e.Today()
	s.QuestsByDay[today] = []progress.Quest{{ID: today + "-0", Skill: "A", Kind: progress.QuestMinutes, Target: 60, Progress: 10}}

	out := e.CompleteActivity(s, progress.ActivityInput{Activity: "act", Minutes: math.MaxInt})

	if out.BaseXP != progress.MaxBaseXP {
		t.Fatalf("expected capped base %d, got %d", progress.MaxBaseXP, out.BaseXP)
	}
	if out.Entry.Minutes != progress.MaxMinutes {
		t.Fatalf("expected recorded minutes %d, got %d", progress.MaxMinutes, out.Entry.Minutes)
	}
	q := s.QuestsByDay[today][0]
	if q.Progress != 10+progress.MaxMinutes || !q.Done {
		t.Fatalf("minutes quest should complete, got %+v", q)
	}
}

func TestCompleteActivityAccumulatesDailyTotal(t *testing.T) {
	e := testEngine(testCatalog())
	s := e.Reset()
	first := e.CompleteActivity(s, progress.ActivityInput{Activity: "Study", Minutes: 30, Difficulty: "medio", Focus: true})
	second := e.CompleteActivity(s, progress.ActivityInput{Activity: "deep-work", Minutes: 10})
	if second.EarnedToday != first.Entry.Gained+second.Entry.Gained {
		t.Fatalf("daily total should accumulate, got %d", second.EarnedToday)
	}
	if s.Log[0].Difficulty != progress.Medium {
		t.Fatalf("difficulty should be canonical, got %s", s.Log[0].Difficulty)
	}
	if !strings.Contains(s.Log[0].Text, "no distractions") {
		t.Fatalf("focus should show in text: %q", s.Log[0].Text)
	}
}

func TestCompleteUnknownActivityGrantsNothing(t *testing.T) {
	e := testEngine(testCatalog())
	s := e.Reset()
	out := e.CompleteActivity(s, progress.ActivityInput{Activity: "juggling", Minutes: 30, Difficulty: "hard"})
	if out.Known {
		t.Fatalf("juggling should be unknown")
	}
	if out.Entry.Gained != 0 || len(out.Entry.GainedBySkill) != 0 {
		t.Fatalf("expected zero xp, got %+v", out.Entry)
	}
	if s.DailyEarned[e.Today()] != 0 {
		t.Fatalf("daily total should exist at 0")
	}
	if _, ok := s.DailyEarned[e.Today()]; !ok {
		t.Fatalf("daily key should be created")
	}
	if len(s.Log) != 1 {
		t.Fatalf("entry should still be logged")
	}
	for id, sk := range s.Skills {
		if sk.Level != 1 || sk.XP != 0 {
			t.Fatalf("skill %s changed: %+v", id, sk)
		}
	}
}

func TestNewQuestsReplacesToday(t *testing.T) {
	e := testEngine(testCatalog())
	e.Rand = &scriptedRand{seq: []int{0, 2, 0}}
	s := e.Reset()
	first := e.NewQuests(s)
	first[0].Progress = 1
	e.Rand = &scriptedRand{seq: []int{1, 0, 4}}
	second := e.NewQuests(s)
	got := e.TodayQuests(s)
	if !reflect.DeepEqual(got, second) || got[0].Progress != 0 {
		t.Fatalf("regeneration should replace today's quests, got %+v", got)
	}
	if len(s.QuestsByDay) != 1 {
		t.Fatalf("expected a single day of quests, got %d", len(s.QuestsByDay))
	}
}

func TestAchievementsUnlockOnce(t *testing.T) {
	e := testEngine(testCatalog())
	s := e.Reset()
	out := e.CompleteActivity(s, progress.ActivityInput{Activity: "study", Minutes: 5})
	if !reflect.DeepEqual(out.Unlocked, []string{"first_activity"}) {
		t.Fatalf("expected first_activity, got %v", out.Unlocked)
	}
	out = e.CompleteActivity(s, progress.ActivityInput{Activity: "study", Minutes: 5})
	if len(out.Unlocked) != 0 {
		t.Fatalf("achievement should unlock once, got %v", out.Unlocked)
	}
	if !reflect.DeepEqual(s.Achievements, []string{"first_activity"}) {
		t.Fatalf("unexpected achievements %v", s.Achievements)
	}
}

func TestResetClearsEverything(t *testing.T) {
	e := testEngine(testCatalog())
	s := e.Reset()
	e.CompleteActivity(s, progress.ActivityInput{Activity: "study", Minutes: 120, Difficulty: "hard"})
	fresh := e.Reset()
	if len(fresh.Log) != 0 || len(fresh.DailyEarned) != 0 || len(fresh.QuestsByDay) != 0 {
		t.Fatalf("reset should clear state: %+v", fresh)
	}
	if got := testCatalog().OverallLevel(fresh.Levels()); got != 8 {
		t.Fatalf("expected overall 8 after reset, got %d", got)
	}
}
