package progress

import (
	"fmt"
	"math"
	"math/rand/v2"
)

type QuestKind string

const (
	QuestMinutes QuestKind = "minutes"
	QuestCount   QuestKind = "count"
	QuestFocus   QuestKind = "focus"

	// legacyFocusKind is how older clients stored focus quests.
	legacyFocusKind QuestKind = "nodistraction"
)

// QuestsPerDay is the number of quests generated for a date.
const QuestsPerDay = 3

var (
	questTemplates = []QuestKind{QuestMinutes, QuestFocus, QuestCount}
	minuteTargets  = []int{15, 20, 30, 40, 60}
	countTargets   = []int{1, 2, 3}
)

type Quest struct {
	ID       string    `json:"id"`
	Skill    string    `json:"skill"`
	Kind     QuestKind `json:"kind"`
	Target   int       `json:"target"`
	Progress int       `json:"progress"`
	Done     bool      `json:"done"`
	Text     string    `json:"text"`
}

// Normalized maps legacy kind names onto the current ones.
func (k QuestKind) Normalized() QuestKind {
	if k == legacyFocusKind {
		return QuestFocus
	}
	return k
}

// Rand is the randomness source for quest generation. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

func pick[T any](rng Rand, items []T) T {
	return items[rng.IntN(len(items))]
}

// GenerateQuests builds the quests for dateKey. Each slot draws a skill, then
// a template, then a target.
func GenerateQuests(c Catalog, rng Rand, dateKey string) []Quest {
	if rng == nil {
		rng = globalRand{}
	}
	skills := c.SkillIDs()
	quests := make([]Quest, 0, QuestsPerDay)
	if len(skills) == 0 {
		return quests
	}
	for i := 0; i < QuestsPerDay; i++ {
		skill := pick(rng, skills)
		kind := pick(rng, questTemplates)
		label := c.SkillLabel(skill)
		q := Quest{
			ID:    fmt.Sprintf("%s-%d", dateKey, i),
			Skill: skill,
			Kind:  kind,
		}
		switch kind {
		case QuestMinutes:
			q.Target = pick(rng, minuteTargets)
			q.Text = fmt.Sprintf("Do %d min of %s", q.Target, label)
		case QuestFocus:
			q.Target = 1
			q.Text = fmt.Sprintf("1 %s activity without distractions", label)
		default:
			q.Target = pick(rng, countTargets)
			noun := "activities"
			if q.Target == 1 {
				noun = "activity"
			}
			q.Text = fmt.Sprintf("Complete %d %s %s", q.Target, label, noun)
		}
		quests = append(quests, q)
	}
	return quests
}

// TrackQuests advances every open quest whose skill matches the entry's
// primary skill. It returns the ids of quests completed by this entry.
func TrackQuests(quests []Quest, e Entry) []string {
	var completed []string
	for i := range quests {
		q := &quests[i]
		if q.Done || q.Skill != e.Skill {
			continue
		}
		switch q.Kind.Normalized() {
		case QuestMinutes:
			q.Progress = addProgress(q.Progress, e.Minutes)
		case QuestCount:
			q.Progress++
		case QuestFocus:
			if e.Focus {
				q.Progress++
			}
		}
		if q.Progress >= q.Target {
			q.Done = true
			completed = append(completed, q.ID)
		}
	}
	return completed
}

// addProgress saturates instead of wrapping and never goes below zero.
func addProgress(progress, n int) int {
	progress, n = max(progress, 0), max(n, 0)
	if n > math.MaxInt-progress {
		return math.MaxInt
	}
	return progress + n
}
