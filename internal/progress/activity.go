package progress

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Entry is one completed activity in the append-only log.
type Entry struct {
	At            int64          `json:"at"`
	Text          string         `json:"text"`
	Activity      string         `json:"activity,omitempty"`
	Skill         string         `json:"skill"`
	Minutes       int            `json:"minutes"`
	Difficulty    Difficulty     `json:"difficulty"`
	Focus         bool           `json:"noDistraction"`
	Gained        int            `json:"gained"`
	GainedBySkill map[string]int `json:"gainedBySkill,omitempty"`
}

type ActivityInput struct {
	Activity   string
	Minutes    int
	Difficulty string
	Focus      bool
}

// Outcome summarizes one completion for display.
type Outcome struct {
	Entry           Entry          `json:"entry"`
	BaseXP          int            `json:"baseXp"`
	LevelUps        map[string]int `json:"levelUps"`
	CompletedQuests []string       `json:"completedQuests"`
	Unlocked        []string       `json:"unlocked"`
	EarnedToday     int            `json:"earnedToday"`
	Known           bool           `json:"known"`
}

// Engine applies user actions to a State. It holds no state of its own.
type Engine struct {
	Catalog  Catalog
	Rand     Rand
	Logger   *zap.Logger
	Now      func() time.Time
	Location *time.Location
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

// Today returns the date key of the current day in the engine's time zone.
func (e Engine) Today() string {
	return DateKey(e.now(), e.Location)
}

// CompleteActivity grants XP for one activity, records it and advances
// today's quests. Unknown activities are logged with zero XP.
func (e Engine) CompleteActivity(s *State, in ActivityInput) Outcome {
	now := e.now()
	minutes := min(max(1, in.Minutes), MaxMinutes)
	difficulty := ParseDifficulty(in.Difficulty)

	label, primary := in.Activity, ""
	weights, known := e.Catalog.Classify(in.Activity)
	if a, ok := e.Catalog.Activity(in.Activity); ok {
		label, primary = a.Label, a.Skill
	} else {
		e.logger().Warn("unknown activity, granting no xp", zap.String("activity", in.Activity))
	}

	base := BaseXP(minutes, difficulty, in.Focus)
	grant := Distribute(s.Skills, weights, base)
	for id, up := range grant.LevelUps {
		e.logger().Info("level up", zap.String("skill", id), zap.Int("levels", up), zap.Int("level", s.Skills[id].Level))
	}

	day := DateKey(now, e.Location)
	if s.DailyEarned == nil {
		s.DailyEarned = map[string]int{}
	}
	s.DailyEarned[day] += grant.Total

	focusText := "with distractions"
	if in.Focus {
		focusText = "no distractions"
	}
	entry := Entry{
		At:            now.UnixMilli(),
		Text:          fmt.Sprintf("%s • %dmin • %s • %s • +%d XP", label, minutes, difficulty, focusText, grant.Total),
		Activity:      in.Activity,
		Skill:         primary,
		Minutes:       minutes,
		Difficulty:    difficulty,
		Focus:         in.Focus,
		Gained:        grant.Total,
		GainedBySkill: grant.BySkill,
	}
	s.Log = append(s.Log, entry)

	var completed []string
	if quests, ok := s.QuestsByDay[day]; ok {
		completed = TrackQuests(quests, entry)
	}

	return Outcome{
		Entry:           entry,
		BaseXP:          base,
		LevelUps:        grant.LevelUps,
		CompletedQuests: nonNil(completed),
		Unlocked:        nonNil(e.unlockAchievements(s)),
		EarnedToday:     s.DailyEarned[day],
		Known:           known,
	}
}

// NewQuests replaces today's quests with a fresh set.
func (e Engine) NewQuests(s *State) []Quest {
	day := e.Today()
	quests := GenerateQuests(e.Catalog, e.Rand, day)
	if s.QuestsByDay == nil {
		s.QuestsByDay = map[string][]Quest{}
	}
	s.QuestsByDay[day] = quests
	return quests
}

func (e Engine) TodayQuests(s *State) []Quest {
	return nonNil(s.QuestsByDay[e.Today()])
}

// Reset returns a fresh state, discarding skills, quests and the log.
func (e Engine) Reset() *State {
	return e.Catalog.NewState(e.now())
}

// Load turns a stored blob into a usable state. An empty blob yields a
// fresh state.
func (e Engine) Load(blob []byte) (*State, error) {
	if len(blob) == 0 {
		return e.Reset(), nil
	}
	s, err := Decode(blob)
	if err != nil {
		return nil, err
	}
	from := s.SchemaVersion
	e.Catalog.Migrate(s)
	e.Catalog.Normalize(s)
	if s.CreatedAt == 0 {
		s.CreatedAt = e.now().UnixMilli()
	}
	if from != SchemaVersion {
		e.logger().Debug("state upgraded", zap.Int("from", from), zap.Int("to", SchemaVersion))
	}
	return s, nil
}

func (e Engine) unlockAchievements(s *State) []string {
	have := make(map[string]bool, len(s.Achievements))
	for _, id := range s.Achievements {
		have[id] = true
	}
	var unlocked []string
	for _, r := range e.Catalog.Achievements {
		if have[r.ID] {
			continue
		}
		if achievementCount(s.Log, r, e.Location) >= r.Threshold {
			s.Achievements = append(s.Achievements, r.ID)
			unlocked = append(unlocked, r.ID)
		}
	}
	return unlocked
}

func achievementCount(log []Entry, r AchievementRule, loc *time.Location) int {
	days := map[string]struct{}{}
	n := 0
	for _, e := range log {
		if r.Skill != "" && e.Skill != r.Skill {
			continue
		}
		n++
		days[DateKey(time.UnixMilli(e.At), loc)] = struct{}{}
	}
	if r.Kind == AchievementDays {
		return len(days)
	}
	return n
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
