package progress

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/cast"
)

// SchemaVersion is stamped on every state written by this package. Blobs
// without a version are treated as version 0.
const SchemaVersion = 1

var dateKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// State is everything one user has accumulated. It is loaded and saved as a
// single document.
type State struct {
	SchemaVersion int                `json:"schemaVersion"`
	CreatedAt     int64              `json:"createdAt"`
	Skills        map[string]*Skill  `json:"skills"`
	DailyEarned   map[string]int     `json:"dailyEarned"`
	QuestsByDay   map[string][]Quest `json:"questsByDay"`
	Log           []Entry            `json:"log"`
	Achievements  []string           `json:"achievements"`
}

// NewState returns a fresh state with every catalog skill at level 1.
func (c Catalog) NewState(now time.Time) *State {
	s := &State{
		SchemaVersion: SchemaVersion,
		CreatedAt:     now.UnixMilli(),
		Skills:        make(map[string]*Skill, len(c.Skills)),
		DailyEarned:   map[string]int{},
		QuestsByDay:   map[string][]Quest{},
		Log:           []Entry{},
		Achievements:  []string{},
	}
	for _, id := range c.SkillIDs() {
		s.Skills[id] = newSkill()
	}
	return s
}

// DateKey formats t as a local calendar day.
func DateKey(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(time.DateOnly)
}

// Levels returns the level of every skill in the ledger.
func (s *State) Levels() map[string]int {
	out := make(map[string]int, len(s.Skills))
	for id, sk := range s.Skills {
		if sk != nil {
			out[id] = sk.Level
		}
	}
	return out
}

func (s *State) Encode() ([]byte, error) {
	return json.Marshal(s)
}

type rawState struct {
	SchemaVersion any                        `json:"schemaVersion"`
	CreatedAt     any                        `json:"createdAt"`
	Skills        map[string]json.RawMessage `json:"skills"`
	DailyEarned   map[string]any             `json:"dailyEarned"`
	QuestsByDay   map[string]json.RawMessage `json:"questsByDay"`
	Log           []json.RawMessage          `json:"log"`
	Achievements  []string                   `json:"achievements"`
}

type rawSkill struct {
	Level any `json:"level"`
	XP    any `json:"xp"`
}

type rawQuest struct {
	ID       any `json:"id"`
	Skill    any `json:"skill"`
	Kind     any `json:"kind"`
	Target   any `json:"target"`
	Progress any `json:"progress"`
	Done     any `json:"done"`
	Text     any `json:"text"`
}

func (rq rawQuest) quest() Quest {
	return Quest{
		ID:       cast.ToString(rq.ID),
		Skill:    cast.ToString(rq.Skill),
		Kind:     QuestKind(cast.ToString(rq.Kind)),
		Target:   cast.ToInt(rq.Target),
		Progress: cast.ToInt(rq.Progress),
		Done:     cast.ToBool(rq.Done),
		Text:     cast.ToString(rq.Text),
	}
}

// Decode parses a stored blob, tolerating the loose typing of older clients:
// numbers stored as strings, malformed day keys and unreadable entries.
// Only a blob that is not a JSON object is an error.
func Decode(data []byte) (*State, error) {
	var raw rawState
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	s := &State{
		SchemaVersion: cast.ToInt(raw.SchemaVersion),
		CreatedAt:     cast.ToInt64(raw.CreatedAt),
		Skills:        make(map[string]*Skill, len(raw.Skills)),
		DailyEarned:   make(map[string]int, len(raw.DailyEarned)),
		QuestsByDay:   make(map[string][]Quest, len(raw.QuestsByDay)),
		Log:           make([]Entry, 0, len(raw.Log)),
		Achievements:  raw.Achievements,
	}
	for id, msg := range raw.Skills {
		var rs rawSkill
		if err := json.Unmarshal(msg, &rs); err != nil {
			continue
		}
		s.Skills[id] = &Skill{Level: cast.ToInt(rs.Level), XP: cast.ToInt(rs.XP)}
	}
	for day, v := range raw.DailyEarned {
		if !dateKeyPattern.MatchString(day) {
			continue
		}
		s.DailyEarned[day] = cast.ToInt(v)
	}
	for day, list := range raw.QuestsByDay {
		var msgs []json.RawMessage
		if err := json.Unmarshal(list, &msgs); err != nil {
			continue
		}
		quests := make([]Quest, 0, len(msgs))
		for _, msg := range msgs {
			var rq rawQuest
			if err := json.Unmarshal(msg, &rq); err != nil {
				continue
			}
			quests = append(quests, rq.quest())
		}
		s.QuestsByDay[day] = quests
	}
	for _, msg := range raw.Log {
		var e Entry
		if err := json.Unmarshal(msg, &e); err != nil {
			continue
		}
		s.Log = append(s.Log, e)
	}
	return s, nil
}

// Migrate rewrites legacy skill ids. Mappings run in catalog order, newest id
// first, and a target that already holds a value keeps it, so a current id
// beats any legacy one and a newer legacy id beats an older one. Legacy keys
// are removed. Log breakdowns that collide are summed.
// Running it twice is a no-op.
func (c Catalog) Migrate(s *State) {
	if len(c.Legacy) == 0 {
		return
	}
	rename := make(map[string]string, len(c.Legacy))
	for _, l := range c.Legacy {
		if _, ok := rename[l.From]; !ok {
			rename[l.From] = l.To
		}
	}
	for _, l := range c.Legacy {
		sk, ok := s.Skills[l.From]
		if !ok {
			continue
		}
		if cur, exists := s.Skills[l.To]; !exists || cur == nil {
			s.Skills[l.To] = sk
		}
		delete(s.Skills, l.From)
	}
	for i := range s.Log {
		e := &s.Log[i]
		if to, ok := rename[e.Skill]; ok {
			e.Skill = to
		}
		if len(e.GainedBySkill) == 0 {
			continue
		}
		mapped := make(map[string]int, len(e.GainedBySkill))
		for k, v := range e.GainedBySkill {
			if to, ok := rename[k]; ok {
				k = to
			}
			mapped[k] += v
		}
		e.GainedBySkill = mapped
	}
	for day, quests := range s.QuestsByDay {
		for i := range quests {
			if to, ok := rename[quests[i].Skill]; ok {
				quests[i].Skill = to
			}
		}
		s.QuestsByDay[day] = quests
	}
}

// Normalize repairs a decoded state so every invariant holds: all catalog
// skills present, no pending overflow, valid day keys and sticky quest
// completion.
func (c Catalog) Normalize(s *State) {
	if s.Skills == nil {
		s.Skills = map[string]*Skill{}
	}
	for id, sk := range s.Skills {
		if sk == nil {
			s.Skills[id] = newSkill()
		}
	}
	for _, id := range c.SkillIDs() {
		if _, ok := s.Skills[id]; !ok {
			s.Skills[id] = newSkill()
		}
	}
	for _, sk := range s.Skills {
		sk.ApplyXP(0)
	}
	if s.DailyEarned == nil {
		s.DailyEarned = map[string]int{}
	}
	for day := range s.DailyEarned {
		if !dateKeyPattern.MatchString(day) {
			delete(s.DailyEarned, day)
		}
	}
	if s.QuestsByDay == nil {
		s.QuestsByDay = map[string][]Quest{}
	}
	for _, quests := range s.QuestsByDay {
		for i := range quests {
			q := &quests[i]
			q.Kind = q.Kind.Normalized()
			if q.Progress < 0 {
				q.Progress = 0
			}
			if q.Progress >= q.Target {
				q.Done = true
			}
		}
	}
	if s.Log == nil {
		s.Log = []Entry{}
	}
	if s.Achievements == nil {
		s.Achievements = []string{}
	}
	s.SchemaVersion = SchemaVersion
}
