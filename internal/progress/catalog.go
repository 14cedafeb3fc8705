package progress

import (
	"errors"
	"fmt"
	"strings"
)

type SkillDef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Activity is a real-world activity and the skills it trains. Weights are
// multipliers in (0,1] applied to the base XP of a completion.
type Activity struct {
	ID      string             `json:"id"`
	Label   string             `json:"label"`
	Skill   string             `json:"skill"`
	Weights map[string]float64 `json:"weights"`
}

type Tier struct {
	Min   int    `json:"min"`
	Title string `json:"title"`
}

// LegacySkill renames a skill id found in old state blobs.
type LegacySkill struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// AchievementRule unlocks an achievement once Threshold is reached.
// Kind "activities" counts log entries, "days" counts distinct days.
// An empty Skill matches every entry.
type AchievementRule struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Kind      string `json:"kind"`
	Skill     string `json:"skill,omitempty"`
	Threshold int    `json:"threshold"`
}

const (
	AchievementActivities = "activities"
	AchievementDays       = "days"
)

// Catalog is the closed set of skills and activities plus the tables that
// derive titles and migrate legacy state.
type Catalog struct {
	Skills       []SkillDef
	Activities   []Activity
	Tiers        []Tier
	Legacy       []LegacySkill
	Achievements []AchievementRule
}

// DefaultTiers is the overall-level title table.
func DefaultTiers() []Tier {
	return []Tier{
		{Min: 0, Title: "Beta"},
		{Min: 10, Title: "Beginner"},
		{Min: 20, Title: "In progress"},
		{Min: 35, Title: "Intermediate"},
		{Min: 50, Title: "Advanced"},
		{Min: 70, Title: "Elite"},
		{Min: 100, Title: "Alpha"},
		{Min: 130, Title: "Legendary"},
		{Min: 170, Title: "Master"},
		{Min: 220, Title: "Aura"},
	}
}

func (c Catalog) SkillIDs() []string {
	ids := make([]string, 0, len(c.Skills))
	for _, s := range c.Skills {
		ids = append(ids, s.ID)
	}
	return ids
}

func (c Catalog) HasSkill(id string) bool {
	for _, s := range c.Skills {
		if s.ID == id {
			return true
		}
	}
	return false
}

// SkillLabel falls back to the id for skills outside the catalog.
func (c Catalog) SkillLabel(id string) string {
	for _, s := range c.Skills {
		if s.ID == id {
			if s.Label != "" {
				return s.Label
			}
			break
		}
	}
	return id
}

// Activity looks an activity up by id or label, case-insensitively.
func (c Catalog) Activity(key string) (Activity, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Activity{}, false
	}
	for _, a := range c.Activities {
		if strings.EqualFold(a.ID, key) || strings.EqualFold(a.Label, key) {
			return a, true
		}
	}
	return Activity{}, false
}

// Classify returns a copy of the weight map for an activity. Unknown
// activities yield an empty map and ok=false.
func (c Catalog) Classify(key string) (map[string]float64, bool) {
	a, ok := c.Activity(key)
	if !ok {
		return map[string]float64{}, false
	}
	weights := make(map[string]float64, len(a.Weights))
	for k, v := range a.Weights {
		weights[k] = v
	}
	return weights, true
}

func (c Catalog) tiers() []Tier {
	if len(c.Tiers) == 0 {
		return DefaultTiers()
	}
	return c.Tiers
}

// Validate checks the catalog is self-consistent.
func (c Catalog) Validate() error {
	if len(c.Skills) == 0 {
		return errors.New("catalog has no skills")
	}
	seen := make(map[string]bool, len(c.Skills))
	for _, s := range c.Skills {
		if strings.TrimSpace(s.ID) == "" {
			return errors.New("skill id is required")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate skill id %s", s.ID)
		}
		seen[s.ID] = true
	}
	activityIDs := map[string]bool{}
	for _, a := range c.Activities {
		if strings.TrimSpace(a.ID) == "" {
			return errors.New("activity id is required")
		}
		if activityIDs[a.ID] {
			return fmt.Errorf("duplicate activity id %s", a.ID)
		}
		activityIDs[a.ID] = true
		if !seen[a.Skill] {
			return fmt.Errorf("activity %s has unknown primary skill %s", a.ID, a.Skill)
		}
		if len(a.Weights) == 0 {
			return fmt.Errorf("activity %s has no weights", a.ID)
		}
		for sk, w := range a.Weights {
			if !seen[sk] {
				return fmt.Errorf("activity %s weights unknown skill %s", a.ID, sk)
			}
			if w <= 0 || w > 1 {
				return fmt.Errorf("activity %s weight for %s must be in (0,1]", a.ID, sk)
			}
		}
	}
	for i, t := range c.Tiers {
		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("tier %d has empty title", i)
		}
		if i == 0 && t.Min != 0 {
			return errors.New("first tier must start at 0")
		}
		if i > 0 && t.Min <= c.Tiers[i-1].Min {
			return fmt.Errorf("tier %s must be above %d", t.Title, c.Tiers[i-1].Min)
		}
	}
	for _, l := range c.Legacy {
		if l.From == "" || l.To == "" {
			return errors.New("legacy skill mapping needs from and to")
		}
		if seen[l.From] {
			return fmt.Errorf("legacy skill %s is still a catalog skill", l.From)
		}
		if !seen[l.To] {
			return fmt.Errorf("legacy skill %s maps to unknown skill %s", l.From, l.To)
		}
	}
	for _, r := range c.Achievements {
		if r.ID == "" {
			return errors.New("achievement id is required")
		}
		if r.Kind != AchievementActivities && r.Kind != AchievementDays {
			return fmt.Errorf("achievement %s has unknown kind %q", r.ID, r.Kind)
		}
		if r.Skill != "" && !seen[r.Skill] {
			return fmt.Errorf("achievement %s references unknown skill %s", r.ID, r.Skill)
		}
		if r.Threshold < 1 {
			return fmt.Errorf("achievement %s threshold must be positive", r.ID)
		}
	}
	return nil
}
