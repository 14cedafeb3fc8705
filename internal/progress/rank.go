package progress

import (
	"sort"
	"strings"
)

// OverallLevel sums the levels of catalog skills. Missing skills count as 0.
func (c Catalog) OverallLevel(levels map[string]int) int {
	total := 0
	for _, s := range c.Skills {
		total += levels[s.ID]
	}
	return total
}

// Title describes the tier an overall level falls in and the next one, if any.
type Title struct {
	Name     string `json:"title"`
	Min      int    `json:"min"`
	HasNext  bool   `json:"hasNext"`
	NextName string `json:"nextTitle,omitempty"`
	NextMin  int    `json:"nextMin,omitempty"`
}

func (c Catalog) Title(overall int) Title {
	tiers := c.tiers()
	cur := 0
	for i, t := range tiers {
		if overall >= t.Min {
			cur = i
		}
	}
	title := Title{Name: tiers[cur].Title, Min: tiers[cur].Min}
	if cur+1 < len(tiers) {
		title.HasNext = true
		title.NextName = tiers[cur+1].Title
		title.NextMin = tiers[cur+1].Min
	}
	return title
}

// UserLevels is one user's per-skill levels as read for rankings.
type UserLevels struct {
	Username string
	Levels   map[string]int
}

type RankEntry struct {
	Username string `json:"username"`
	Level    int    `json:"level"`
}

// RankSkills builds a leaderboard per catalog skill: users with a positive
// level, by level descending then username ascending, truncated to limit.
func (c Catalog) RankSkills(users []UserLevels, limit int) map[string][]RankEntry {
	out := make(map[string][]RankEntry, len(c.Skills))
	for _, s := range c.Skills {
		bucket := []RankEntry{}
		for _, u := range users {
			if lvl := u.Levels[s.ID]; lvl > 0 {
				bucket = append(bucket, RankEntry{Username: u.Username, Level: lvl})
			}
		}
		sort.SliceStable(bucket, func(i, j int) bool {
			if bucket[i].Level != bucket[j].Level {
				return bucket[i].Level > bucket[j].Level
			}
			return lessUsername(bucket[i].Username, bucket[j].Username)
		})
		if limit > 0 && len(bucket) > limit {
			bucket = bucket[:limit]
		}
		out[s.ID] = bucket
	}
	return out
}

func lessUsername(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

// TopSkill returns the highest-level catalog skill. Ties go to the skill
// listed first.
func (c Catalog) TopSkill(levels map[string]int) (string, int) {
	top, topLevel := "", -1
	for _, s := range c.Skills {
		if lvl := levels[s.ID]; lvl > topLevel {
			top, topLevel = s.ID, lvl
		}
	}
	if topLevel < 0 {
		topLevel = 0
	}
	return top, topLevel
}
