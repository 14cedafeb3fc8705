package progress

import (
	"math"
	"sort"
	"strings"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

const (
	MaxBaseXP       = 240
	FocusMultiplier = 1.2

	// MaxMinutes bounds the duration recorded for a single activity.
	MaxMinutes = 24 * 60
)

var accentFolder = strings.NewReplacer("á", "a", "é", "e", "í", "i", "Á", "a", "É", "e", "Í", "i")

// ParseDifficulty accepts English and legacy Portuguese labels. Anything
// unrecognized is Easy.
func ParseDifficulty(s string) Difficulty {
	switch accentFolder.Replace(strings.ToLower(strings.TrimSpace(s))) {
	case "medium", "medio":
		return Medium
	case "hard", "dificil":
		return Hard
	default:
		return Easy
	}
}

func (d Difficulty) Multiplier() float64 {
	switch ParseDifficulty(string(d)) {
	case Hard:
		return 1.35
	case Medium:
		return 1.15
	default:
		return 1.0
	}
}

// BaseXP computes the XP of a single completion before weighting.
func BaseXP(minutes int, difficulty Difficulty, focus bool) int {
	minutes = min(max(minutes, 1), MaxBaseXP/2)
	base := float64(minutes * 2)
	mul := difficulty.Multiplier()
	if focus {
		mul *= FocusMultiplier
	}
	return int(math.Round(base * mul))
}

// Grant is the result of distributing base XP over the ledger.
type Grant struct {
	Total    int
	BySkill  map[string]int
	LevelUps map[string]int
}

// Distribute applies round(base*weight) to each weighted skill present in the
// ledger. Non-positive grants and missing skills are skipped.
func Distribute(ledger map[string]*Skill, weights map[string]float64, base int) Grant {
	g := Grant{BySkill: map[string]int{}, LevelUps: map[string]int{}}
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, id := range keys {
		xp := int(math.Round(float64(base) * weights[id]))
		if xp <= 0 {
			continue
		}
		sk, ok := ledger[id]
		if !ok || sk == nil {
			continue
		}
		if up := sk.ApplyXP(xp); up > 0 {
			g.LevelUps[id] = up
		}
		g.BySkill[id] = xp
		g.Total += xp
	}
	return g
}
