package progress

import "math"

// DisplayLevelCap bounds the radar chart value. Levels themselves are unbounded.
const DisplayLevelCap = 20

// Skill is one entry of the ledger. XP is always below XPRequiredForLevel(Level)
// once ApplyXP has run.
type Skill struct {
	Level int `json:"level"`
	XP    int `json:"xp"`
}

// XPRequiredForLevel returns the XP needed to leave the given level.
func XPRequiredForLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return 100 + (level-1)*40
}

// ApplyXP adds amount (negative values count as zero) and resolves overflow.
// It returns the number of levels gained.
func (s *Skill) ApplyXP(amount int) int {
	if amount < 0 {
		amount = 0
	}
	if s.Level < 1 {
		s.Level = 1
	}
	if s.XP < 0 {
		s.XP = 0
	}
	s.XP += amount
	gained := 0
	for s.XP >= XPRequiredForLevel(s.Level) {
		s.XP -= XPRequiredForLevel(s.Level)
		s.Level++
		gained++
	}
	return gained
}

// Fraction is the progress towards the next level in [0,1).
func (s Skill) Fraction() float64 {
	return float64(s.XP) / float64(XPRequiredForLevel(s.Level))
}

func (s Skill) RadarValue() float64 {
	return math.Min(DisplayLevelCap, float64(s.Level)+s.Fraction())
}

func newSkill() *Skill {
	return &Skill{Level: 1}
}
