package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"skillroutine/internal/progress"
)

// Config models skillroutine.yml.
type Config struct {
	Server struct {
		Addr          string   `yaml:"addr"`
		BasePath      string   `yaml:"base_path"`
		TokenTTLHours int      `yaml:"token_ttl_hours"`
		CORSOrigins   []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Calendar struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"calendar"`
	Skills       []SkillConfig       `yaml:"skills"`
	Activities   []ActivityConfig    `yaml:"activities"`
	Tiers        []TierConfig        `yaml:"tiers"`
	LegacySkills []LegacySkillConfig `yaml:"legacy_skills"`
	Achievements []AchievementConfig `yaml:"achievements"`
	Webhooks     []WebhookConfig     `yaml:"webhooks"`
}

type SkillConfig struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

type ActivityConfig struct {
	ID      string             `yaml:"id"`
	Label   string             `yaml:"label"`
	Skill   string             `yaml:"skill"`
	Weights map[string]float64 `yaml:"weights"`
}

type TierConfig struct {
	Min   int    `yaml:"min"`
	Title string `yaml:"title"`
}

type LegacySkillConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type AchievementConfig struct {
	ID        string `yaml:"id"`
	Text      string `yaml:"text"`
	Kind      string `yaml:"kind"`
	Skill     string `yaml:"skill"`
	Threshold int    `yaml:"threshold"`
}

// WebhookConfig is one outgoing event subscription.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sr config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Catalog converts the configured skills and activities for the engine.
func (c *Config) Catalog() progress.Catalog {
	cat := progress.Catalog{}
	for _, s := range c.Skills {
		cat.Skills = append(cat.Skills, progress.SkillDef{ID: s.ID, Label: s.Label})
	}
	for _, a := range c.Activities {
		cat.Activities = append(cat.Activities, progress.Activity{ID: a.ID, Label: a.Label, Skill: a.Skill, Weights: a.Weights})
	}
	for _, t := range c.Tiers {
		cat.Tiers = append(cat.Tiers, progress.Tier{Min: t.Min, Title: t.Title})
	}
	for _, l := range c.LegacySkills {
		cat.Legacy = append(cat.Legacy, progress.LegacySkill{From: l.From, To: l.To})
	}
	for _, a := range c.Achievements {
		cat.Achievements = append(cat.Achievements, progress.AchievementRule{ID: a.ID, Text: a.Text, Kind: a.Kind, Skill: a.Skill, Threshold: a.Threshold})
	}
	return cat
}

// Location returns the calendar time zone used for day keys.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Calendar.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// TokenTTL is how long issued session tokens stay valid.
func (c *Config) TokenTTL() time.Duration {
	if c.Server.TokenTTLHours <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.Server.TokenTTLHours) * time.Hour
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Skills) == 0 {
		return fmt.Errorf("config.skills is required")
	}
	for i, s := range c.Skills {
		if strings.TrimSpace(s.Label) == "" {
			return fmt.Errorf("config.skills[%d] label is required", i)
		}
	}
	if len(c.Activities) == 0 {
		return fmt.Errorf("config.activities is required")
	}
	if err := c.Catalog().Validate(); err != nil {
		return fmt.Errorf("config catalog: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config.calendar.timezone: %w", err)
	}
	if bp := c.Server.BasePath; bp != "" && !strings.HasPrefix(bp, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.TokenTTLHours < 0 {
		return fmt.Errorf("config.server.token_ttl_hours must not be negative")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "skillroutine.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api
  token_ttl_hours: 720
  cors_origins: ["*"]

calendar:
  timezone: UTC

skills:
  - {id: determination, label: Determination}
  - {id: intelligence, label: Intelligence}
  - {id: discipline, label: Discipline}
  - {id: organization, label: Organization}
  - {id: health, label: Health}
  - {id: energy, label: Energy}
  - {id: creativity, label: Creativity}
  - {id: social, label: Social}

activities:
  - id: study
    label: Study
    skill: intelligence
    weights: {intelligence: 1.0, determination: 0.6, discipline: 0.4}
  - id: strength
    label: Strength training
    skill: health
    weights: {health: 1.0, discipline: 0.5, energy: 0.4}
  - id: cardio
    label: Cardio / running
    skill: energy
    weights: {health: 1.0, energy: 0.6, discipline: 0.3}
  - id: reading
    label: Reading
    skill: determination
    weights: {intelligence: 0.7, determination: 0.5}
  - id: meditation
    label: Meditation
    skill: discipline
    weights: {determination: 1.0, energy: 0.6, health: 0.4}
  - id: organize
    label: Organize routine / home
    skill: organization
    weights: {organization: 1.0, discipline: 0.6}
  - id: creative
    label: Creative project
    skill: creativity
    weights: {creativity: 1.0, determination: 0.5, discipline: 0.3}
  - id: socialize
    label: Socialize / networking
    skill: social
    weights: {social: 1.0, energy: 0.4}
  - id: deep-work
    label: Deep work
    skill: determination
    weights: {determination: 1.0, discipline: 0.8, intelligence: 0.4}

tiers:
  - {min: 0, title: Beta}
  - {min: 10, title: Beginner}
  - {min: 20, title: In progress}
  - {min: 35, title: Intermediate}
  - {min: 50, title: Advanced}
  - {min: 70, title: Elite}
  - {min: 100, title: Alpha}
  - {min: 130, title: Legendary}
  - {min: 170, title: Master}
  - {min: 220, title: Aura}

# Skill ids written by older clients, newest first: when two of them map to
# the same skill the one listed first is kept.
legacy_skills:
  - {from: determinacao, to: determination}
  - {from: inteligencia, to: intelligence}
  - {from: foco, to: determination}
  - {from: estudo, to: intelligence}
  - {from: disciplina, to: discipline}
  - {from: organizacao, to: organization}
  - {from: saude, to: health}
  - {from: energia, to: energy}
  - {from: criatividade, to: creativity}

achievements:
  - {id: first_activity, text: First activity completed, kind: activities, threshold: 1}
  - {id: focus_10, text: 10 determination activities, kind: activities, skill: determination, threshold: 10}
  - {id: study_5, text: 5 days training intelligence, kind: days, skill: intelligence, threshold: 5}

webhooks: []
`
