package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"skillroutine/internal/config"
	"skillroutine/internal/domain"
	"skillroutine/internal/engine/auth"
	"skillroutine/internal/events"
	"skillroutine/internal/progress"
	"skillroutine/internal/repo"
)

// Engine is the service layer: it loads a user's progress, applies one
// operation and saves it back with the events it produced, all in one
// transaction and under that user's lock.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Catalog  progress.Catalog
	Location *time.Location
	Rand     progress.Rand
	Tokens   auth.Tokens
	Logger   *zap.Logger
	Now      func() time.Time

	locks *userLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		loc = time.UTC
	}
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Catalog:  cfg.Catalog(),
		Location: loc,
		Tokens:   auth.Tokens{TTL: cfg.TokenTTL()},
		Logger:   zap.NewNop(),
		Now:      time.Now,
		locks:    newUserLocks(),
	}
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

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Progress returns the pure rules engine bound to this engine's clock,
// randomness and calendar.
func (e Engine) Progress() progress.Engine {
	return progress.Engine{
		Catalog:  e.Catalog,
		Rand:     e.Rand,
		Logger:   e.logger(),
		Now:      e.now,
		Location: e.Location,
	}
}

func (e Engine) lockUser(userID string) func() {
	if e.locks == nil {
		return func() {}
	}
	return e.locks.lock(userID)
}

type pendingEvent struct {
	Type       string
	EntityKind string
	EntityID   string
	Payload    events.EventPayload
}

// loadState reads and upgrades a stored document. A user without one gets a
// fresh state.
func (e Engine) loadState(ctx context.Context, tx *sql.Tx, userID string) (*progress.State, error) {
	st, err := e.Repo.GetState(ctx, tx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return e.Progress().Reset(), nil
	}
	if err != nil {
		return nil, err
	}
	s, err := e.Progress().Load([]byte(st.StateJSON))
	if err != nil {
		return nil, fmt.Errorf("load state for %s: %w", userID, err)
	}
	return s, nil
}

func (e Engine) saveState(ctx context.Context, tx *sql.Tx, userID string, s *progress.State) error {
	data, err := s.Encode()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	ts := e.timestamp()
	if err := e.Repo.UpsertState(ctx, tx, domain.StoredState{
		UserID:        userID,
		SchemaVersion: s.SchemaVersion,
		StateJSON:     string(data),
		UpdatedAt:     ts,
	}); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return e.Repo.TouchUser(ctx, tx, userID, ts)
}

// mutateState runs fn against the user's current state and persists the
// result. Concurrent calls for one user are serialized.
func (e Engine) mutateState(ctx context.Context, userID string, fn func(*progress.State) (*progress.State, []pendingEvent, error)) (*progress.State, error) {
	unlock := e.lockUser(userID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := e.loadState(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	next, evts, err := fn(current)
	if err != nil {
		return nil, err
	}
	if err := e.saveState(ctx, tx, userID, next); err != nil {
		return nil, err
	}
	for _, evt := range evts {
		if err := e.Events.Append(ctx, tx, evt.Type, userID, evt.EntityKind, evt.EntityID, userID, evt.Payload); err != nil {
			return nil, fmt.Errorf("append event %s: %w", evt.Type, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}

// StateView is a state plus the values derived from it on read.
type StateView struct {
	State        *progress.State `json:"state"`
	OverallLevel int             `json:"overallLevel"`
	Title        progress.Title  `json:"title"`
	Today        string          `json:"today"`
	EarnedToday  int             `json:"earnedToday"`
}

func (e Engine) View(s *progress.State) StateView {
	overall := e.Catalog.OverallLevel(s.Levels())
	today := e.Progress().Today()
	return StateView{
		State:        s,
		OverallLevel: overall,
		Title:        e.Catalog.Title(overall),
		Today:        today,
		EarnedToday:  s.DailyEarned[today],
	}
}

func (e Engine) LoadState(ctx context.Context, userID string) (*progress.State, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return e.loadState(ctx, nil, userID)
}

// ActivityResult is the outcome of logging one activity.
type ActivityResult struct {
	Outcome progress.Outcome `json:"outcome"`
	View    StateView        `json:"view"`
}

func (e Engine) LogActivity(ctx context.Context, userID string, in progress.ActivityInput) (ActivityResult, error) {
	if strings.TrimSpace(in.Activity) == "" {
		return ActivityResult{}, validationError("activity", "is required")
	}
	var out progress.Outcome
	s, err := e.mutateState(ctx, userID, func(s *progress.State) (*progress.State, []pendingEvent, error) {
		out = e.Progress().CompleteActivity(s, in)
		evts := []pendingEvent{{
			Type:       events.ActivityLogged,
			EntityKind: "activity",
			EntityID:   out.Entry.Activity,
			Payload: events.EventPayload{
				"activity":      out.Entry.Activity,
				"skill":         out.Entry.Skill,
				"minutes":       out.Entry.Minutes,
				"difficulty":    out.Entry.Difficulty,
				"noDistraction": out.Entry.Focus,
				"gained":        out.Entry.Gained,
				"gainedBySkill": out.Entry.GainedBySkill,
			},
		}}
		for skill, levels := range out.LevelUps {
			evts = append(evts, pendingEvent{
				Type:       events.LevelUp,
				EntityKind: "skill",
				EntityID:   skill,
				Payload:    events.EventPayload{"levels": levels, "level": s.Skills[skill].Level},
			})
		}
		for _, id := range out.CompletedQuests {
			evts = append(evts, pendingEvent{Type: events.QuestCompleted, EntityKind: "quest", EntityID: id})
		}
		for _, id := range out.Unlocked {
			evts = append(evts, pendingEvent{Type: events.AchievementEarned, EntityKind: "achievement", EntityID: id})
		}
		return s, evts, nil
	})
	if err != nil {
		return ActivityResult{}, err
	}
	e.logger().Info("activity logged",
		zap.String("user", userID),
		zap.String("activity", out.Entry.Activity),
		zap.Int("gained", out.Entry.Gained),
		zap.Strings("quests", out.CompletedQuests))
	return ActivityResult{Outcome: out, View: e.View(s)}, nil
}

// GenerateQuests replaces today's quests for the user.
func (e Engine) GenerateQuests(ctx context.Context, userID string) ([]progress.Quest, error) {
	var quests []progress.Quest
	_, err := e.mutateState(ctx, userID, func(s *progress.State) (*progress.State, []pendingEvent, error) {
		quests = e.Progress().NewQuests(s)
		ids := make([]string, 0, len(quests))
		for _, q := range quests {
			ids = append(ids, q.ID)
		}
		return s, []pendingEvent{{
			Type:       events.QuestsGenerated,
			EntityKind: "quests",
			EntityID:   e.Progress().Today(),
			Payload:    events.EventPayload{"quests": ids},
		}}, nil
	})
	return quests, err
}

func (e Engine) TodayQuests(ctx context.Context, userID string) ([]progress.Quest, error) {
	s, err := e.LoadState(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.Progress().TodayQuests(s), nil
}

// ResetState discards all progress of the user.
func (e Engine) ResetState(ctx context.Context, userID string) (*progress.State, error) {
	return e.mutateState(ctx, userID, func(*progress.State) (*progress.State, []pendingEvent, error) {
		return e.Progress().Reset(), []pendingEvent{{Type: events.StateReset, EntityKind: "state", EntityID: userID}}, nil
	})
}

// ReplaceState stores a client-supplied document after upgrading and
// normalizing it. It is last-write-wins.
func (e Engine) ReplaceState(ctx context.Context, userID string, blob []byte) (*progress.State, error) {
	incoming, err := e.Progress().Load(blob)
	if err != nil {
		return nil, validationError("state", err.Error())
	}
	return e.mutateState(ctx, userID, func(*progress.State) (*progress.State, []pendingEvent, error) {
		return incoming, []pendingEvent{{
			Type:       events.StateReplaced,
			EntityKind: "state",
			EntityID:   userID,
			Payload:    events.EventPayload{"log": len(incoming.Log)},
		}}, nil
	})
}

// MigrateStates rewrites every stored document that is not at the current
// schema version and returns how many changed.
func (e Engine) MigrateStates(ctx context.Context) (int, error) {
	rows, err := e.Repo.ListStates(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, row := range rows {
		st, err := e.Repo.GetState(ctx, nil, row.UserID)
		if err != nil {
			return changed, err
		}
		if st.SchemaVersion == progress.SchemaVersion {
			continue
		}
		from := st.SchemaVersion
		if _, err := e.mutateState(ctx, row.UserID, func(s *progress.State) (*progress.State, []pendingEvent, error) {
			return s, []pendingEvent{{
				Type:       events.StateMigrated,
				EntityKind: "state",
				EntityID:   row.UserID,
				Payload:    events.EventPayload{"from": from, "to": progress.SchemaVersion},
			}}, nil
		}); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func (e Engine) ListEvents(ctx context.Context, userID string, limit int, cursor int64, evtType string) ([]domain.Event, error) {
	return e.Repo.LatestEventsFrom(ctx, limit, cursor, userID, evtType)
}

func validationError(field, msg string) error {
	return auth.ValidationError{Field: field, Message: msg}
}
