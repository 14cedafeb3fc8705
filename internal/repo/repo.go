package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"skillroutine/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// on runs statements inside tx when one is given.
func (r Repo) on(tx *sql.Tx) conn {
	if tx != nil {
		return tx
	}
	return r.DB
}

func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") && strings.Contains(msg, column)
}

const userColumns = `id,email,username,password_hash,created_at,updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// InsertUser stores a new account. Duplicate emails or usernames are
// reported as ErrConflict.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	switch {
	case isUniqueViolation(err, "users.email"):
		return fmt.Errorf("email already registered: %w", ErrConflict)
	case isUniqueViolation(err, "username"):
		return fmt.Errorf("username already taken: %w", ErrConflict)
	}
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email))
}

// GetUserByUsername matches case-insensitively.
func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=? COLLATE NOCASE`, username))
}

func (r Repo) TouchUser(ctx context.Context, tx *sql.Tx, id, ts string) error {
	_, err := r.on(tx).ExecContext(ctx, `UPDATE users SET updated_at=? WHERE id=?`, ts, id)
	return err
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	return r.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY username COLLATE NOCASE`)
}

// SearchUsers finds users whose username contains q, excluding one id.
func (r Repo) SearchUsers(ctx context.Context, q, excludeID string, limit int) ([]domain.User, error) {
	return r.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE username LIKE ? AND id<>? ORDER BY username COLLATE NOCASE LIMIT ?`,
		"%"+q+"%", excludeID, limit)
}

func (r Repo) queryUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// GetState returns the stored document for a user, or ErrNotFound.
func (r Repo) GetState(ctx context.Context, tx *sql.Tx, userID string) (domain.StoredState, error) {
	var st domain.StoredState
	err := r.on(tx).QueryRowContext(ctx, `SELECT user_id,schema_version,state_json,updated_at FROM states WHERE user_id=?`, userID).
		Scan(&st.UserID, &st.SchemaVersion, &st.StateJSON, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return st, ErrNotFound
	}
	return st, err
}

// UpsertState replaces the whole document.
func (r Repo) UpsertState(ctx context.Context, tx *sql.Tx, st domain.StoredState) error {
	_, err := r.on(tx).ExecContext(ctx, `
INSERT INTO states(user_id,schema_version,state_json,updated_at) VALUES (?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET schema_version=excluded.schema_version, state_json=excluded.state_json, updated_at=excluded.updated_at`,
		st.UserID, st.SchemaVersion, st.StateJSON, st.UpdatedAt)
	return err
}

// UserState pairs a username with its stored document.
type UserState struct {
	UserID    string
	Username  string
	StateJSON string
}

// ListStates returns every user that has a stored document.
func (r Repo) ListStates(ctx context.Context) ([]UserState, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT u.id,u.username,s.state_json FROM users u JOIN states s ON s.user_id=u.id ORDER BY u.username COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []UserState
	for rows.Next() {
		var us UserState
		if err := rows.Scan(&us.UserID, &us.Username, &us.StateJSON); err != nil {
			return nil, err
		}
		res = append(res, us)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, userID, evtType string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, userID, evtType)
}

// LatestEventsFrom lists events newest first, strictly older than cursor when set.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, userID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if userID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, userID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(user_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter lists events oldest first with id above cursor.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT id,ts,type,COALESCE(user_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`,
		cursor, limit)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.UserID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
