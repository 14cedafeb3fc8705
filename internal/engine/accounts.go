package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skillroutine/internal/domain"
	"skillroutine/internal/engine/auth"
	"skillroutine/internal/events"
	"skillroutine/internal/repo"
)

type RegisterOptions struct {
	Email    string
	Username string
	Password string
}

// Session is a signed-in user with its bearer token.
type Session struct {
	User      domain.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Register creates an account together with its initial progress state.
func (e Engine) Register(ctx context.Context, opts RegisterOptions) (domain.User, error) {
	email := auth.NormalizeEmail(opts.Email)
	username := auth.NormalizeUsername(opts.Username)
	if err := auth.ValidateRegistration(email, username, opts.Password); err != nil {
		return domain.User{}, err
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return domain.User{}, err
	}
	ts := e.timestamp()
	u := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.saveState(ctx, tx, u.ID, e.Progress().Reset()); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, events.UserRegistered, u.ID, "user", u.ID, u.ID, events.EventPayload{"username": u.Username}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	e.logger().Info("user registered", zap.String("user", u.ID), zap.String("username", u.Username))
	return u, nil
}

// Login checks credentials and issues a session token.
func (e Engine) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := e.Repo.GetUserByEmail(ctx, auth.NormalizeEmail(email))
	if errors.Is(err, repo.ErrNotFound) {
		return Session{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return Session{}, err
	}
	return e.IssueSession(u)
}

func (e Engine) IssueSession(u domain.User) (Session, error) {
	tokens := e.Tokens
	if tokens.Now == nil {
		tokens.Now = e.now
	}
	token, exp, err := tokens.Issue(u.ID, u.Username)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Token: token, ExpiresAt: exp}, nil
}

// Authenticate resolves a bearer token to its user.
func (e Engine) Authenticate(ctx context.Context, token string) (domain.User, error) {
	tokens := e.Tokens
	if tokens.Now == nil {
		tokens.Now = e.now
	}
	claims, err := tokens.Verify(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("verify token: %w", err)
	}
	return e.Repo.GetUser(ctx, claims.Subject)
}

// AuthenticateAPIKey resolves a personal API key to its user.
func (e Engine) AuthenticateAPIKey(ctx context.Context, key string) (domain.User, error) {
	k, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, k.UserID)
}

func (e Engine) GetUser(ctx context.Context, id string) (domain.User, error) {
	return e.Repo.GetUser(ctx, id)
}

func (e Engine) ListUsers(ctx context.Context) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx)
}

// ResolveUser finds a user by id, username or email.
func (e Engine) ResolveUser(ctx context.Context, ref string) (domain.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.User{}, validationError("user", "is required")
	}
	if u, err := e.Repo.GetUser(ctx, ref); err == nil || !errors.Is(err, repo.ErrNotFound) {
		return u, err
	}
	if strings.Contains(ref, "@") {
		return e.Repo.GetUserByEmail(ctx, auth.NormalizeEmail(ref))
	}
	return e.Repo.GetUserByUsername(ctx, ref)
}

// CreatedAPIKey carries the plain secret, which is shown only once.
type CreatedAPIKey struct {
	domain.APIKey
	Key string `json:"key"`
}

func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (CreatedAPIKey, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return CreatedAPIKey{}, err
	}
	secret := "sr_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CreatedAPIKey{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return CreatedAPIKey{}, err
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyCreated, userID, "api_key", key.ID, userID, events.EventPayload{"name": key.Name}); err != nil {
		return CreatedAPIKey{}, err
	}
	if err := tx.Commit(); err != nil {
		return CreatedAPIKey{}, err
	}
	return CreatedAPIKey{APIKey: key, Key: secret}, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, userID)
}

func (e Engine) DeleteAPIKey(ctx context.Context, userID, id string) error {
	return e.Repo.DeleteAPIKey(ctx, userID, id)
}
