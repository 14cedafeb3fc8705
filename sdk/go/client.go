package skillroutinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal SkillRoutine HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://127.0.0.1:8080/api.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at,omitempty"`
}

type Session struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Skill struct {
	Level int `json:"level"`
	XP    int `json:"xp"`
}

type Quest struct {
	ID       string `json:"id"`
	Skill    string `json:"skill"`
	Kind     string `json:"kind"`
	Target   int    `json:"target"`
	Progress int    `json:"progress"`
	Done     bool   `json:"done"`
	Text     string `json:"text"`
}

type LogEntry struct {
	At            int64          `json:"at"`
	Text          string         `json:"text"`
	Activity      string         `json:"activity"`
	Skill         string         `json:"skill"`
	Minutes       int            `json:"minutes"`
	Difficulty    string         `json:"difficulty"`
	NoDistraction bool           `json:"noDistraction"`
	Gained        int            `json:"gained"`
	GainedBySkill map[string]int `json:"gainedBySkill"`
}

type State struct {
	SchemaVersion int                `json:"schemaVersion"`
	CreatedAt     int64              `json:"createdAt"`
	Skills        map[string]Skill   `json:"skills"`
	DailyEarned   map[string]int     `json:"dailyEarned"`
	QuestsByDay   map[string][]Quest `json:"questsByDay"`
	Log           []LogEntry         `json:"log"`
	Achievements  []string           `json:"achievements"`
}

type Title struct {
	Title     string `json:"title"`
	Min       int    `json:"min"`
	HasNext   bool   `json:"hasNext"`
	NextTitle string `json:"nextTitle"`
	NextMin   int    `json:"nextMin"`
}

// StateView is a state with its derived overall level and title.
type StateView struct {
	State        State  `json:"state"`
	OverallLevel int    `json:"overallLevel"`
	Title        Title  `json:"title"`
	Today        string `json:"today"`
	EarnedToday  int    `json:"earnedToday"`
}

// Activity is the input of LogActivity.
type Activity struct {
	Activity      string `json:"activity"`
	Minutes       int    `json:"minutes,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
	NoDistraction bool   `json:"noDistraction,omitempty"`
}

type Outcome struct {
	Entry           LogEntry       `json:"entry"`
	BaseXP          int            `json:"baseXp"`
	LevelUps        map[string]int `json:"levelUps"`
	CompletedQuests []string       `json:"completedQuests"`
	Unlocked        []string       `json:"unlocked"`
	EarnedToday     int            `json:"earnedToday"`
	Known           bool           `json:"known"`
}

type ActivityResult struct {
	Outcome Outcome   `json:"outcome"`
	View    StateView `json:"view"`
}

type Profile struct {
	Username      string         `json:"username"`
	OverallLevel  int            `json:"overallLevel"`
	Title         Title          `json:"title"`
	TopSkill      string         `json:"topSkill"`
	TopSkillLevel int            `json:"topSkillLevel"`
	Skills        map[string]int `json:"skills"`
}

type FriendRequest struct {
	ID           string `json:"id"`
	FromUserID   string `json:"from_user_id"`
	ToUserID     string `json:"to_user_id"`
	FromUsername string `json:"from_username"`
	Status       string `json:"status"`
}

type FriendRequestResult struct {
	Status  string        `json:"status"`
	Request FriendRequest `json:"request"`
}

type Friend struct {
	Username     string `json:"username"`
	OverallLevel int    `json:"overallLevel"`
	Title        string `json:"title"`
}

type RankEntry struct {
	Username string `json:"username"`
	Level    int    `json:"level"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type APIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Register creates an account and keeps its token for later calls.
func (c *Client) Register(ctx context.Context, email, username, password string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "auth/register", map[string]any{
		"email":    email,
		"username": username,
		"password": password,
	}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Login signs in and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"email": email, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) State(ctx context.Context) (StateView, error) {
	var resp StateView
	err := c.do(ctx, http.MethodGet, "state", nil, &resp)
	return resp, err
}

// ReplaceState uploads a whole state document.
func (c *Client) ReplaceState(ctx context.Context, state any) (StateView, error) {
	var resp StateView
	err := c.do(ctx, http.MethodPut, "state", state, &resp)
	return resp, err
}

func (c *Client) ResetState(ctx context.Context) (StateView, error) {
	var resp StateView
	err := c.do(ctx, http.MethodPost, "state/reset", nil, &resp)
	return resp, err
}

func (c *Client) LogActivity(ctx context.Context, a Activity) (ActivityResult, error) {
	var resp ActivityResult
	err := c.do(ctx, http.MethodPost, "activities", a, &resp)
	return resp, err
}

func (c *Client) GenerateQuests(ctx context.Context) ([]Quest, error) {
	var resp struct {
		Quests []Quest `json:"quests"`
	}
	err := c.do(ctx, http.MethodPost, "quests/generate", nil, &resp)
	return resp.Quests, err
}

func (c *Client) Quests(ctx context.Context) ([]Quest, error) {
	var resp struct {
		Quests []Quest `json:"quests"`
	}
	err := c.do(ctx, http.MethodGet, "quests", nil, &resp)
	return resp.Quests, err
}

func (c *Client) SearchUsers(ctx context.Context, q string) ([]User, error) {
	var resp struct {
		Users []User `json:"users"`
	}
	err := c.do(ctx, http.MethodGet, "users/search?q="+url.QueryEscape(q), nil, &resp)
	return resp.Users, err
}

func (c *Client) Profile(ctx context.Context, username string) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodGet, "users/public?username="+url.QueryEscape(username), nil, &resp)
	return resp, err
}

func (c *Client) RequestFriend(ctx context.Context, username string) (FriendRequestResult, error) {
	var resp FriendRequestResult
	err := c.do(ctx, http.MethodPost, "friends/request", map[string]any{"username": username}, &resp)
	return resp, err
}

func (c *Client) FriendRequests(ctx context.Context) ([]FriendRequest, error) {
	var resp struct {
		Requests []FriendRequest `json:"requests"`
	}
	err := c.do(ctx, http.MethodGet, "friends/requests", nil, &resp)
	return resp.Requests, err
}

// RespondFriendRequest accepts or rejects; action is "accept" or "reject".
func (c *Client) RespondFriendRequest(ctx context.Context, requestID, action string) (FriendRequest, error) {
	var resp FriendRequest
	err := c.do(ctx, http.MethodPost, "friends/respond", map[string]any{"request_id": requestID, "action": action}, &resp)
	return resp, err
}

func (c *Client) Friends(ctx context.Context) ([]Friend, error) {
	var resp struct {
		Friends []Friend `json:"friends"`
	}
	err := c.do(ctx, http.MethodGet, "friends", nil, &resp)
	return resp.Friends, err
}

func (c *Client) RankSkills(ctx context.Context) (map[string][]RankEntry, error) {
	var resp struct {
		Skills map[string][]RankEntry `json:"skills"`
	}
	err := c.do(ctx, http.MethodGet, "rank/skills", nil, &resp)
	return resp.Skills, err
}

// EventsPage returns a page of the caller's events, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateAPIKey mints a personal key. The plain key is only returned here.
func (c *Client) CreateAPIKey(ctx context.Context, name string) (APIKey, error) {
	var resp APIKey
	err := c.do(ctx, http.MethodPost, "me/api-keys", map[string]any{"name": name}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code, apiErr.Message = envelope.Error.Code, envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
