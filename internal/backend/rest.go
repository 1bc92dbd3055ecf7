package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/codej/codej/internal/program"
)

func init() {
	Register(TypeREST, newREST)
}

// restBackend talks to the plain CRUD API: GET/POST on the base URL,
// PUT/DELETE with an ?id= query parameter, every response wrapped in a
// {success, data|id, error} envelope. The server assigns record IDs on
// create, so callers must adopt the returned ID.
type restBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

func newREST(cfg Config) (Backend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	return &restBackend{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  httpClient(cfg),
	}, nil
}

func (r *restBackend) Name() Type {
	return TypeREST
}

// restEnvelope is the response wrapper used by every endpoint.
type restEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	ID      string          `json:"id,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// restProgram is the wire shape: snake_case timestamps, tags as a plain
// JSON array (the server stores them as embedded JSON text and decodes
// them symmetrically on read).
type restProgram struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Language    string   `json:"language"`
	Description string   `json:"description"`
	Code        string   `json:"code"`
	URL         string   `json:"url"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

func toRestProgram(p program.Program) restProgram {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return restProgram{
		Title:       p.Title,
		Language:    p.Language,
		Description: p.Description,
		Code:        p.Code,
		URL:         p.URL,
		Tags:        tags,
	}
}

func (w restProgram) toProgram() (program.Program, error) {
	createdAt, err := parseWireTime(w.CreatedAt)
	if err != nil {
		return program.Program{}, fmt.Errorf("program %s: bad created_at: %w", w.ID, err)
	}
	updatedAt, err := parseWireTime(w.UpdatedAt)
	if err != nil {
		return program.Program{}, fmt.Errorf("program %s: bad updated_at: %w", w.ID, err)
	}
	return program.Program{
		ID:          w.ID,
		Title:       w.Title,
		Language:    w.Language,
		Description: w.Description,
		Code:        w.Code,
		URL:         w.URL,
		Tags:        w.Tags,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// parseWireTime accepts the timestamp layouts backends emit: RFC 3339
// with or without fractional seconds, and the bare SQL datetime form.
func parseWireTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02 15:04:05",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func (r *restBackend) do(ctx context.Context, op, method, rawURL string, body any) (*restEnvelope, error) {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &Error{Backend: TypeREST, Op: op, Err: ErrNetwork, Detail: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Backend: TypeREST, Op: op, Err: ErrAuth}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Backend: TypeREST, Op: op, Err: ErrNotFound}
	case resp.StatusCode >= 500:
		return nil, &Error{Backend: TypeREST, Op: op, Err: ErrNetwork, Detail: fmt.Sprintf("server returned %d", resp.StatusCode)}
	}

	var env restEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &Error{Backend: TypeREST, Op: op, Err: ErrNetwork, Detail: "malformed response: " + err.Error()}
	}
	if !env.Success {
		return nil, &Error{Backend: TypeREST, Op: op, Err: ErrNetwork, Detail: env.Error}
	}
	return &env, nil
}

func (r *restBackend) idURL(id string) string {
	return r.baseURL + "?id=" + url.QueryEscape(id)
}

func (r *restBackend) TestConnection(ctx context.Context) error {
	_, err := r.do(ctx, "testConnection", http.MethodGet, r.baseURL, nil)
	return err
}

func (r *restBackend) FetchAll(ctx context.Context) ([]program.Program, error) {
	env, err := r.do(ctx, "fetchAll", http.MethodGet, r.baseURL, nil)
	if err != nil {
		return nil, err
	}

	var rows []restProgram
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, &Error{Backend: TypeREST, Op: "fetchAll", Err: ErrNetwork, Detail: "malformed data: " + err.Error()}
	}

	programs := make([]program.Program, 0, len(rows))
	for _, row := range rows {
		p, err := row.toProgram()
		if err != nil {
			return nil, &Error{Backend: TypeREST, Op: "fetchAll", Err: ErrNetwork, Detail: err.Error()}
		}
		programs = append(programs, p)
	}
	return programs, nil
}

func (r *restBackend) Create(ctx context.Context, p program.Program) (string, error) {
	env, err := r.do(ctx, "create", http.MethodPost, r.baseURL, toRestProgram(p))
	if err != nil {
		return "", err
	}
	if env.ID == "" {
		return "", &Error{Backend: TypeREST, Op: "create", Err: ErrNetwork, Detail: "server did not return an id"}
	}
	return env.ID, nil
}

func (r *restBackend) Update(ctx context.Context, id string, p program.Program) error {
	_, err := r.do(ctx, "update", http.MethodPut, r.idURL(id), toRestProgram(p))
	return err
}

func (r *restBackend) Delete(ctx context.Context, id string) error {
	_, err := r.do(ctx, "delete", http.MethodDelete, r.idURL(id), nil)
	return err
}
