package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codej/codej/internal/program"
)

func init() {
	Register(TypeGist, newGist)
}

const (
	defaultGistAPI  = "https://api.github.com"
	gistFileName    = "codej-backup.json"
	gistDescription = "Codej - Code Programs Backup"
)

// gistBackend stores the entire record set as one JSON blob in a single
// private gist. Every mutation is read-entire-blob, modify in memory,
// write-entire-blob; there is no partial remote update.
//
// Known limitation: two devices writing concurrently race on the whole
// blob and the last write wins, losing the other device's change. The
// per-record variants serialize writes by ID; this one cannot.
type gistBackend struct {
	baseURL string
	token   string
	gistID  string
	persist func(id string) error
	client  *http.Client
}

func newGist(cfg Config) (Backend, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("a GitHub personal access token is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGistAPI
	}
	return &gistBackend{
		baseURL: baseURL,
		token:   cfg.Token,
		gistID:  cfg.GistID,
		persist: cfg.PersistGistID,
		client:  httpClient(cfg),
	}, nil
}

func (g *gistBackend) Name() Type {
	return TypeGist
}

// ContainerID returns the gist ID once one has been assigned.
func (g *gistBackend) ContainerID() string {
	return g.gistID
}

// gistPayload is the blob stored inside the gist file.
type gistPayload struct {
	Programs []program.Program `json:"programs"`
	LastSync time.Time         `json:"lastSync"`
	Version  string            `json:"version"`
}

// gistDocument is the subset of the gist API response we read.
type gistDocument struct {
	ID    string `json:"id"`
	Files map[string]struct {
		Content string `json:"content"`
	} `json:"files"`
}

// gistWrite is the request body for creating or updating a gist.
type gistWrite struct {
	Description string                 `json:"description"`
	Public      bool                   `json:"public"`
	Files       map[string]gistContent `json:"files"`
}

type gistContent struct {
	Content string `json:"content"`
}

func (g *gistBackend) do(ctx context.Context, op, method, path string, body any) (*http.Response, error) {
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

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "token "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &Error{Backend: TypeGist, Op: op, Err: ErrNetwork, Detail: err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, &Error{Backend: TypeGist, Op: op, Err: ErrAuth}
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, &Error{Backend: TypeGist, Op: op, Err: ErrNotFound, Detail: "gist " + g.gistID + " not found"}
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, &Error{Backend: TypeGist, Op: op, Err: ErrNetwork, Detail: fmt.Sprintf("GitHub API returned %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		resp.Body.Close()
		return nil, &Error{Backend: TypeGist, Op: op, Err: ErrNetwork, Detail: fmt.Sprintf("GitHub API returned %d", resp.StatusCode)}
	}
	return resp, nil
}

// readSet fetches and decodes the whole blob. A backend with no container
// yet has an empty remote set.
func (g *gistBackend) readSet(ctx context.Context, op string) ([]program.Program, error) {
	if g.gistID == "" {
		return nil, nil
	}

	resp, err := g.do(ctx, op, http.MethodGet, "/gists/"+g.gistID, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var doc gistDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, &Error{Backend: TypeGist, Op: op, Err: ErrNetwork, Detail: "malformed gist response: " + err.Error()}
	}

	file, ok := doc.Files[gistFileName]
	if !ok {
		return nil, &Error{Backend: TypeGist, Op: op, Err: ErrNotFound, Detail: "gist is missing " + gistFileName}
	}

	var payload gistPayload
	if err := json.Unmarshal([]byte(file.Content), &payload); err != nil {
		return nil, &Error{Backend: TypeGist, Op: op, Err: ErrNetwork, Detail: "malformed backup blob: " + err.Error()}
	}
	return payload.Programs, nil
}

// writeSet replaces the whole blob, creating the container on first write.
func (g *gistBackend) writeSet(ctx context.Context, op string, programs []program.Program) error {
	if programs == nil {
		programs = []program.Program{}
	}
	payload := gistPayload{
		Programs: programs,
		LastSync: time.Now().UTC(),
		Version:  program.BackupVersion,
	}
	content, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup blob: %w", err)
	}

	body := gistWrite{
		Description: gistDescription,
		Public:      false,
		Files:       map[string]gistContent{gistFileName: {Content: string(content)}},
	}

	method := http.MethodPost
	path := "/gists"
	if g.gistID != "" {
		method = http.MethodPatch
		path = "/gists/" + g.gistID
	}

	resp, err := g.do(ctx, op, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var doc gistDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return &Error{Backend: TypeGist, Op: op, Err: ErrNetwork, Detail: "malformed gist response: " + err.Error()}
	}

	if g.gistID == "" && doc.ID != "" {
		g.gistID = doc.ID
		if g.persist != nil {
			if err := g.persist(doc.ID); err != nil {
				return fmt.Errorf("failed to persist gist id: %w", err)
			}
		}
	}
	return nil
}

// TestConnection verifies the token by listing the caller's gists.
func (g *gistBackend) TestConnection(ctx context.Context) error {
	resp, err := g.do(ctx, "testConnection", http.MethodGet, "/gists?per_page=1", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (g *gistBackend) FetchAll(ctx context.Context) ([]program.Program, error) {
	return g.readSet(ctx, "fetchAll")
}

func (g *gistBackend) Create(ctx context.Context, p program.Program) (string, error) {
	set, err := g.readSet(ctx, "create")
	if err != nil {
		return "", err
	}
	for i, existing := range set {
		if existing.ID == p.ID {
			set[i] = p
			if err := g.writeSet(ctx, "create", set); err != nil {
				return "", err
			}
			return p.ID, nil
		}
	}
	set = append(set, p)
	if err := g.writeSet(ctx, "create", set); err != nil {
		return "", err
	}
	return p.ID, nil
}

func (g *gistBackend) Update(ctx context.Context, id string, p program.Program) error {
	set, err := g.readSet(ctx, "update")
	if err != nil {
		return err
	}
	for i, existing := range set {
		if existing.ID == id {
			set[i] = p
			return g.writeSet(ctx, "update", set)
		}
	}
	return &Error{Backend: TypeGist, Op: "update", Err: ErrNotFound, Detail: "program " + id + " not in backup"}
}

func (g *gistBackend) Delete(ctx context.Context, id string) error {
	set, err := g.readSet(ctx, "delete")
	if err != nil {
		return err
	}
	for i, existing := range set {
		if existing.ID == id {
			set = append(set[:i], set[i+1:]...)
			return g.writeSet(ctx, "delete", set)
		}
	}
	// Absent from the blob already; nothing to write.
	return nil
}
