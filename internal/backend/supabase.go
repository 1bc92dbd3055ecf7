package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/codej/codej/internal/program"
)

func init() {
	Register(TypeSupabase, newSupabase)
}

const (
	supabaseTablePath = "/rest/v1/programs"
	supabaseTopic     = "realtime:public:programs"

	heartbeatInterval = 30 * time.Second
)

// supabaseSetupSQL is surfaced when the programs table has not been
// provisioned. Run it once in the project's SQL editor.
const supabaseSetupSQL = `create table public.programs (
  id text primary key,
  title text not null,
  language text not null,
  description text,
  code text not null,
  url text,
  tags jsonb default '[]'::jsonb,
  created_at timestamptz default now(),
  updated_at timestamptz default now()
);`

// supabaseBackend stores records in a Postgres table behind the Supabase
// REST gateway. Records keep their client-assigned IDs, and the client
// owns both timestamps so last-write-wins reconciliation works across
// devices. This is the only variant with push change notifications.
type supabaseBackend struct {
	projectURL string
	key        string
	client     *http.Client
}

func newSupabase(cfg Config) (Backend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("project URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("an API key is required")
	}
	return &supabaseBackend{
		projectURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		key:        cfg.Token,
		client:     httpClient(cfg),
	}, nil
}

func (s *supabaseBackend) Name() Type {
	return TypeSupabase
}

func (s *supabaseBackend) tableURL(query string) string {
	u := s.projectURL + supabaseTablePath
	if query != "" {
		u += "?" + query
	}
	return u
}

func toSupabaseRow(p program.Program) restProgram {
	row := toRestProgram(p)
	row.ID = p.ID
	row.CreatedAt = p.CreatedAt.UTC().Format(time.RFC3339Nano)
	row.UpdatedAt = p.UpdatedAt.UTC().Format(time.RFC3339Nano)
	return row
}

// isTableMissing recognizes the PostgREST error for an unprovisioned
// table, which arrives as a message body rather than a dedicated status.
func isTableMissing(body []byte) bool {
	text := string(body)
	return strings.Contains(text, "relation") && strings.Contains(text, "does not exist")
}

func (s *supabaseBackend) do(ctx context.Context, op, method, rawURL string, body any) ([]byte, error) {
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
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPost || method == http.MethodPatch {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &Error{Backend: TypeSupabase, Op: op, Err: ErrNetwork, Detail: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Backend: TypeSupabase, Op: op, Err: ErrNetwork, Detail: err.Error()}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	if isTableMissing(respBody) {
		return nil, &Error{Backend: TypeSupabase, Op: op, Err: ErrTableMissing, Detail: supabaseSetupSQL}
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Backend: TypeSupabase, Op: op, Err: ErrAuth}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Backend: TypeSupabase, Op: op, Err: ErrNotFound}
	default:
		return nil, &Error{Backend: TypeSupabase, Op: op, Err: ErrNetwork, Detail: fmt.Sprintf("supabase returned %d: %s", resp.StatusCode, respBody)}
	}
}

// TestConnection probes the programs table with a minimal select. A
// missing table is reported as ErrTableMissing so the caller can surface
// the setup SQL.
func (s *supabaseBackend) TestConnection(ctx context.Context) error {
	_, err := s.do(ctx, "testConnection", http.MethodGet, s.tableURL("select=id&limit=1"), nil)
	return err
}

func (s *supabaseBackend) decodeRows(op string, body []byte) ([]program.Program, error) {
	var rows []restProgram
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &Error{Backend: TypeSupabase, Op: op, Err: ErrNetwork, Detail: "malformed rows: " + err.Error()}
	}
	programs := make([]program.Program, 0, len(rows))
	for _, row := range rows {
		p, err := row.toProgram()
		if err != nil {
			return nil, &Error{Backend: TypeSupabase, Op: op, Err: ErrNetwork, Detail: err.Error()}
		}
		programs = append(programs, p)
	}
	return programs, nil
}

func (s *supabaseBackend) FetchAll(ctx context.Context) ([]program.Program, error) {
	body, err := s.do(ctx, "fetchAll", http.MethodGet, s.tableURL("select=*&order=updated_at.asc"), nil)
	if err != nil {
		return nil, err
	}
	return s.decodeRows("fetchAll", body)
}

func (s *supabaseBackend) Create(ctx context.Context, p program.Program) (string, error) {
	_, err := s.do(ctx, "create", http.MethodPost, s.tableURL(""), toSupabaseRow(p))
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (s *supabaseBackend) Update(ctx context.Context, id string, p program.Program) error {
	query := "id=eq." + url.QueryEscape(id)
	_, err := s.do(ctx, "update", http.MethodPatch, s.tableURL(query), toSupabaseRow(p))
	return err
}

func (s *supabaseBackend) Delete(ctx context.Context, id string) error {
	query := "id=eq." + url.QueryEscape(id)
	_, err := s.do(ctx, "delete", http.MethodDelete, s.tableURL(query), nil)
	return err
}

// ChangedSince counts rows modified after the watermark. Used by the poll
// fallback to avoid a full fetch when nothing changed.
func (s *supabaseBackend) ChangedSince(ctx context.Context, since time.Time) (int, error) {
	query := "select=id&updated_at=gt." + url.QueryEscape(since.UTC().Format(time.RFC3339Nano)) +
		"&order=updated_at.asc"
	body, err := s.do(ctx, "changedSince", http.MethodGet, s.tableURL(query), nil)
	if err != nil {
		return 0, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, &Error{Backend: TypeSupabase, Op: "changedSince", Err: ErrNetwork, Detail: "malformed rows: " + err.Error()}
	}
	return len(rows), nil
}

// phxMessage is the Phoenix channel frame the realtime gateway speaks.
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

func (s *supabaseBackend) realtimeURL() string {
	u := s.projectURL
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/realtime/v1/websocket?apikey=" + url.QueryEscape(s.key) + "&vsn=1.0.0"
}

// Subscribe opens a websocket to the realtime gateway, joins the programs
// table topic, and signals the subscription on every row change. The
// gateway drops idle sockets, so a heartbeat goes out every 30 seconds.
func (s *supabaseBackend) Subscribe(ctx context.Context) (*Subscription, error) {
	// The dial client must not carry a Timeout: it would sever the
	// long-lived socket. Reuse the transport only.
	conn, _, err := websocket.Dial(ctx, s.realtimeURL(), &websocket.DialOptions{
		HTTPClient: &http.Client{Transport: s.client.Transport},
	})
	if err != nil {
		return nil, &Error{Backend: TypeSupabase, Op: "subscribe", Err: ErrNetwork, Detail: err.Error()}
	}

	join := phxMessage{
		Topic:   supabaseTopic,
		Event:   "phx_join",
		Payload: json.RawMessage("{}"),
		Ref:     "1",
	}
	if err := wsjson.Write(ctx, conn, join); err != nil {
		conn.Close(websocket.StatusInternalError, "join failed")
		return nil, &Error{Backend: TypeSupabase, Op: "subscribe", Err: ErrNetwork, Detail: err.Error()}
	}

	sub := NewSubscription(func() {
		conn.Close(websocket.StatusNormalClosure, "unsubscribe")
	})

	go s.heartbeatLoop(ctx, conn, sub)
	go s.readLoop(ctx, conn, sub)

	return sub, nil
}

func (s *supabaseBackend) heartbeatLoop(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ref := 2
	for {
		select {
		case <-ctx.Done():
			sub.Fail(ctx.Err())
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			hb := phxMessage{
				Topic:   "phoenix",
				Event:   "heartbeat",
				Payload: json.RawMessage("{}"),
				Ref:     strconv.Itoa(ref),
			}
			ref++
			if err := wsjson.Write(ctx, conn, hb); err != nil {
				sub.Fail(&Error{Backend: TypeSupabase, Op: "subscribe", Err: ErrNetwork, Detail: "heartbeat: " + err.Error()})
				return
			}
		}
	}
}

func (s *supabaseBackend) readLoop(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	for {
		var msg phxMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			select {
			case <-sub.Done():
			default:
				sub.Fail(&Error{Backend: TypeSupabase, Op: "subscribe", Err: ErrNetwork, Detail: err.Error()})
			}
			return
		}
		switch msg.Event {
		case "INSERT", "UPDATE", "DELETE":
			sub.Signal()
		}
	}
}
