// Package apiserver implements the reference HTTP API the REST backend
// variant talks to: a single endpoint handling GET, POST, PUT, and
// DELETE, with every response wrapped in a {success, data|id, error}
// envelope. Records land in a SQLite database.
package apiserver

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/codej/codej/internal/program"
)

// Server serves the programs API.
type Server struct {
	db     *DB
	logger *log.Logger
}

// NewServer creates a server over the given database.
func NewServer(db *DB, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}
	return &Server{db: db, logger: logger}
}

// Handler returns the HTTP handler for the programs endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/programs", s.handlePrograms)
	return mux
}

// envelope is the response wrapper used by every endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// wireProgram is the row shape on the wire: snake_case timestamps, tags
// as a plain JSON array.
type wireProgram struct {
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

func toWire(p program.Program) wireProgram {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return wireProgram{
		ID:          p.ID,
		Title:       p.Title,
		Language:    p.Language,
		Description: p.Description,
		Code:        p.Code,
		URL:         p.URL,
		Tags:        tags,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (w wireProgram) toProgram() program.Program {
	return program.Program{
		ID:          w.ID,
		Title:       w.Title,
		Language:    w.Language,
		Description: w.Description,
		Code:        w.Code,
		URL:         w.URL,
		Tags:        w.Tags,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Printf("Error writing response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, envelope{Success: false, Error: msg})
}

func (s *Server) handlePrograms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleList(w, r)
	case http.MethodPost:
		s.handleCreate(w, r)
	case http.MethodPut:
		s.handleUpdate(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	programs, err := s.db.ListPrograms(r.Context())
	if err != nil {
		s.logger.Printf("Error listing programs: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list programs")
		return
	}
	rows := make([]wireProgram, 0, len(programs))
	for _, p := range programs {
		rows = append(rows, toWire(p))
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: rows})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var row wireProgram
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if row.Title == "" || row.Language == "" || row.Code == "" {
		s.writeError(w, http.StatusBadRequest, "title, language, and code are required")
		return
	}
	id, err := s.db.InsertProgram(r.Context(), row.toProgram())
	if err != nil {
		s.logger.Printf("Error creating program: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create program")
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true, ID: id})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "id query parameter is required")
		return
	}
	var row wireProgram
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ok, err := s.db.UpdateProgram(r.Context(), id, row.toProgram())
	if err != nil {
		s.logger.Printf("Error updating program %s: %v", id, err)
		s.writeError(w, http.StatusInternalServerError, "failed to update program")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "program not found")
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "id query parameter is required")
		return
	}
	ok, err := s.db.DeleteProgram(r.Context(), id)
	if err != nil {
		s.logger.Printf("Error deleting program %s: %v", id, err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete program")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "program not found")
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true})
}
