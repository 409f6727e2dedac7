// Package api exposes the daemon's HTTP surface: read-only status
// endpoints plus the single message endpoint the CLI front-end posts
// operator input to.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/mvold/hazel/internal/mode"
	"github.com/mvold/hazel/internal/models"
	"github.com/mvold/hazel/internal/scheduler"
	"github.com/mvold/hazel/internal/session"
	"github.com/mvold/hazel/internal/store"
)

// Version is the reported daemon version.
const Version = "0.2.0"

// Server provides the HTTP API for Hazel.
type Server struct {
	store   *store.Store
	modes   *mode.Manager
	sched   *scheduler.Scheduler
	session *session.Session
	addr    string
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(st *store.Store, modes *mode.Manager, sched *scheduler.Scheduler, sess *session.Session, addr string) *Server {
	return &Server{
		store:   st,
		modes:   modes,
		sched:   sched,
		session: sess,
		addr:    addr,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/tasks", s.handleTasks)
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/message", s.handleMessage)

	// No write timeout: /message blocks for the full harness run.
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	log.Printf("Starting Hazel daemon on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// HealthResponse is the health payload.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		health.OK = false
		health.DB = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, health)
}

// StatusResponse is the daemon status payload.
type StatusResponse struct {
	Mode        models.ModeState        `json:"mode"`
	Transitions []models.ModeTransition `json:"transitions"`
	Jobs        int                     `json:"jobs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	transitions := s.modes.Transitions()
	if len(transitions) > 20 {
		transitions = transitions[len(transitions)-20:]
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Mode:        s.modes.Current(),
		Transitions: transitions,
		Jobs:        len(s.sched.List()),
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		tasks, err := s.store.ListTasksByStatus(models.TaskStatus(status))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(tasks))
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	tasks, err := s.store.ListRecentTasks(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(tasks))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jobs := s.sched.List()
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// MessageRequest is an inbound operator message.
type MessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse is the session's reply.
type MessageResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reply, err := s.session.Handle(r.Context(), req.Text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Reply: reply})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to encode response: %v", err)
	}
}

func orEmpty(tasks []models.Task) []models.Task {
	if tasks == nil {
		return []models.Task{}
	}
	return tasks
}
