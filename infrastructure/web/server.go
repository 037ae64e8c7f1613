// Package web is the HTTP side surface of the broker: guest token
// issuance, explicit room creation, message search and operational
// endpoints. The socket endpoint itself is mounted on the same mux.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/process"

	"darkroom/auth"
	"darkroom/contract"
	"darkroom/domain"
	"darkroom/observability"
	"darkroom/runtime"
)

var validate = validator.New()

type Server struct {
	log      *slog.Logger
	registry *runtime.Registry
	conns    *runtime.Connections
	health   *observability.Health
	index    contract.IIndex
	secret   []byte
	tokenTTL time.Duration
}

func NewServer(log *slog.Logger, registry *runtime.Registry, conns *runtime.Connections,
	health *observability.Health, index contract.IIndex, secret []byte, tokenTTL time.Duration) *Server {
	return &Server{
		log:      log,
		registry: registry,
		conns:    conns,
		health:   health,
		index:    index,
		secret:   secret,
		tokenTTL: tokenTTL,
	}
}

// Routes mounts every HTTP endpoint, including the given socket handler
// at /ws.
func (s *Server) Routes(socket http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", socket)
	mux.HandleFunc("POST /token", s.handleToken)
	mux.HandleFunc("POST /rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /rooms/{room}/search", s.handleSearch)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /stats", s.handleStats)
	return mux
}

type tokenRequest struct {
	Alias string `json:"alias" validate:"required,min=1,max=32"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleToken issues a short-lived guest token for the given alias.
// There is no account system; the generated user id only ties frames of
// the same session together.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decode(w, r, &req) {
		return
	}

	userID := uuid.NewString()
	token, err := auth.GenerateToken(s.secret, userID, req.Alias, s.tokenTTL)
	if err != nil {
		s.log.Error("Token generation failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	s.writeJSON(w, http.StatusCreated, tokenResponse{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(s.tokenTTL),
	})
}

type createRoomRequest struct {
	Room        string `json:"room" validate:"required,min=1,max=64"`
	Name        string `json:"name" validate:"omitempty,max=128"`
	Description string `json:"description" validate:"omitempty,max=512"`
	Passcode    string `json:"passcode" validate:"omitempty,min=4,max=128"`
}

type createRoomResponse struct {
	Room        domain.RoomID `json:"room"`
	Name        string        `json:"name,omitempty"`
	Description string        `json:"description,omitempty"`
	Private     bool          `json:"private"`
}

// handleCreateRoom registers room metadata ahead of the first join. A
// passcode makes the room private: joins must present it from then on.
// Creating an already known room merges metadata, explicit values win.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !s.decode(w, r, &req) {
		return
	}

	meta := domain.Metadata{Name: req.Name, Description: req.Description}
	if req.Passcode != "" {
		hash, err := auth.HashPasscode(req.Passcode)
		if err != nil {
			s.log.Error("Passcode hashing failed", "error", err)
			s.writeError(w, http.StatusInternalServerError, "internal")
			return
		}
		meta.PasscodeHash = hash
	}

	merged := s.registry.EnsureRoom(domain.RoomID(req.Room), meta)
	s.writeJSON(w, http.StatusCreated, createRoomResponse{
		Room:        domain.RoomID(req.Room),
		Name:        merged.Name,
		Description: merged.Description,
		Private:     merged.PasscodeHash != "",
	})
}

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// handleSearch runs a full-text query over the room's persisted messages.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	roomID := domain.RoomID(r.PathValue("room"))
	terms := r.URL.Query().Get("q")
	if terms == "" {
		s.writeError(w, http.StatusBadRequest, "missing_query")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "bad_limit")
			return
		}
		if n > 0 && n <= maxSearchLimit {
			limit = n
		}
	}

	messages, err := s.index.Search(r.Context(), roomID, terms, limit)
	if err != nil {
		s.log.Error("Search failed", "room", roomID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"room": roomID, "messages": messages})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	state := "ok"
	if s.health.Degraded() {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	s.writeJSON(w, status, map[string]any{"status": state, "counters": s.health.Snapshot()})
}

type processStats struct {
	Pid        int     `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
}

// handleStats exposes a snapshot of the registry, the delivery counters
// and the process itself.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"rooms":       s.registry.Stats(),
		"connections": s.conns.Count(),
		"counters":    s.health.Snapshot(),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		proc := processStats{Pid: os.Getpid()}
		if mem, err := p.MemoryInfo(); err == nil {
			proc.RSSBytes = mem.RSS
		}
		if cpu, err := p.CPUPercent(); err == nil {
			proc.CPUPercent = cpu
		}
		stats["process"] = proc
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// decode reads and validates a JSON request body, replying 400 itself
// when the payload is unusable.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed_body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Response encoding failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, reason string) {
	s.writeJSON(w, status, map[string]string{"error": reason})
}
