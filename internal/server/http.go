package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/lox/blackjack/internal/game"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UserHeader identifies the caller on HTTP requests. A bearer token in the
// Authorization header takes precedence.
const UserHeader = "X-User-ID"

const maxListLimit = 200

// Handler returns the HTTP routes for the API, websocket and metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/rounds", s.handleStartRound)
	mux.HandleFunc("GET /api/rounds/{id}", s.roundHandler(MessageTypeGetRound))
	mux.HandleFunc("POST /api/rounds/{id}/hit", s.roundHandler(MessageTypeHit))
	mux.HandleFunc("POST /api/rounds/{id}/stand", s.roundHandler(MessageTypeStand))
	mux.HandleFunc("POST /api/rounds/{id}/double-down", s.roundHandler(MessageTypeDoubleDown))

	mux.HandleFunc("GET /api/users/{id}/stats", s.handleStats)
	mux.HandleFunc("GET /api/users/{id}/records", s.handleRecords)
	mux.HandleFunc("GET /api/users/{id}/balance", s.handleBalance)
	mux.HandleFunc("GET /api/users/{id}/ledger", s.handleLedger)
	mux.HandleFunc("GET /api/rankings", s.handleRankings)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWebSocket)

	return mux
}

func (s *Server) handleStartRound(w http.ResponseWriter, r *http.Request) {
	var req StartRoundData
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("decoding body: %w", ErrInvalidRequest))
		return
	}

	userID, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	snap, err := s.gameService.StartRound(r.Context(), userID, req.BetAmount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) roundHandler(action MessageType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.caller(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		roundID := r.PathValue("id")

		var snap game.Snapshot
		switch action {
		case MessageTypeHit:
			snap, err = s.gameService.Hit(r.Context(), userID, roundID)
		case MessageTypeStand:
			snap, err = s.gameService.Stand(r.Context(), userID, roundID)
		case MessageTypeDoubleDown:
			snap, err = s.gameService.DoubleDown(r.Context(), userID, roundID)
		default:
			snap, err = s.gameService.Round(r.Context(), userID, roundID)
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authorizeUser(w, r)
	if !ok {
		return
	}
	stats, err := s.gameService.Stats(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authorizeUser(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	records, err := s.gameService.Records(r.Context(), userID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authorizeUser(w, r)
	if !ok {
		return
	}
	balance, err := s.gameService.Balance(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": balance})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authorizeUser(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entries, err := s.gameService.Ledger(r.Context(), userID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rankings, err := s.gameService.Rankings(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rankings": rankings})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// caller resolves the requesting user from a bearer token or the user header
func (s *Server) caller(r *http.Request) (string, error) {
	credential := r.Header.Get(UserHeader)
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		credential = strings.TrimSpace(token)
	}
	if credential == "" {
		return "", ErrUnauthenticated
	}

	identity, err := s.validator.Validate(r.Context(), credential)
	if err != nil {
		return "", err
	}
	return identity.UserID, nil
}

// authorizeUser only lets callers read their own data
func (s *Server) authorizeUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return "", false
	}
	if target := r.PathValue("id"); target != caller {
		s.writeError(w, fmt.Errorf("user %s: %w", target, ErrForbidden))
		return "", false
	}
	return caller, true
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d: %w", maxListLimit, ErrInvalidRequest)
	}
	return n, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	_, status := ErrorCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: NewErrorData(err)})
}
