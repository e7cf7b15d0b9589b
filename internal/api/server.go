// Package api provides the HTTP surface over the arena.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token and act on behalf of a user id
// carried in the request body.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/talgya/loot-arena/internal/agents"
	"github.com/talgya/loot-arena/internal/engine"
	"github.com/talgya/loot-arena/internal/market"
	"github.com/talgya/loot-arena/internal/tournament"
	"github.com/talgya/loot-arena/internal/wallet"
)

// Server serves the arena state over HTTP.
type Server struct {
	Core  *engine.Core
	Addr  string
	Token string // Bearer token for POST endpoints. Empty = POST disabled.

	limiter *IPLimiter
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start(ratePerSec float64, burst int) {
	s.limiter = NewIPLimiter(ratePerSec, burst)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/arena", s.handleArena)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agent/", s.handleAgentDetail)
	mux.HandleFunc("/api/v1/tournaments", s.handleTournaments)
	mux.HandleFunc("/api/v1/tournament/", s.handleTournamentRoutes)
	mux.HandleFunc("/api/v1/pool", s.handlePool)
	mux.HandleFunc("/api/v1/markets", s.handleMarkets)
	mux.HandleFunc("/api/v1/market/", s.handleMarketDetail)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/history", s.handleHistory)

	// WebSocket event stream.
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// User operations (POST, bearer token).
	mux.HandleFunc("/api/v1/connect", s.userOnly(s.handleConnect))
	mux.HandleFunc("/api/v1/disconnect", s.userOnly(s.handleDisconnect))
	mux.HandleFunc("/api/v1/mint", s.userOnly(s.handleMint))
	mux.HandleFunc("/api/v1/allocate", s.userOnly(s.handleAllocate))
	mux.HandleFunc("/api/v1/withdraw", s.userOnly(s.handleWithdraw))
	mux.HandleFunc("/api/v1/arena/join", s.userOnly(s.handleJoin))
	mux.HandleFunc("/api/v1/arena/leave", s.userOnly(s.handleLeave))
	mux.HandleFunc("/api/v1/arena/step", s.userOnly(s.handleStep))
	mux.HandleFunc("/api/v1/tournament/register", s.userOnly(s.handleRegister))
	mux.HandleFunc("/api/v1/pool/stake", s.userOnly(s.handleStake))
	mux.HandleFunc("/api/v1/pool/unstake", s.userOnly(s.handleUnstake))
	mux.HandleFunc("/api/v1/pool/claim", s.userOnly(s.handleClaim))
	mux.HandleFunc("/api/v1/bet", s.userOnly(s.handleBet))
	mux.HandleFunc("/api/v1/autobet", s.userOnly(s.handleAutoBet))
	mux.HandleFunc("/api/v1/autoregister", s.userOnly(s.handleAutoRegister))

	slog.Info("HTTP API starting", "addr", s.Addr, "auth", s.Token != "")

	go func() {
		handler := corsMiddleware(s.limiter.Middleware(mux))
		if err := http.ListenAndServe(s.Addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins. Set
// CORS_ORIGINS to a comma-separated list; localhost dev servers are always
// allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request carries the configured token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.Token
}

// userOnly wraps a handler to require POST with a valid bearer token.
func (s *Server) userOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.Token == "" {
			http.Error(w, "user endpoints disabled (no token set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// ── Public handlers ──────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var alive, eliminated, players int
	var economy float64
	for _, a := range s.Core.Agents("") {
		economy += a.Balance
		if a.PlayerOwned() {
			players++
		}
		if a.Status == agents.StatusEliminated {
			eliminated++
		} else {
			alive++
		}
	}
	snap := s.Core.ArenaState()
	writeJSON(w, map[string]any{
		"name":              "Loot Arena",
		"round":             snap.Round,
		"phase":             snap.Phase,
		"agents_alive":      alive,
		"agents_eliminated": eliminated,
		"player_agents":     players,
		"total_economy":     economy,
		"pool":              s.Core.Pool.State(),
		"open_markets":      len(s.Core.Book.OpenMarkets()),
	})
}

func (s *Server) handleArena(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Core.ArenaState())
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	type agentSummary struct {
		ID      agents.AgentID `json:"id"`
		Name    string         `json:"name"`
		Owner   string         `json:"owner,omitempty"`
		Status  string         `json:"status"`
		Rarity  string         `json:"rarity"`
		Balance float64        `json:"balance"`
		HP      float64        `json:"hp"`
		Wins    int            `json:"wins"`
		Losses  int            `json:"losses"`
		Kills   int            `json:"kills"`
	}

	result := make([]agentSummary, 0)
	for _, a := range s.Core.Agents(owner) {
		result = append(result, agentSummary{
			ID:      a.ID,
			Name:    a.Name,
			Owner:   a.OwnerID,
			Status:  agents.StatusName(a.Status),
			Rarity:  agents.RarityName(agents.RarityFor(a.Stats.Total())),
			Balance: a.Balance,
			HP:      a.HP,
			Wins:    a.Career.Wins,
			Losses:  a.Career.Losses,
			Kills:   a.Career.Kills,
		})
	}
	writeJSON(w, result)
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 {
		http.Error(w, "missing agent id", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(parts[4], 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	a, ok := s.Core.Agent(agents.AgentID(id))
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, a)
}

func (s *Server) handleTournaments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Core.Tournaments.List())
}

// handleTournamentRoutes dispatches /tournament/:id and /tournament/:id/entries.
func (s *Server) handleTournamentRoutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 || parts[4] == "" {
		http.Error(w, "missing tournament id", http.StatusBadRequest)
		return
	}
	id := parts[4]
	if len(parts) >= 6 && parts[5] == "entries" {
		writeJSON(w, s.Core.Tournaments.Entries(id))
		return
	}
	t, ok := s.Core.Tournaments.Get(id)
	if !ok {
		http.Error(w, "tournament not found", http.StatusNotFound)
		return
	}
	writeJSON(w, t)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Core.Pool.State())
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("open") == "true" {
		writeJSON(w, s.Core.Book.OpenMarkets())
		return
	}
	writeJSON(w, s.Core.Book.List())
}

func (s *Server) handleMarketDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 {
		http.Error(w, "missing market id", http.StatusBadRequest)
		return
	}
	mk, ok := s.Core.Book.Get(parts[4])
	if !ok {
		http.Error(w, "market not found", http.StatusNotFound)
		return
	}
	writeJSON(w, mk)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	writeJSON(w, s.Core.RecentEvents(limit))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Core.Tournaments.History())
}

// ── User operation handlers ──────────────────────────────────────────

type opRequest struct {
	UserID       string         `json:"user_id"`
	AgentID      agents.AgentID `json:"agent_id,omitempty"`
	TournamentID string         `json:"tournament_id,omitempty"`
	MarketID     string         `json:"market_id,omitempty"`
	StakeID      string         `json:"stake_id,omitempty"`
	Amount       float64        `json:"amount,omitempty"`
	Enabled      bool           `json:"enabled,omitempty"`
	MaxStake     float64        `json:"max_stake,omitempty"`
}

func decodeOp(w http.ResponseWriter, r *http.Request) (opRequest, bool) {
	var req opRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return req, false
	}
	if req.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.Core.Connect(req.UserID))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	s.Core.Disconnect(req.UserID)
	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	a, err := s.Core.Mint(req.UserID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, a)
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	if err := s.Core.Allocate(req.UserID, req.AgentID, req.Amount); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	if err := s.Core.Withdraw(req.UserID, req.AgentID, req.Amount); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	if err := s.Core.JoinArena(req.UserID, req.AgentID); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	if err := s.Core.LeaveArena(req.UserID, req.AgentID); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	entry, err := s.Core.ArenaStep()
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, entry)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	entry, err := s.Core.RegisterTournament(req.UserID, req.TournamentID, req.AgentID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, entry)
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	st, err := s.Core.StakePool(req.UserID, req.Amount)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	returned, err := s.Core.UnstakePool(req.UserID, req.StakeID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, map[string]any{"returned": returned})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	claimed, err := s.Core.ClaimRewards(req.UserID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, map[string]any{"claimed": claimed})
}

func (s *Server) handleBet(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	bet, err := s.Core.PlaceBet(req.UserID, req.MarketID, req.AgentID, req.Amount)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, bet)
}

func (s *Server) handleAutoBet(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	if err := s.Core.SetAutoBet(req.UserID, req.Enabled, req.MaxStake); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleAutoRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOp(w, r)
	if !ok {
		return
	}
	if err := s.Core.SetAutoRegister(req.UserID, req.Enabled); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

// writeOpError maps domain errors onto HTTP statuses.
func writeOpError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, wallet.ErrUnknownUser),
		errors.Is(err, engine.ErrUnknownAgent),
		errors.Is(err, tournament.ErrUnknownTournament),
		errors.Is(err, market.ErrUnknownMarket):
		status = http.StatusNotFound
	case errors.Is(err, wallet.ErrNotConnected),
		errors.Is(err, engine.ErrNotAgentOwner),
		errors.Is(err, tournament.ErrNotAgentOwner):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrNotFighting),
		errors.Is(err, market.ErrMarketClosed),
		errors.Is(err, tournament.ErrRegistrationClosed):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}
