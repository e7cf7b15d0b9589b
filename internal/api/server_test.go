package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/loot-arena/internal/arena"
	"github.com/talgya/loot-arena/internal/engine"
	"github.com/talgya/loot-arena/internal/market"
	"github.com/talgya/loot-arena/internal/tournament"
	"github.com/talgya/loot-arena/internal/wallet"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := engine.Config{
		Seed:             9,
		HouseAgents:      8,
		SkirmishInterval: time.Second,
		ReportInterval:   time.Minute,
		Arena:            arena.DefaultSchedulerConfig(),
	}
	return &Server{Core: engine.New(cfg, nil), Addr: ":0", Token: "test-token"}
}

func postJSON(t *testing.T, h http.HandlerFunc, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/op", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestUserOnly_AuthGuards(t *testing.T) {
	s := newTestServer(t)
	h := s.userOnly(s.handleConnect)

	// GET is refused outright.
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/v1/connect", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = postJSON(t, h, "", `{"user_id":"alice"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, h, "wrong-token", `{"user_id":"alice"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, h, "test-token", `{"user_id":"alice"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var u wallet.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "alice", u.ID)
	assert.Equal(t, float64(wallet.StartingBalance), u.Balance)
}

func TestUserOnly_DisabledWithoutToken(t *testing.T) {
	s := newTestServer(t)
	s.Token = ""
	rec := postJSON(t, s.userOnly(s.handleConnect), "", `{"user_id":"alice"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDecodeOp_RequiresUserID(t *testing.T) {
	s := newTestServer(t)
	h := s.userOnly(s.handleMint)

	rec := postJSON(t, h, "test-token", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h, "test-token", `{"amount":50}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(8), body["agents_alive"])
	assert.Equal(t, float64(0), body["player_agents"])
	assert.Equal(t, "waiting", body["phase"])
	assert.Greater(t, body["total_economy"], 0.0)
}

func TestHandleAgents_OwnerFilter(t *testing.T) {
	s := newTestServer(t)
	s.Core.Connect("alice")
	_, err := s.Core.Mint("alice")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.handleAgents(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agents?owner=alice", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0]["owner"])
	assert.Equal(t, "idle", list[0]["status"])

	rec = httptest.NewRecorder()
	s.handleAgents(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 9, "house roster plus the minted agent")
}

func TestHandleAgentDetail(t *testing.T) {
	s := newTestServer(t)
	s.Core.Connect("alice")
	a, err := s.Core.Mint("alice")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.handleAgentDetail(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agent/999999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.handleAgentDetail(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agent/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.handleAgentDetail(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agent/"+strconv.FormatUint(uint64(a.ID), 10), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteOpError_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{wallet.ErrUnknownUser, http.StatusNotFound},
		{engine.ErrUnknownAgent, http.StatusNotFound},
		{tournament.ErrUnknownTournament, http.StatusNotFound},
		{market.ErrUnknownMarket, http.StatusNotFound},
		{wallet.ErrNotConnected, http.StatusForbidden},
		{engine.ErrNotAgentOwner, http.StatusForbidden},
		{engine.ErrNotFighting, http.StatusConflict},
		{market.ErrMarketClosed, http.StatusConflict},
		{tournament.ErrRegistrationClosed, http.StatusConflict},
		{wallet.ErrInsufficientBalance, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeOpError(rec, tc.err)
		assert.Equal(t, tc.code, rec.Code, "error %v", tc.err)
	}
}
