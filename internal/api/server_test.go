package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/mot-engine/internal/catalog"
	"github.com/terra-clan/mot-engine/internal/config"
	"github.com/terra-clan/mot-engine/internal/game"
	"github.com/terra-clan/mot-engine/internal/live"
	"github.com/terra-clan/mot-engine/internal/metrics"
	"github.com/terra-clan/mot-engine/internal/models"
	"github.com/terra-clan/mot-engine/internal/pathstore"
	"github.com/terra-clan/mot-engine/internal/services"
	"github.com/terra-clan/mot-engine/internal/storage"
)

const (
	adminKey  = "admin-key-0123456789"
	viewerKey = "viewer-key-0123456789"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func newTestServer(t *testing.T, health *services.Registry) *Server {
	t.Helper()
	ctx := context.Background()

	loader := catalog.NewLoader()
	if err := loader.LoadFromDir(filepath.Join("..", "..", "content")); err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}

	repo, err := storage.NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "mot.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if err := repo.EnsureClient(ctx, "admin", adminKey, []string{models.PermAll}); err != nil {
		t.Fatalf("EnsureClient failed: %v", err)
	}
	if err := repo.EnsureClient(ctx, "viewer", viewerKey, []string{models.PermSessionsRead}); err != nil {
		t.Fatalf("EnsureClient failed: %v", err)
	}

	m, err := metrics.New(nil)
	if err != nil {
		t.Fatalf("metrics.New failed: %v", err)
	}

	hub := live.NewHub()
	manager := game.NewManager(loader, pathstore.NewMemoryStore(), repo, hub, m, game.Options{
		DefaultEdition: "leader",
		SessionTTL:     time.Hour,
	})
	hub.OnPublish(func(string) { manager.InvalidateBoards() })

	if health == nil {
		health = services.NewRegistry(time.Second)
		health.Register("database", services.CheckerFunc(repo.Ping))
	}

	return NewServer(config.ServerConfig{AllowedOrigins: []string{"*"}}, manager, hub, health, repo, m)
}

func doJSON(t *testing.T, s *Server, method, path, key string, body interface{}) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid envelope %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func decodeData(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("failed to decode data %s: %v", env.Data, err)
	}
}

func expectError(t *testing.T, status int, env envelope, wantStatus int, wantCode string) {
	t.Helper()
	if status != wantStatus || env.Success || env.Error == nil || env.Error.Code != wantCode {
		t.Errorf("expected %d %s, got %d %+v", wantStatus, wantCode, status, env.Error)
	}
}

func createSession(t *testing.T, s *Server) *models.GameSession {
	t.Helper()
	status, env := doJSON(t, s, http.MethodPost, "/api/v1/sessions", adminKey, models.CreateSessionRequest{})
	if status != http.StatusCreated {
		t.Fatalf("create session: expected 201, got %d %+v", status, env.Error)
	}
	var session models.GameSession
	decodeData(t, env, &session)
	return &session
}

func joinSession(t *testing.T, s *Server, code, username string) *models.JoinResponse {
	t.Helper()
	status, env := doJSON(t, s, http.MethodPost, "/api/v1/join/"+code, "", models.JoinRequest{Username: username})
	if status != http.StatusCreated && status != http.StatusOK {
		t.Fatalf("join: unexpected status %d %+v", status, env.Error)
	}
	var join models.JoinResponse
	decodeData(t, env, &join)
	return &join
}

var optimal = []models.StepSubmission{
	{Choice: "elena"},
	{Choices: []string{"fraud_integrity_detection", "smart_game_design_assistant", "player_journey_optimizer"}},
	{ByCategory: map[string]string{
		"people_processes":      "hands_on_ai_bootcamp",
		"platform_partnerships": "ai_data_foundations",
		"policies_governance":   "responsible_ai_framework",
	}},
	{Choices: []string{"adoption_playbook", "industrial_data_pipelines", "local_ai_risk_management", "business_ai_champions"}},
	{Choice: "full_speed_on_people"},
}

func playOptimal(t *testing.T, s *Server, token string) models.StepOutcome {
	t.Helper()
	var outcome models.StepOutcome
	for i, sub := range optimal {
		path := "/api/v1/play/" + token + "/steps/" + models.AllSteps[i].String()
		status, env := doJSON(t, s, http.MethodPost, path, "", sub)
		if status != http.StatusOK {
			t.Fatalf("step %d: expected 200, got %d %+v", i+1, status, env.Error)
		}
		decodeData(t, env, &outcome)
	}
	return outcome
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil)

	status, env := doJSON(t, s, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK || !env.Success {
		t.Errorf("health: expected 200, got %d", status)
	}

	status, _ = doJSON(t, s, http.MethodGet, "/ready", "", nil)
	if status != http.StatusOK {
		t.Errorf("ready: expected 200, got %d", status)
	}

	failing := services.NewRegistry(time.Second)
	failing.Register("paths", services.CheckerFunc(func(context.Context) error {
		return errors.New("connection refused")
	}))
	s = newTestServer(t, failing)
	status, env = doJSON(t, s, http.MethodGet, "/ready", "", nil)
	expectError(t, status, env, http.StatusServiceUnavailable, "not_ready")
}

func TestEditionRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	status, env := doJSON(t, s, http.MethodGet, "/api/v1/editions", "", nil)
	if status != http.StatusOK {
		t.Fatalf("list editions: expected 200, got %d", status)
	}
	var list struct {
		Editions []models.EditionSummary `json:"editions"`
		Total    int                     `json:"total"`
	}
	decodeData(t, env, &list)
	if list.Total == 0 || list.Editions[0].ID == "" {
		t.Errorf("unexpected editions: %+v", list)
	}

	status, env = doJSON(t, s, http.MethodGet, "/api/v1/editions/leader", "", nil)
	if status != http.StatusOK {
		t.Fatalf("get edition: expected 200, got %d", status)
	}
	var detail models.EditionDetail
	decodeData(t, env, &detail)
	if len(detail.Steps) != models.StepCount {
		t.Errorf("expected %d steps, got %d", models.StepCount, len(detail.Steps))
	}

	status, env = doJSON(t, s, http.MethodGet, "/api/v1/editions/leader/steps/3", "", nil)
	if status != http.StatusOK {
		t.Fatalf("get step: expected 200, got %d", status)
	}
	var view models.StepView
	decodeData(t, env, &view)
	if view.Step != models.Step3 || len(view.Categories) != 3 {
		t.Errorf("unexpected step 3 view: %+v", view)
	}

	status, env = doJSON(t, s, http.MethodGet, "/api/v1/editions/nope", "", nil)
	expectError(t, status, env, http.StatusNotFound, "edition_not_found")

	status, env = doJSON(t, s, http.MethodGet, "/api/v1/editions/leader/steps/9", "", nil)
	expectError(t, status, env, http.StatusBadRequest, "invalid_step")
}

func TestFacilitatorAuth(t *testing.T) {
	s := newTestServer(t, nil)

	status, env := doJSON(t, s, http.MethodPost, "/api/v1/sessions", "", nil)
	expectError(t, status, env, http.StatusUnauthorized, "missing_api_key")

	status, env = doJSON(t, s, http.MethodPost, "/api/v1/sessions", "wrong-key-0123456789", nil)
	expectError(t, status, env, http.StatusUnauthorized, "invalid_api_key")

	status, env = doJSON(t, s, http.MethodPost, "/api/v1/sessions", viewerKey, nil)
	expectError(t, status, env, http.StatusForbidden, "permission_denied")

	status, _ = doJSON(t, s, http.MethodGet, "/api/v1/sessions", viewerKey, nil)
	if status != http.StatusOK {
		t.Errorf("viewer should list sessions, got %d", status)
	}

	status, env = doJSON(t, s, http.MethodGet, "/api/v1/leaderboard", viewerKey, nil)
	expectError(t, status, env, http.StatusForbidden, "permission_denied")
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	session := createSession(t, s)

	if session.Edition != "leader" || session.Status != models.SessionOpen || session.CreatedBy != "admin" {
		t.Errorf("unexpected session: %+v", session)
	}

	status, env := doJSON(t, s, http.MethodGet, "/api/v1/sessions/"+strings.ToLower(session.Code), adminKey, nil)
	if status != http.StatusOK {
		t.Errorf("get session: expected 200, got %d", status)
	}

	status, env = doJSON(t, s, http.MethodGet, "/api/v1/sessions?status=closed", adminKey, nil)
	var list struct {
		Sessions []*models.GameSession `json:"sessions"`
		Total    int                   `json:"total"`
	}
	decodeData(t, env, &list)
	if status != http.StatusOK || list.Total != 0 {
		t.Errorf("expected no closed sessions, got %d %+v", status, list)
	}

	status, env = doJSON(t, s, http.MethodGet, "/api/v1/sessions?status=bogus", adminKey, nil)
	expectError(t, status, env, http.StatusBadRequest, "validation_error")

	status, env = doJSON(t, s, http.MethodPost, "/api/v1/sessions", adminKey, map[string]int{"ttl": -5})
	expectError(t, status, env, http.StatusBadRequest, "validation_error")

	status, env = doJSON(t, s, http.MethodPost, "/api/v1/sessions", adminKey, models.CreateSessionRequest{Edition: "nope"})
	expectError(t, status, env, http.StatusNotFound, "edition_not_found")

	status, _ = doJSON(t, s, http.MethodDelete, "/api/v1/sessions/"+session.Code, adminKey, nil)
	if status != http.StatusOK {
		t.Fatalf("close session: expected 200, got %d", status)
	}

	status, env = doJSON(t, s, http.MethodPost, "/api/v1/join/"+session.Code, "", models.JoinRequest{Username: "late"})
	expectError(t, status, env, http.StatusConflict, "session_closed")

	status, env = doJSON(t, s, http.MethodGet, "/api/v1/sessions/NOPE00", adminKey, nil)
	expectError(t, status, env, http.StatusNotFound, "session_not_found")
}

func TestPlayThrough(t *testing.T) {
	s := newTestServer(t, nil)
	session := createSession(t, s)

	join := joinSession(t, s, session.Code, "Ana")
	if join.Resumed || join.Token == "" {
		t.Fatalf("unexpected join: %+v", join)
	}

	status, env := doJSON(t, s, http.MethodPost, "/api/v1/join/"+session.Code, "", models.JoinRequest{Username: "ana"})
	if status != http.StatusOK {
		t.Errorf("rejoin: expected 200, got %d", status)
	}
	var again models.JoinResponse
	decodeData(t, env, &again)
	if !again.Resumed || again.Token != join.Token {
		t.Errorf("expected resumed path, got %+v", again)
	}

	status, env = doJSON(t, s, http.MethodPost, "/api/v1/join/"+session.Code, "", models.JoinRequest{Username: "  "})
	expectError(t, status, env, http.StatusBadRequest, "validation_error")

	play := "/api/v1/play/" + join.Token

	status, env = doJSON(t, s, http.MethodPost, play+"/steps/2", "", optimal[1])
	expectError(t, status, env, http.StatusConflict, "step_out_of_order")

	status, env = doJSON(t, s, http.MethodPost, play+"/steps/1", "", models.StepSubmission{Choice: "nobody"})
	expectError(t, status, env, http.StatusUnprocessableEntity, "invalid_choice")

	status, env = doJSON(t, s, http.MethodGet, play+"/result", "", nil)
	expectError(t, status, env, http.StatusConflict, "path_incomplete")

	status, env = doJSON(t, s, http.MethodGet, play+"/steps/step3/choices", "", nil)
	if status != http.StatusOK {
		t.Fatalf("step choices: expected 200, got %d", status)
	}

	outcome := playOptimal(t, s, join.Token)
	if outcome.Result == nil || outcome.Result.TotalScore != 15 || outcome.Result.OverallTier != 3 {
		t.Fatalf("unexpected final outcome: %+v", outcome)
	}

	status, env = doJSON(t, s, http.MethodGet, play+"/score", "", nil)
	var score models.ScoreSummary
	decodeData(t, env, &score)
	if status != http.StatusOK || score.Total != 15 || score.MaxPossible != 15 {
		t.Errorf("unexpected score: %d %+v", status, score)
	}

	status, env = doJSON(t, s, http.MethodGet, play+"/result", "", nil)
	var result models.Result
	decodeData(t, env, &result)
	if status != http.StatusOK || result.Username != "ana" || len(result.Unlocked.Capabilities) == 0 {
		t.Errorf("unexpected result: %d %+v", status, result)
	}

	status, env = doJSON(t, s, http.MethodPost, play+"/steps/5", "", optimal[4])
	expectError(t, status, env, http.StatusConflict, "path_complete")

	status, env = doJSON(t, s, http.MethodGet, "/api/v1/board/"+session.Code, "", nil)
	var board models.BoardUpdate
	decodeData(t, env, &board)
	if status != http.StatusOK || len(board.Entries) != 1 || board.Entries[0].TotalScore != 15 {
		t.Errorf("unexpected board: %d %+v", status, board)
	}

	status, env = doJSON(t, s, http.MethodGet, "/api/v1/sessions/"+session.Code+"/stats", adminKey, nil)
	var stats models.SessionStats
	decodeData(t, env, &stats)
	if status != http.StatusOK || stats.Completed != 1 || stats.BestScore != 15 {
		t.Errorf("unexpected stats: %d %+v", status, stats)
	}

	status, env = doJSON(t, s, http.MethodGet, "/api/v1/leaderboard?edition=leader", adminKey, nil)
	var global struct {
		Entries []models.LeaderboardEntry `json:"entries"`
	}
	decodeData(t, env, &global)
	if status != http.StatusOK || len(global.Entries) != 1 {
		t.Errorf("unexpected global leaderboard: %d %+v", status, global)
	}

	status, env = doJSON(t, s, http.MethodGet, "/api/v1/play/missing/score", "", nil)
	expectError(t, status, env, http.StatusNotFound, "player_not_found")
}

func TestLiveBoard(t *testing.T) {
	s := newTestServer(t, nil)
	session := createSession(t, s)

	ts := httptest.NewServer(s.Router())
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/board/"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"NOPE00/live", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+session.Code+"/live", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	readUpdate := func() models.BoardUpdate {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var update models.BoardUpdate
		if err := conn.ReadJSON(&update); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		return update
	}

	first := readUpdate()
	if first.Type != "leaderboard" || first.SessionCode != session.Code || len(first.Entries) != 0 {
		t.Fatalf("unexpected initial update: %+v", first)
	}

	join := joinSession(t, s, session.Code, "ben")
	playOptimal(t, s, join.Token)

	next := readUpdate()
	if len(next.Entries) != 1 || next.Entries[0].Username != "ben" || next.Entries[0].Rank != 1 {
		t.Errorf("unexpected update after completion: %+v", next)
	}
}
