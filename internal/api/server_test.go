package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/park285/cheese-arena/internal/broker"
	"github.com/park285/cheese-arena/internal/match"
)

func newTestApp(t *testing.T) (*match.Registry, func(method, path, body string) (int, map[string]any)) {
	t.Helper()
	reg := match.NewRegistry(match.WithPublisher(broker.NewMemory(nil)))
	app := NewApp(reg, Options{AllowedOrigins: []string{"*"}}, nil)
	do := func(method, path, body string) (int, map[string]any) {
		t.Helper()
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, r)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		var out map[string]any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &out); err != nil {
				t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
			}
		}
		return resp.StatusCode, out
	}
	return reg, do
}

func TestMatchLifecycleOverHTTP(t *testing.T) {
	_, do := newTestApp(t)

	status, body := do(http.MethodPost, "/api/match/create", `{"playerName":"Alice"}`)
	if status != http.StatusOK || body["playerId"] != "p1" {
		t.Fatalf("create: %d %v", status, body)
	}
	id, _ := body["matchId"].(string)
	if !match.ValidID(id) {
		t.Fatalf("bad match id %q", id)
	}

	status, body = do(http.MethodPost, "/api/match/join", `{"matchId":"`+strings.ToLower(id)+`","playerName":"Bob"}`)
	if status != http.StatusOK || body["playerId"] != "p2" || body["matchId"] != id {
		t.Fatalf("join: %d %v", status, body)
	}

	status, body = do(http.MethodPost, "/api/match/"+id+"/action", `{"playerId":"p1","type":"PUNCH"}`)
	if status != http.StatusOK {
		t.Fatalf("action: %d %v", status, body)
	}
	st, ok := body["state"].(map[string]any)
	if !ok {
		t.Fatalf("action response missing state: %v", body)
	}
	if st["turn"] != "p2" {
		t.Fatalf("turn = %v", st["turn"])
	}
	p2 := st["players"].(map[string]any)["p2"].(map[string]any)
	if p2["hp"].(float64) != 25 {
		t.Fatalf("p2 = %v", p2)
	}

	status, body = do(http.MethodGet, "/api/match/"+strings.ToLower(id), "")
	if status != http.StatusOK || body["status"] != "active" || body["matchId"] != id {
		t.Fatalf("get: %d %v", status, body)
	}
	if log := body["log"].([]any); len(log) != 3 || log[2] != "Alice punched Bob for 5 damage" {
		t.Fatalf("log = %v", log)
	}
}

func TestErrorMapping(t *testing.T) {
	reg, do := newTestApp(t)
	waiting, _ := reg.CreateMatch("Solo")
	active, _ := reg.CreateMatch("Alice")
	reg.JoinMatch(active.MatchID, "Bob")

	cases := []struct {
		name, method, path, body string
		status                   int
		msg                      string
	}{
		{"create no name", "POST", "/api/match/create", `{}`, 400, "playerName is required"},
		{"create blank name", "POST", "/api/match/create", `{"playerName":"   "}`, 400, "playerName is required"},
		{"create bad json", "POST", "/api/match/create", `{`, 400, "Invalid request body"},
		{"join no id", "POST", "/api/match/join", `{"playerName":"x"}`, 400, "matchId is required"},
		{"join no name", "POST", "/api/match/join", `{"matchId":"` + waiting.MatchID + `"}`, 400, "playerName is required"},
		{"join unknown", "POST", "/api/match/join", `{"matchId":"ZZZZZZ","playerName":"x"}`, 404, "Match not found"},
		{"join full", "POST", "/api/match/join", `{"matchId":"` + active.MatchID + `","playerName":"x"}`, 400, "Match is not accepting players"},
		{"get unknown", "GET", "/api/match/ZZZZZZ", "", 404, "Match not found"},
		{"action bad player", "POST", "/api/match/" + active.MatchID + "/action", `{"playerId":"p3","type":"PUNCH"}`, 400, "Invalid playerId"},
		{"action bad type", "POST", "/api/match/" + active.MatchID + "/action", `{"playerId":"p1","type":"SLAP"}`, 400, "Invalid action type"},
		{"action not your turn", "POST", "/api/match/" + active.MatchID + "/action", `{"playerId":"p2","type":"PUNCH"}`, 400, "Not your turn"},
		{"action waiting", "POST", "/api/match/" + waiting.MatchID + "/action", `{"playerId":"p1","type":"PUNCH"}`, 400, "Match is not active"},
		{"action unknown", "POST", "/api/match/ZZZZZZ/action", `{"playerId":"p1","type":"PUNCH"}`, 404, "Match not found"},
		{"stream unknown", "GET", "/api/match/ZZZZZZ/stream", "", 404, "Match not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := do(tc.method, tc.path, tc.body)
			if status != tc.status || body["error"] != tc.msg {
				t.Fatalf("got %d %v, want %d %q", status, body, tc.status, tc.msg)
			}
		})
	}
}

func TestHealthAndRequestID(t *testing.T) {
	reg, do := newTestApp(t)
	reg.CreateMatch("Alice")
	status, body := do(http.MethodGet, "/healthz", "")
	if status != http.StatusOK || body["status"] != "ok" || body["matches"].(float64) != 1 {
		t.Fatalf("health: %d %v", status, body)
	}

	app := NewApp(reg, Options{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(HeaderRequestID); got != "req-123" {
		t.Fatalf("request id = %q", got)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get(HeaderRequestID) == "" {
		t.Fatalf("missing generated request id")
	}
}

func TestUnknownRouteKeepsErrorShape(t *testing.T) {
	_, do := newTestApp(t)
	status, body := do(http.MethodGet, "/nope", "")
	if status != http.StatusNotFound || body["error"] == nil {
		t.Fatalf("got %d %v", status, body)
	}
}
