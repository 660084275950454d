package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	app "github.com/R3E-Network/wager_layer/internal/app"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func marshal(t *testing.T, payload any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return bytes.NewReader(data)
}

func do(t *testing.T, handler http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if payload != nil {
		req = httptest.NewRequest(method, path, marshal(t, payload))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal response %q: %v", resp.Body.String(), err)
	}
}

func createAccount(t *testing.T, handler http.Handler, owner string) string {
	t.Helper()
	resp := do(t, handler, http.MethodPost, "/accounts", map[string]any{"owner": owner})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create account %s: expected 201, got %d: %s", owner, resp.Code, resp.Body.String())
	}
	var acct struct {
		ID string `json:"id"`
	}
	decode(t, resp, &acct)
	return acct.ID
}

func creditAccount(t *testing.T, handler http.Handler, id string, amount int64) {
	t.Helper()
	resp := do(t, handler, http.MethodPost, "/accounts/"+id+"/credit", map[string]any{
		"denomination": "gas",
		"amount":       amount,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("credit account: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestHandlerChallengeLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	application, err := app.New(app.Stores{}, nil, app.WithClock(clock))
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}
	defer application.Stop(context.Background())

	handler := NewHandler(application, Options{})

	creator := createAccount(t, handler, "creator")
	playerA := createAccount(t, handler, "player-a")
	playerB := createAccount(t, handler, "player-b")
	operator := createAccount(t, handler, "operator")
	creditAccount(t, handler, playerA, 100)
	creditAccount(t, handler, playerB, 100)

	resp := do(t, handler, http.MethodPost, "/challenges", map[string]any{
		"creator":       creator,
		"entry_fee":     100,
		"duration_secs": 3600,
		"type":          "steps",
		"goal":          10000,
		"denomination":  "gas",
		"is_public":     true,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create challenge: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var ch struct {
		ID string `json:"id"`
	}
	decode(t, resp, &ch)

	for _, player := range []string{playerA, playerB} {
		resp = do(t, handler, http.MethodPost, "/challenges/"+ch.ID+"/join", map[string]any{
			"player":       player,
			"denomination": "gas",
		})
		if resp.Code != http.StatusCreated {
			t.Fatalf("join: expected 201, got %d: %s", resp.Code, resp.Body.String())
		}
	}

	// Double join conflicts.
	resp = do(t, handler, http.MethodPost, "/challenges/"+ch.ID+"/join", map[string]any{
		"player":       playerA,
		"denomination": "gas",
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("double join: expected 409, got %d", resp.Code)
	}

	resp = do(t, handler, http.MethodPost, "/challenges/"+ch.ID+"/scores", map[string]any{
		"player": playerA,
		"score":  5000,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("submit score: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = do(t, handler, http.MethodPost, "/challenges/"+ch.ID+"/scores", map[string]any{
		"player": playerB,
		"score":  3000,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("submit score: expected 200, got %d", resp.Code)
	}

	resp = do(t, handler, http.MethodGet, "/challenges/"+ch.ID+"/vault", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("vault: expected 200, got %d", resp.Code)
	}
	var vaultInfo struct {
		Amount int64 `json:"amount"`
	}
	decode(t, resp, &vaultInfo)
	if vaultInfo.Amount != 200 {
		t.Fatalf("vault amount = %d, want 200", vaultInfo.Amount)
	}

	// Settlement before the window closes is rejected.
	endPayload := map[string]any{
		"authority":     creator,
		"winner":        playerA,
		"fee_recipient": operator,
		"denomination":  "gas",
	}
	resp = do(t, handler, http.MethodPost, "/challenges/"+ch.ID+"/end", endPayload)
	if resp.Code != http.StatusConflict {
		t.Fatalf("early end: expected 409, got %d: %s", resp.Code, resp.Body.String())
	}

	clock.Advance(2 * time.Hour)

	resp = do(t, handler, http.MethodPost, "/challenges/"+ch.ID+"/end", endPayload)
	if resp.Code != http.StatusOK {
		t.Fatalf("end: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var settled struct {
		Status       string `json:"status"`
		Winner       string `json:"winner"`
		PlatformFee  int64  `json:"platform_fee"`
		WinnerPayout int64  `json:"winner_payout"`
	}
	decode(t, resp, &settled)
	if settled.Status != "ended" || settled.Winner != playerA {
		t.Fatalf("settled challenge = %+v", settled)
	}
	if settled.PlatformFee != 10 || settled.WinnerPayout != 190 {
		t.Fatalf("split = (%d, %d), want (10, 190)", settled.PlatformFee, settled.WinnerPayout)
	}

	resp = do(t, handler, http.MethodPost, "/challenges/"+ch.ID+"/end", endPayload)
	if resp.Code != http.StatusConflict {
		t.Fatalf("double end: expected 409, got %d", resp.Code)
	}

	resp = do(t, handler, http.MethodGet, fmt.Sprintf("/accounts/%s/balance?denomination=gas", playerA), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("balance: expected 200, got %d", resp.Code)
	}
	var bal struct {
		Amount int64 `json:"amount"`
	}
	decode(t, resp, &bal)
	if bal.Amount != 190 {
		t.Fatalf("winner balance = %d, want 190", bal.Amount)
	}

	resp = do(t, handler, http.MethodGet, "/challenges/"+ch.ID+"/leaderboard", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("leaderboard: expected 200, got %d", resp.Code)
	}
	var board []struct {
		Player string `json:"player"`
		Score  int64  `json:"score"`
	}
	decode(t, resp, &board)
	if len(board) != 2 || board[0].Player != playerA {
		t.Fatalf("leaderboard = %+v", board)
	}

	resp = do(t, handler, http.MethodGet, fmt.Sprintf("/accounts/%s/transactions?denomination=gas", playerA), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("transactions: expected 200, got %d", resp.Code)
	}
}

func TestHandlerErrorCodes(t *testing.T) {
	application, err := app.New(app.Stores{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	handler := NewHandler(application, Options{})

	resp := do(t, handler, http.MethodGet, "/challenges/does-not-exist", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("missing challenge: expected 404, got %d", resp.Code)
	}

	resp = do(t, handler, http.MethodPost, "/challenges", map[string]any{"creator": "nobody", "unknown_field": 1})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", resp.Code)
	}

	creator := createAccount(t, handler, "creator")
	intruder := createAccount(t, handler, "intruder")
	resp = do(t, handler, http.MethodPost, "/challenges", map[string]any{
		"creator":       creator,
		"entry_fee":     10,
		"duration_secs": 60,
		"type":          "steps",
		"goal":          100,
		"denomination":  "gas",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var ch struct {
		ID string `json:"id"`
	}
	decode(t, resp, &ch)

	resp = do(t, handler, http.MethodPost, "/challenges/"+ch.ID+"/cancel", map[string]any{"creator": intruder})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("cancel by non-creator: expected 403, got %d", resp.Code)
	}

	resp = do(t, handler, http.MethodPost, "/challenges/"+ch.ID+"/join", map[string]any{
		"player":       intruder,
		"denomination": "token",
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("wrong payment type: expected 403, got %d", resp.Code)
	}
}

func TestHandlerHealthAndMetrics(t *testing.T) {
	application, err := app.New(app.Stores{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	handler := NewHandler(application, Options{})

	resp := do(t, handler, http.MethodGet, "/healthz", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.Code)
	}

	resp = do(t, handler, http.MethodGet, "/metrics", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", resp.Code)
	}
	if resp.Body.Len() == 0 {
		t.Fatal("metrics output is empty")
	}
}

func TestHandlerRateLimit(t *testing.T) {
	application, err := app.New(app.Stores{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	handler := NewHandler(application, Options{RateLimitRPS: 1, RateLimitBurst: 2})

	limited := false
	for i := 0; i < 5; i++ {
		resp := do(t, handler, http.MethodGet, "/accounts", nil)
		if resp.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("burst of requests was never rate limited")
	}
}
