package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fixmyward/ward-service/internal/config"
	"github.com/fixmyward/ward-service/internal/domain"
	"github.com/fixmyward/ward-service/internal/repository/memory"
	"github.com/fixmyward/ward-service/internal/wardroom"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "fix-my-ward-test", Version: "test", AllowedOrigins: []string{"*"}},
		Auth: config.AuthConfig{
			JWTSecret:             "test-secret",
			AccessTokenTTLMinutes: 60,
			BcryptCost:            4,
			ResetURLBase:          "https://fixmyward.test/reset/",
			ResetTokenTTLMinutes:  15,
		},
		Realtime:     config.RealtimeConfig{SendBuffer: 64, MaxMessageBytes: 4096, InboundRate: 50, InboundBurst: 50},
		Composer:     config.ComposerConfig{TimeoutSeconds: 1},
		Notification: config.NotificationConfig{Workers: 1, QueueSize: 16},
	}
}

type harness struct {
	app           *App
	notifications *memory.Notifications
}

func newHarness(t *testing.T) harness {
	t.Helper()
	notifications := memory.NewNotifications()
	a := New(testConfig(), zap.NewNop(), Stores{
		Users:          memory.NewUsers(),
		Issues:         memory.NewIssues(),
		Notifications:  notifications,
		PasswordResets: memory.NewPasswordResets(),
		History:        memory.NewHistory(),
	}, Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return harness{app: a, notifications: notifications}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (h harness) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.app.Fiber.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (h harness) signup(t *testing.T, username, role, ward string) string {
	t.Helper()
	status, env := h.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"name":     username,
		"password": "secret1",
		"role":     role,
		"ward":     ward,
	})
	require.Equal(t, http.StatusCreated, status)
	var session struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	require.NotEmpty(t, session.Auth.Token)
	return session.Auth.Token
}

type issueBody struct {
	ID       string `json:"id"`
	Ward     string `json:"ward"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Location *struct {
		Lat     float64 `json:"lat"`
		Lng     float64 `json:"lng"`
		Address string  `json:"address"`
	} `json:"location"`
	Comments []struct {
		Text string `json:"text"`
	} `json:"comments"`
}

func (h harness) createIssue(t *testing.T, token string) issueBody {
	t.Helper()
	status, env := h.do(t, http.MethodPost, "/issues", token, map[string]any{
		"title":       "Pothole on 5th",
		"description": "Deep pothole near the bus stop",
		"category":    "Pothole",
		"location":    map[string]any{"lat": 12.91, "lng": 77.64, "address": "27th Main"},
	})
	require.Equal(t, http.StatusCreated, status)
	var issue issueBody
	require.NoError(t, json.Unmarshal(env.Data, &issue))
	return issue
}

func TestSignupLoginAndMe(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "asha", "CITIZEN", "HSR Layout")

	status, env := h.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "asha", "password": "secret1", "role": "COUNCILLOR",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "Account registered as CITIZEN", env.Error.Message)

	status, env = h.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "asha", "password": "secret1", "role": "CITIZEN",
	})
	require.Equal(t, http.StatusOK, status)
	var session struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))

	status, env = h.do(t, http.MethodGet, "/auth/me", session.Auth.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"ward":"HSR Layout"`)
	assert.NotContains(t, string(env.Data), "password")

	status, _ = h.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "asha", "email": "asha2@example.com", "name": "A", "password": "secret1", "role": "CITIZEN", "ward": "HSR Layout",
	})
	assert.Equal(t, http.StatusConflict, status)
}

func TestIssueLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	citizen := h.signup(t, "asha", "CITIZEN", "HSR Layout")
	councillor := h.signup(t, "kiran", "COUNCILLOR", "HSR Layout")
	outsider := h.signup(t, "meera", "COUNCILLOR", "Indiranagar")

	issue := h.createIssue(t, citizen)
	assert.Equal(t, "HSR Layout", issue.Ward)
	assert.Equal(t, "PENDING", issue.Status)
	assert.Equal(t, "Medium", issue.Priority)
	require.NotNil(t, issue.Location)
	assert.InDelta(t, 12.91, issue.Location.Lat, 1e-9)
	assert.Equal(t, "27th Main", issue.Location.Address)

	status, env := h.do(t, http.MethodPatch, "/issues/"+issue.ID+"/status", citizen, map[string]string{"status": "RESOLVED"})
	assert.Equal(t, http.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, _ = h.do(t, http.MethodPatch, "/issues/"+issue.ID+"/status", outsider, map[string]string{"status": "RESOLVED"})
	assert.Equal(t, http.StatusForbidden, status)

	status, env = h.do(t, http.MethodPatch, "/issues/"+issue.ID+"/status", councillor, map[string]string{"status": "IN_PROGRESS"})
	require.Equal(t, http.StatusOK, status)
	var updated issueBody
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "IN_PROGRESS", updated.Status)

	status, env = h.do(t, http.MethodPost, "/issues/"+issue.ID+"/comments", councillor, map[string]string{"text": "Team dispatched"})
	require.Equal(t, http.StatusCreated, status)
	var commented issueBody
	require.NoError(t, json.Unmarshal(env.Data, &commented))
	require.Len(t, commented.Comments, 1)

	status, env = h.do(t, http.MethodGet, "/issues/"+issue.ID+"/history", citizen, nil)
	require.Equal(t, http.StatusOK, status)
	var history []struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "PENDING", history[0].From)
	assert.Equal(t, "IN_PROGRESS", history[0].To)

	status, env = h.do(t, http.MethodGet, "/issues", outsider, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))

	status, _ = h.do(t, http.MethodDelete, "/issues/"+issue.ID, citizen, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = h.do(t, http.MethodGet, "/issues/"+issue.ID, citizen, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestValidationAndRoutingErrors(t *testing.T) {
	h := newHarness(t)
	citizen := h.signup(t, "asha", "CITIZEN", "HSR Layout")

	status, env := h.do(t, http.MethodPost, "/issues", citizen, map[string]any{"title": "", "category": "Volcano"})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Details, "category")

	status, env = h.do(t, http.MethodGet, "/issues", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)

	status, env = h.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestAnalyzeFallsBackWithoutGenerator(t *testing.T) {
	h := newHarness(t)
	citizen := h.signup(t, "asha", "CITIZEN", "HSR Layout")

	status, env := h.do(t, http.MethodPost, "/issues/analyze", citizen, map[string]string{
		"title": "Broken light", "description": "Street light out for a week",
	})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"summary":"Manual review required.","category":"Other","priority":"Medium","degraded":true}`, string(env.Data))
}

func TestNotificationsArriveAfterCreate(t *testing.T) {
	h := newHarness(t)
	citizen := h.signup(t, "asha", "CITIZEN", "HSR Layout")
	h.createIssue(t, citizen)

	// Jobs run on the worker pool.
	require.Eventually(t, func() bool {
		return len(h.notifications.All()) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	status, env := h.do(t, http.MethodGet, "/notifications", citizen, nil)
	require.Equal(t, http.StatusOK, status)
	var items []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.NotEmpty(t, items)
	assert.Equal(t, "RECEIVED", items[0].Type)

	status, _ = h.do(t, http.MethodPatch, "/notifications/"+items[0].ID+"/read", citizen, nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestForgotAndResetPassword(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "asha", "CITIZEN", "HSR Layout")

	status, _ := h.do(t, http.MethodPost, "/auth/forgot", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusAccepted, status)
	status, _ = h.do(t, http.MethodPost, "/auth/forgot", "", map[string]string{"email": "asha@example.com"})
	assert.Equal(t, http.StatusAccepted, status)

	linkPattern := regexp.MustCompile(`https://fixmyward\.test/reset/([0-9a-f]+)`)
	var token string
	require.Eventually(t, func() bool {
		for _, n := range h.notifications.All() {
			if n.Type != domain.NotificationReset {
				continue
			}
			if m := linkPattern.FindStringSubmatch(n.Body); m != nil {
				token = m[1]
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	status, _ = h.do(t, http.MethodPost, "/auth/reset", "", map[string]string{"token": token, "password": "newsecret"})
	assert.Equal(t, http.StatusNoContent, status)

	status, env := h.do(t, http.MethodPost, "/auth/reset", "", map[string]string{"token": token, "password": "newsecret"})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, _ = h.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "asha", "password": "newsecret", "role": "CITIZEN"})
	assert.Equal(t, http.StatusOK, status)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = h.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := h.app.Fiber.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "counters")
}

func dialWard(t *testing.T, addr, token, ward string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?token="+token, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteJSON(wardroom.InboundFrame{Event: wardroom.FrameJoinWard, Ward: ward}))
	joined := readFrame(t, conn, time.Second)
	require.Equal(t, wardroom.FrameWardJoined, joined.Event)
	require.Equal(t, ward, joined.Ward)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) wardroom.OutboundEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	var ev wardroom.OutboundEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWardRoomEndToEnd(t *testing.T) {
	h := newHarness(t)
	citizen := h.signup(t, "asha", "CITIZEN", "HSR Layout")
	councillor := h.signup(t, "kiran", "COUNCILLOR", "HSR Layout")
	outsider := h.signup(t, "meera", "COUNCILLOR", "Indiranagar")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = h.app.Fiber.Listener(ln) }()

	hsr := dialWard(t, ln.Addr().String(), councillor, "HSR Layout")
	indiranagar := dialWard(t, ln.Addr().String(), outsider, "Indiranagar")

	issue := h.createIssue(t, citizen)

	created := readFrame(t, hsr, 2*time.Second)
	assert.Equal(t, wardroom.FrameNewIssue, created.Event)
	assert.Equal(t, issue.ID, created.IssueID)
	assert.Equal(t, "HSR Layout", created.Ward)

	status, _ := h.do(t, http.MethodPatch, "/issues/"+issue.ID+"/status", councillor, map[string]string{"status": "RESOLVED"})
	require.Equal(t, http.StatusOK, status)

	updated := readFrame(t, hsr, 2*time.Second)
	assert.Equal(t, wardroom.FrameIssueUpdated, updated.Event)
	assert.Equal(t, "RESOLVED", updated.Status)
	assert.Equal(t, "Issue status updated to RESOLVED", updated.Message)
	assert.Greater(t, updated.Seq, created.Seq)

	// Clients cannot inject issue events.
	require.NoError(t, indiranagar.WriteJSON(map[string]string{"event": wardroom.FrameIssueCreated, "ward": "Indiranagar"}))
	rejected := readFrame(t, indiranagar, time.Second)
	assert.Equal(t, wardroom.FrameError, rejected.Event)

	// Nothing from HSR Layout reached Indiranagar.
	require.NoError(t, indiranagar.WriteJSON(wardroom.InboundFrame{Event: wardroom.FramePing}))
	pong := readFrame(t, indiranagar, time.Second)
	assert.Equal(t, wardroom.FramePong, pong.Event)

	assert.Equal(t, int64(2), h.app.Metrics.Snapshot().ActiveConnections)
}

func TestWebsocketRejectsMissingToken(t *testing.T) {
	h := newHarness(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = h.app.Fiber.Listener(ln) }()

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
