package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coworker-ai/coworker/internal/analytics"
	"github.com/coworker-ai/coworker/internal/auth"
	"github.com/coworker-ai/coworker/internal/chat"
	"github.com/coworker-ai/coworker/internal/generation"
	"github.com/coworker-ai/coworker/internal/middleware"
	"github.com/coworker-ai/coworker/internal/store"
)

type stubClient struct {
	reply string
	err   error
}

func (s *stubClient) Provider() string { return "stub" }

func (s *stubClient) Generate(context.Context, string) (string, error) {
	return s.reply, s.err
}

type testServer struct {
	t      *testing.T
	router http.Handler
	repo   store.Repository
	client *stubClient
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithRepo(t, store.NewMemory(), 100)
}

func newTestServerWithRepo(t *testing.T, repo store.Repository, chatLimit int) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sessions := auth.NewMemoryStore(time.Hour)
	client := &stubClient{reply: "Happy to help!"}
	gen := generation.NewService(client, time.Second, nil, nil)
	turns := chat.NewService(repo, gen, nil, nil, nil)
	limiter := middleware.NewRateLimiter(ctx, chatLimit, time.Minute)

	base := NewHandler(repo, sessions)
	r := chi.NewRouter()
	NewHealthHandler(repo, sessions).RegisterHealth(r)
	NewAuthHandler(base).RegisterRoutes(r)
	NewAgentHandler(base).RegisterRoutes(r)
	NewChatHandler(base, turns, limiter, nil).RegisterRoutes(r)
	NewAnalyticsHandler(base, analytics.NewService(repo)).RegisterRoutes(r)
	NewContactHandler(base).RegisterRoutes(r)

	return &testServer{t: t, router: r, repo: repo, client: client}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) signup(username, plan string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"username":  username,
		"email":     username + "@example.com",
		"password":  "secret123",
		"firstName": "Test",
		"lastName":  "User",
		"plan":      plan,
	})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(s.t, resp.Token)
	return resp.Token
}

func (s *testServer) createAgent(token, name string) int64 {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/agents", token, map[string]any{
		"name":     name,
		"template": "customer-service",
	})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var agent struct {
		ID int64 `json:"id"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &agent))
	return agent.ID
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	token := s.signup("alice", "")

	w := s.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"username": "alice2", "email": "alice@example.com", "password": "secret123",
		"firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"User already exists"}`, w.Body.String())

	w = s.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"username": "alice", "email": "other@example.com", "password": "secret123",
		"firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"Username already taken"}`, w.Body.String())

	w = s.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"username": "bob", "email": "not-an-email", "password": "123",
		"firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"username": "carol", "email": "carol@example.com", "password": strings.Repeat("x", 80),
		"firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"password must be at most 72 characters"}`, w.Body.String())

	// 40 runes pass the character limit but are 120 bytes.
	w = s.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"username": "carol", "email": "carol@example.com", "password": strings.Repeat("€", 40),
		"firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"password must be at most 72 bytes"}`, w.Body.String())

	w = s.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"username": "dave", "email": "dave@example.com", "password": "secret123",
		"firstName": "A", "lastName": "B", "plan": "free",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"plan must be one of: starter professional enterprise"}`, w.Body.String())

	w = s.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"username": "   ", "email": "erin@example.com", "password": "secret123",
		"firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"username is required"}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decodeBody[map[string]any](t, w)
	assert.Equal(t, "alice", me["username"])
	assert.Equal(t, "starter", me["plan"])
	assert.NotContains(t, me, "password")
	assert.NotContains(t, me, "passwordHash")

	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "alice@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"Invalid credentials"}`, w.Body.String())

	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "nobody@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "alice@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	second := decodeBody[struct {
		Token string `json:"token"`
	}](t, w).Token
	assert.NotEqual(t, token, second)

	w = s.do(http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/me", token, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/auth/me", second, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/auth/logout", "", nil).Code)
}

func TestAgentsRequireAuth(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/agents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"Authentication required"}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/agents", "bogus", nil).Code)
}

func TestAgentLifecycleAndOwnership(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	owner := s.signup("owner", "")
	intruder := s.signup("intruder", "")

	id := s.createAgent(owner, "Support Bot")
	path := fmt.Sprintf("/api/agents/%d", id)

	w := s.do(http.MethodGet, path, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	agent := decodeBody[map[string]any](t, w)
	assert.Equal(t, "Support Bot", agent["name"])
	assert.Equal(t, true, agent["isActive"])
	assert.Equal(t, generation.PromptForTemplate("customer-service"), agent["systemPrompt"])

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w = s.do(method, path, intruder, map[string]any{"name": "hijacked"})
		assert.Equal(t, http.StatusNotFound, w.Code, method)
		assert.JSONEq(t, `{"message":"Agent not found"}`, w.Body.String())
	}
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path+"/conversations", intruder, nil).Code)

	w = s.do(http.MethodGet, "/api/agents", intruder, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.do(http.MethodPut, path, owner, map[string]any{"name": "Refund Bot", "isActive": false})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decodeBody[map[string]any](t, w)
	assert.Equal(t, "Refund Bot", updated["name"])
	assert.Equal(t, false, updated["isActive"])
	assert.Equal(t, "customer-service", updated["template"])

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/agents/abc", owner, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/agents/999", owner, nil).Code)

	w = s.do(http.MethodDelete, path, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Agent deleted successfully"}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/agents", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, owner, nil).Code)
}

func TestAgentCreateValidationAndCustomPrompt(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	token := s.signup("owner", "")

	w := s.do(http.MethodPost, "/api/agents", token, map[string]any{"template": "it-support"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/agents", token, map[string]any{"name": "   ", "template": "it-support"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"name is required"}`, w.Body.String())

	id := s.createAgent(token, "  Padded  ")
	path := fmt.Sprintf("/api/agents/%d", id)
	w = s.do(http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Padded", decodeBody[map[string]any](t, w)["name"])

	w = s.do(http.MethodPut, path, token, map[string]any{"name": " \t "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"name must be at least 1 characters"}`, w.Body.String())
	w = s.do(http.MethodGet, path, token, nil)
	assert.Equal(t, "Padded", decodeBody[map[string]any](t, w)["name"])

	w = s.do(http.MethodPost, "/api/agents", token, map[string]any{
		"name": "Custom", "template": "unknown-template", "systemPrompt": "You are a pirate.", "isActive": false,
	})
	require.Equal(t, http.StatusOK, w.Code)
	agent := decodeBody[map[string]any](t, w)
	assert.Equal(t, "You are a pirate.", agent["systemPrompt"])
	assert.Equal(t, false, agent["isActive"])
}

func TestAgentPlanQuota(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	starter := s.signup("starter", "starter")
	pro := s.signup("pro", "professional")

	for i := 0; i < 3; i++ {
		s.createAgent(starter, fmt.Sprintf("agent-%d", i))
	}
	w := s.do(http.MethodPost, "/api/agents", starter, map[string]any{"name": "one-too-many", "template": "it-support"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"message":"Agent limit reached for plan"}`, w.Body.String())

	for i := 0; i < 4; i++ {
		s.createAgent(pro, fmt.Sprintf("agent-%d", i))
	}
}

func TestTemplatesArePublic(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/api/templates", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	templates := decodeBody[[]generation.Template](t, w)
	assert.Len(t, templates, 6)
}

func TestChatAppendsTwoMessages(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	token := s.signup("owner", "")
	id := s.createAgent(token, "Support")
	chatPath := fmt.Sprintf("/api/chat/%d", id)

	w := s.do(http.MethodPost, chatPath, "", map[string]any{"message": "Hello", "sessionId": "visitor-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[map[string]any](t, w)
	assert.Equal(t, "Happy to help!", resp["response"])
	assert.Contains(t, resp, "responseTime")

	w = s.do(http.MethodGet, "/api/conversations/visitor-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	conv := decodeBody[struct {
		AgentID  int64 `json:"agentId"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}](t, w)
	assert.Equal(t, id, conv.AgentID)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "user", conv.Messages[0].Role)
	assert.Equal(t, "Hello", conv.Messages[0].Content)
	assert.Equal(t, "assistant", conv.Messages[1].Role)

	s.client.err = errors.New("upstream unavailable")
	w = s.do(http.MethodPost, chatPath, "", map[string]any{"message": "Again", "sessionId": "visitor-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, generation.FailureReply, decodeBody[map[string]any](t, w)["response"])

	w = s.do(http.MethodGet, fmt.Sprintf("/api/agents/%d/conversations", id), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	convs := decodeBody[[]struct {
		Messages []any `json:"messages"`
	}](t, w)
	require.Len(t, convs, 1)
	assert.Len(t, convs[0].Messages, 4)
}

func TestChatErrors(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	token := s.signup("owner", "")
	first := s.createAgent(token, "First")
	second := s.createAgent(token, "Second")

	w := s.do(http.MethodPost, "/api/chat/999", "", map[string]any{"message": "Hi", "sessionId": "s"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"Agent not found or inactive"}`, w.Body.String())

	w = s.do(http.MethodPost, fmt.Sprintf("/api/chat/%d", first), "", map[string]any{"message": "", "sessionId": "s"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, fmt.Sprintf("/api/chat/%d", first), "", map[string]any{"message": "Hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, fmt.Sprintf("/api/chat/%d", first), "", map[string]any{"message": "Hi", "sessionId": "s"}).Code)
	w = s.do(http.MethodPost, fmt.Sprintf("/api/chat/%d", second), "", map[string]any{"message": "Hi", "sessionId": "s"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.do(http.MethodPut, fmt.Sprintf("/api/agents/%d", second), token, map[string]any{"isActive": false})
	w = s.do(http.MethodPost, fmt.Sprintf("/api/chat/%d", second), "", map[string]any{"message": "Hi", "sessionId": "other"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/conversations/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"Conversation not found"}`, w.Body.String())
}

func TestChatRateLimit(t *testing.T) {
	t.Parallel()
	s := newTestServerWithRepo(t, store.NewMemory(), 2)
	token := s.signup("owner", "")
	path := fmt.Sprintf("/api/chat/%d", s.createAgent(token, "Support"))

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, s.do(http.MethodPost, path, "", map[string]any{"message": "Hi", "sessionId": "s"}).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, path, "", map[string]any{"message": "Hi", "sessionId": "s"}).Code)
}

func TestAnalyticsAndDashboard(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	token := s.signup("owner", "")
	other := s.signup("other", "")
	id := s.createAgent(token, "Support")

	for _, sid := range []string{"a", "b"} {
		require.Equal(t, http.StatusOK, s.do(http.MethodPost, fmt.Sprintf("/api/chat/%d", id), "", map[string]any{"message": "Hi", "sessionId": sid}).Code)
	}

	w := s.do(http.MethodGet, fmt.Sprintf("/api/analytics/agent/%d", id), token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decodeBody[struct {
		Analytics []any `json:"analytics"`
		Stats     struct {
			TotalConversations int `json:"totalConversations"`
			TotalMessages      int `json:"totalMessages"`
			ActiveToday        int `json:"activeToday"`
		} `json:"stats"`
	}](t, w)
	assert.Equal(t, 2, report.Stats.TotalConversations)
	assert.Equal(t, 4, report.Stats.TotalMessages)
	assert.Equal(t, 2, report.Stats.ActiveToday)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, fmt.Sprintf("/api/analytics/agent/%d", id), other, nil).Code)

	w = s.do(http.MethodGet, "/api/dashboard/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"activeAgents":1,"totalConversations":2,"averageSatisfaction":96}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/dashboard/stats", "", nil).Code)
}

func TestContact(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/contact", "", map[string]any{
		"firstName": "Grace", "lastName": "Hopper", "email": "grace@example.com", "message": "Hello",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Contact form submitted successfully"}`, w.Body.String())

	w = s.do(http.MethodPost, "/api/contact", "", map[string]any{
		"firstName": "Grace", "lastName": "Hopper", "email": "nope", "message": "Hello",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"email must be a valid email"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/contact", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type unhealthyRepo struct {
	*store.MemoryStore
}

func (unhealthyRepo) Ping(context.Context) error { return errors.New("disk gone") }

func TestHealth(t *testing.T) {
	t.Parallel()

	w := newTestServer(t).do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","checks":{"api":"ok","database":"ok","sessions":"ok"}}`, w.Body.String())

	w = newTestServerWithRepo(t, unhealthyRepo{store.NewMemory()}, 10).do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"api":"ok","database":"unreachable","sessions":"ok"}}`, w.Body.String())
}
