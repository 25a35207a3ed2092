package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"groovie/pkg/ai"
	"groovie/pkg/domain"
	"groovie/pkg/store"
	"groovie/services/api/internal/app"
)

type failingGenerator struct{}

func (failingGenerator) Generate(_ context.Context, _ ai.Prompt) (string, error) {
	return "", errors.New("provider down")
}

type testEnv struct {
	srv   *httptest.Server
	store *store.MemoryStore
	redis *miniredis.Miniredis
}

func newTestEnv(t *testing.T, gen ai.ChatGenerator, chatLimit int) testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := store.NewMemoryStore()
	if gen == nil {
		gen = ai.EchoGenerator{}
	}
	a, err := app.New(app.Config{
		Store:        st,
		Generator:    gen,
		Access:       store.NewAccessLevels(st, client, 0),
		HistoryLimit: 10,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{App: a, Redis: client, ChatRateLimitPerMinute: chatLimit})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return testEnv{srv: srv, store: st, redis: mr}
}

func (e testEnv) do(t *testing.T, method, path, userID, level string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if level != "" {
		req.Header.Set("X-Access-Level", level)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &payload)
	}
	return resp, payload
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	resp, body := env.do(t, http.MethodGet, "/healthz", "", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health response: %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAccessLevelDefaultsToFree(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	resp, body := env.do(t, http.MethodGet, "/api/auth/access-level", "u-1", "", nil)
	if resp.StatusCode != http.StatusOK || body["accessLevel"] != "free" {
		t.Fatalf("unexpected response: %d %v", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/auth/access-level", "", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing session expected 401, got %d", resp.StatusCode)
	}
}

func TestModesReportLockStatus(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	resp, body := env.do(t, http.MethodGet, "/api/modes", "u-1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	modes, _ := body["modes"].([]any)
	if len(modes) != 3 {
		t.Fatalf("expected 3 modes, got %v", body)
	}
	first := modes[0].(map[string]any)
	second := modes[1].(map[string]any)
	if first["id"] != "reading-resource" || first["status"] != "accessible" || second["status"] != "locked" {
		t.Fatalf("unexpected modes: %v", modes)
	}
}

func TestChatEndpointValidation(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	tests := []struct {
		name   string
		path   string
		level  string
		body   any
		status int
		errMsg string
	}{
		{name: "unknown mode", path: "/api/modes/admin/chat", body: map[string]string{"message": "hi"}, status: http.StatusNotFound},
		{name: "mode mismatch", path: "/api/modes/reading-resource/chat", body: map[string]string{"message": "hi", "mode": "magic-librarian"}, status: http.StatusBadRequest},
		{name: "empty message", path: "/api/modes/reading-resource/chat", body: map[string]string{"message": "  "}, status: http.StatusBadRequest},
		{name: "locked mode", path: "/api/modes/teaching-assistant/chat", body: map[string]string{"message": "lesson"}, status: http.StatusForbidden, errMsg: "Teaching Assistant requires premium"},
		{name: "unknown conversation", path: "/api/modes/reading-resource/chat", body: map[string]string{"message": "hi", "conversationId": "nope"}, status: http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, tc.path, "u-1", tc.level, tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d (%v)", tc.status, resp.StatusCode, body)
			}
			if tc.errMsg != "" && body["error"] != tc.errMsg {
				t.Fatalf("expected error %q, got %v", tc.errMsg, body["error"])
			}
		})
	}

	resp, _ := env.do(t, http.MethodGet, "/api/modes/reading-resource/chat", "u-1", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET chat expected 405, got %d", resp.StatusCode)
	}
}

func TestChatCreatesConversationAndContinuesIt(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	resp, body := env.do(t, http.MethodPost, "/api/modes/teaching-assistant/chat", "u-1", "premium", map[string]string{
		"message":        "Write a lesson plan about bees",
		"mode":           "teaching-assistant",
		"conversationId": "temp",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, body)
	}
	convID, _ := body["conversationId"].(string)
	if convID == "" || convID == "temp" || body["messageId"] == "" || body["mode"] != "teaching-assistant" {
		t.Fatalf("unexpected reply: %v", body)
	}
	if !strings.Contains(body["content"].(string), "You asked: Write a lesson plan about bees") {
		t.Fatalf("unexpected content: %v", body["content"])
	}
	artifacts, _ := body["artifacts"].([]any)
	if len(artifacts) != 1 || artifacts[0].(map[string]any)["type"] != "lesson-plan" {
		t.Fatalf("unexpected artifacts: %v", body["artifacts"])
	}

	resp, body = env.do(t, http.MethodPost, "/api/modes/reading-resource/chat", "u-1", "", map[string]string{
		"message":        "and a book list",
		"conversationId": convID,
	})
	if resp.StatusCode != http.StatusOK || body["conversationId"] != convID {
		t.Fatalf("follow-up failed: %d %v", resp.StatusCode, body)
	}
	conv, ok, _ := env.store.GetConversation(t.Context(), convID)
	if !ok || len(conv.Messages) != 4 || conv.Title != "Write a lesson plan about bees" {
		t.Fatalf("unexpected stored conversation: %+v", conv)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/modes/reading-resource/chat", "u-2", "", map[string]string{
		"message":        "let me in",
		"conversationId": convID,
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign conversation expected 403, got %d", resp.StatusCode)
	}
}

func TestChatGenerationFailureReturns502(t *testing.T) {
	env := newTestEnv(t, failingGenerator{}, 0)
	resp, body := env.do(t, http.MethodPost, "/api/modes/reading-resource/chat", "u-1", "", map[string]string{"message": "hi"})
	if resp.StatusCode != http.StatusBadGateway || body["error"] != "generation failed" {
		t.Fatalf("expected 502, got %d %v", resp.StatusCode, body)
	}
}

func TestChatRateLimit(t *testing.T) {
	env := newTestEnv(t, nil, 1)
	resp, _ := env.do(t, http.MethodPost, "/api/modes/reading-resource/chat", "u-1", "", map[string]string{"message": "one"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/modes/reading-resource/chat", "u-1", "", map[string]string{"message": "two"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", resp.Header.Get("Retry-After"))
	}
	resp, _ = env.do(t, http.MethodPost, "/api/modes/reading-resource/chat", "u-2", "", map[string]string{"message": "other user"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("limit must be per user, got %d", resp.StatusCode)
	}
}

func TestConversationEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, 0)

	resp, body := env.do(t, http.MethodPost, "/api/conversations", "u-1", "premium", map[string]string{"mode": "magic-librarian"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create expected 201, got %d (%v)", resp.StatusCode, body)
	}
	conv := body["conversation"].(map[string]any)
	id := conv["id"].(string)
	if conv["title"] != "New conversation" || conv["userId"] != "u-1" {
		t.Fatalf("unexpected conversation: %v", conv)
	}
	createdUpdatedAt := conv["updatedAt"].(string)

	resp, _ = env.do(t, http.MethodPost, "/api/conversations", "u-1", "", map[string]string{"mode": "wizard"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown mode expected 400, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodGet, "/api/conversations?mode=magic-librarian&userId=u-1", "u-1", "", nil)
	items, _ := body["conversations"].([]any)
	if resp.StatusCode != http.StatusOK || len(items) != 1 {
		t.Fatalf("list failed: %d %v", resp.StatusCode, body)
	}
	resp, body = env.do(t, http.MethodGet, "/api/conversations?mode=reading-resource", "u-1", "", nil)
	items, _ = body["conversations"].([]any)
	if resp.StatusCode != http.StatusOK || items == nil || len(items) != 0 {
		t.Fatalf("filtered list should be empty array: %d %v", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/conversations?mode=wizard", "u-1", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid mode filter expected 400, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/conversations?userId=u-2", "u-1", "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign userId expected 403, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodPatch, "/api/conversations/"+id, "u-1", "", map[string]string{"title": "Phonics fun"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch expected 200, got %d (%v)", resp.StatusCode, body)
	}
	patched := body["conversation"].(map[string]any)
	if patched["title"] != "Phonics fun" || patched["updatedAt"].(string) == createdUpdatedAt {
		t.Fatalf("patch did not update title and updatedAt: %v", patched)
	}
	resp, _ = env.do(t, http.MethodPatch, "/api/conversations/"+id, "u-1", "", map[string]string{"title": " "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty title expected 400, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/conversations/"+id, "u-2", "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign get expected 403, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodDelete, "/api/conversations/"+id, "u-2", "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign delete expected 403, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodDelete, "/api/conversations/"+id, "u-1", "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete expected 204, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/conversations/"+id, "u-1", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted conversation expected 404, got %d", resp.StatusCode)
	}
}

func TestClaimedLevelIsCachedInRedis(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	resp, body := env.do(t, http.MethodGet, "/api/auth/access-level", "u-9", "educator", nil)
	if resp.StatusCode != http.StatusOK || body["accessLevel"] != "educator" {
		t.Fatalf("unexpected response: %d %v", resp.StatusCode, body)
	}
	resp, body = env.do(t, http.MethodGet, "/api/auth/access-level", "u-9", "", nil)
	if resp.StatusCode != http.StatusOK || body["accessLevel"] != "educator" {
		t.Fatalf("stored level not used: %d %v", resp.StatusCode, body)
	}
	user, ok, _ := env.store.GetUser(t.Context(), "u-9")
	if !ok || user.AccessLevel != domain.AccessEducator {
		t.Fatalf("claimed level not persisted: %+v", user)
	}
	if !env.redis.Exists("groovie:access:u-9") {
		t.Fatalf("expected cached access level")
	}
}
