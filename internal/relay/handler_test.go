package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoes-app/demo-relay/internal/config"
	"github.com/echoes-app/demo-relay/internal/provider"
	"github.com/echoes-app/demo-relay/internal/quota"
)

type fakeProvider struct {
	label      string
	maxHistory int
	reply      string
	err        error
	calls      int
	got        []provider.Message
}

func (f *fakeProvider) Label() string   { return f.label }
func (f *fakeProvider) MaxHistory() int { return f.maxHistory }

func (f *fakeProvider) Complete(ctx context.Context, messages []provider.Message) (string, error) {
	f.calls++
	f.got = messages
	return f.reply, f.err
}

func testDemoConfig() config.DemoConfig {
	return config.DemoConfig{
		Password:    "echoes2025",
		EndDate:     time.Now().Add(24 * time.Hour),
		DailyLimit:  200,
		Development: false,
	}
}

func postChat(t *testing.T, h *Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/chat", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func userMessages(n int) []ChatMessage {
	msgs := make([]ChatMessage, n)
	for i := range msgs {
		msgs[i] = ChatMessage{Role: "user", Content: fmt.Sprintf("turn %d", i)}
	}
	return msgs
}

func TestChat_Success(t *testing.T) {
	prov := &fakeProvider{label: "anthropic", maxHistory: 12, reply: "  Hello from the model!  \n"}
	store := quota.NewStore(200)
	h := NewHandler(prov, store, testDemoConfig())

	rec := postChat(t, h, chatRequest{Messages: userMessages(1)})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Hello from the model!", body["message"], "reply is whitespace-trimmed")
	assert.Equal(t, true, body["isDemoMode"])
	assert.Equal(t, "anthropic", body["aiProvider"])
	assert.Equal(t, float64(199), body["requestsRemaining"])
	assert.Equal(t, 1, store.Count())
}

func TestChat_TrimsHistoryPreservingOrder(t *testing.T) {
	prov := &fakeProvider{label: "anthropic", maxHistory: 12, reply: "ok"}
	h := NewHandler(prov, quota.NewStore(200), testDemoConfig())

	rec := postChat(t, h, chatRequest{Messages: userMessages(20)})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, prov.got, 12, "adapter receives only the most recent turns")
	assert.Equal(t, "turn 8", prov.got[0].Content)
	assert.Equal(t, "turn 19", prov.got[11].Content)
}

func TestChat_TrimsToProviderWindow(t *testing.T) {
	prov := &fakeProvider{label: "huggingface", maxHistory: 8, reply: "ok"}
	h := NewHandler(prov, quota.NewStore(500), testDemoConfig())

	postChat(t, h, chatRequest{Messages: userMessages(20)})

	require.Len(t, prov.got, 8)
	assert.Equal(t, "turn 12", prov.got[0].Content)
	assert.Equal(t, "turn 19", prov.got[7].Content)
}

func TestChat_DailyLimitReached(t *testing.T) {
	prov := &fakeProvider{label: "anthropic", maxHistory: 12, reply: "ok"}
	store := quota.NewStore(2)
	h := NewHandler(prov, store, testDemoConfig())

	for i := 0; i < 2; i++ {
		rec := postChat(t, h, chatRequest{Messages: userMessages(1)})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := postChat(t, h, chatRequest{Messages: userMessages(1)})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["isDailyLimitReached"])
	assert.Equal(t, 2, prov.calls, "no upstream call once the limit is hit")
	assert.Equal(t, 2, store.Count(), "rejections do not mutate the counter")
}

func TestChat_CounterResetsAfterMidnight(t *testing.T) {
	current := time.Date(2025, 11, 29, 23, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	prov := &fakeProvider{label: "anthropic", maxHistory: 12, reply: "ok"}
	store := quota.NewStoreWithClock(1, clock)
	cfg := testDemoConfig()
	cfg.EndDate = time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	h := NewHandler(prov, store, cfg)
	h.now = clock

	rec := postChat(t, h, chatRequest{Messages: userMessages(1)})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postChat(t, h, chatRequest{Messages: userMessages(1)})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	current = time.Date(2025, 11, 30, 0, 1, 0, 0, time.UTC)

	rec = postChat(t, h, chatRequest{Messages: userMessages(1)})
	require.Equal(t, http.StatusOK, rec.Code, "counter is zeroed on the first request after midnight")
}

func TestChat_DemoExpired(t *testing.T) {
	prov := &fakeProvider{label: "anthropic", maxHistory: 12, reply: "ok"}
	cfg := testDemoConfig()
	cfg.EndDate = time.Now().Add(-time.Hour)
	h := NewHandler(prov, quota.NewStore(200), cfg)

	rec := postChat(t, h, chatRequest{Messages: userMessages(1)})

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["isDemoExpired"])
	assert.Equal(t, 0, prov.calls)
}

func TestChat_DailyGateBeforeDemoExpiry(t *testing.T) {
	// Both gates would reject; the daily gate runs first.
	prov := &fakeProvider{label: "anthropic", maxHistory: 12, reply: "ok"}
	store := quota.NewStore(1)
	store.Increment()
	cfg := testDemoConfig()
	cfg.EndDate = time.Now().Add(-time.Hour)
	h := NewHandler(prov, store, cfg)

	rec := postChat(t, h, chatRequest{Messages: userMessages(1)})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["isDailyLimitReached"])
}

func TestChat_NoExpiryWhenEndDateUnset(t *testing.T) {
	prov := &fakeProvider{label: "anthropic", maxHistory: 12, reply: "ok"}
	cfg := testDemoConfig()
	cfg.EndDate = time.Time{}
	h := NewHandler(prov, quota.NewStore(200), cfg)

	rec := postChat(t, h, chatRequest{Messages: userMessages(1)})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestChat_UpstreamFailure(t *testing.T) {
	prov := &fakeProvider{label: "anthropic", maxHistory: 12, err: errors.New("upstream returned HTTP 529: overloaded")}
	store := quota.NewStore(200)
	h := NewHandler(prov, store, testDemoConfig())

	rec := postChat(t, h, chatRequest{Messages: userMessages(1)})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "AI service temporarily unavailable", body["error"])
	assert.NotContains(t, body, "detail", "upstream detail is hidden outside development")
	assert.Equal(t, 0, store.Count(), "failures do not consume quota")
}

func TestChat_UpstreamFailureDevelopmentDetail(t *testing.T) {
	prov := &fakeProvider{label: "anthropic", maxHistory: 12, err: errors.New("upstream returned HTTP 529: overloaded")}
	cfg := testDemoConfig()
	cfg.Development = true
	h := NewHandler(prov, quota.NewStore(200), cfg)

	rec := postChat(t, h, chatRequest{Messages: userMessages(1)})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["detail"], "HTTP 529")
}

func TestChat_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing messages", `{}`},
		{"empty messages", `{"messages":[]}`},
		{"bad role", `{"messages":[{"role":"wizard","content":"hi"}]}`},
		{"missing content", `{"messages":[{"role":"user"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov := &fakeProvider{label: "anthropic", maxHistory: 12, reply: "ok"}
			h := NewHandler(prov, quota.NewStore(200), testDemoConfig())

			req := httptest.NewRequest("POST", "/api/chat", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()
			h.Chat(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, 0, prov.calls)
		})
	}
}

func TestVerify(t *testing.T) {
	prov := &fakeProvider{label: "anthropic", maxHistory: 12}
	h := NewHandler(prov, quota.NewStore(200), testDemoConfig())

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/verify", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		h.Verify(rec, req)
		return rec
	}

	t.Run("correct password", func(t *testing.T) {
		rec := post(`{"password":"echoes2025"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, float64(200), body["requestsRemaining"])
		assert.Equal(t, "anthropic", body["aiProvider"])
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := post(`{"password":"nope"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["valid"])
	})

	t.Run("quota exhausted still reports zero remaining", func(t *testing.T) {
		drained := quota.NewStore(1)
		drained.Increment()
		h := NewHandler(prov, drained, testDemoConfig())

		req := httptest.NewRequest("POST", "/api/verify", bytes.NewReader([]byte(`{"password":"echoes2025"}`)))
		rec := httptest.NewRecorder()
		h.Verify(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["valid"])
		remaining, present := body["requestsRemaining"]
		require.True(t, present, "requestsRemaining must be present even at zero")
		assert.Equal(t, float64(0), remaining)
	})

	t.Run("missing password", func(t *testing.T) {
		rec := post(`{}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Password is required", decodeBody(t, rec)["error"])
	})
}

func TestHealth(t *testing.T) {
	prov := &fakeProvider{label: "anthropic", maxHistory: 12}
	store := quota.NewStore(200)
	store.Increment()
	h := NewHandler(prov, store, testDemoConfig())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["demoActive"])
	assert.Equal(t, float64(1), body["requestsToday"])
	assert.Equal(t, float64(200), body["dailyLimit"])
	assert.Equal(t, float64(199), body["remainingToday"])
	assert.Equal(t, "anthropic", body["aiProvider"])

	assert.Equal(t, 1, store.Count(), "health never consumes quota")
}

func TestTrimHistory(t *testing.T) {
	msgs := userMessages(5)
	assert.Len(t, trimHistory(msgs, 8), 5, "shorter conversations pass through")
	assert.Equal(t, msgs, trimHistory(msgs, 5))

	trimmed := trimHistory(msgs, 2)
	require.Len(t, trimmed, 2)
	assert.Equal(t, "turn 3", trimmed[0].Content)
	assert.Equal(t, "turn 4", trimmed[1].Content)
}
