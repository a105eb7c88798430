package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/rps-canvas/internal/benchling"
	"github.com/MJE43/rps-canvas/internal/dispatch"
	"github.com/MJE43/rps-canvas/internal/engine"
	"github.com/MJE43/rps-canvas/internal/games"
	"github.com/MJE43/rps-canvas/internal/journal"
	"github.com/MJE43/rps-canvas/internal/webhook"
)

type vendorCall struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeVendor stands in for the Benchling canvas API.
type fakeVendor struct {
	mu     sync.Mutex
	calls  []vendorCall
	status int
}

func (v *fakeVendor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	v.mu.Lock()
	v.calls = append(v.calls, vendorCall{Method: r.Method, Path: r.URL.Path, Body: body})
	status := v.status
	v.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status < 300 {
		_, _ = io.WriteString(w, `{"id":"cnvs_new","enabled":true}`)
		return
	}
	_, _ = io.WriteString(w, `{"error":{"message":"boom"}}`)
}

func (v *fakeVendor) SetStatus(status int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.status = status
}

func (v *fakeVendor) Calls() []vendorCall {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]vendorCall(nil), v.calls...)
}

type testEnv struct {
	vendor  *fakeVendor
	journal *journal.Store
	handler http.Handler
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestEnv(t *testing.T, counter games.Choice, withJournal bool) *testEnv {
	t.Helper()
	vendor := &fakeVendor{}
	remote := httptest.NewServer(vendor)
	t.Cleanup(remote.Close)

	client, err := benchling.NewClient(benchling.Config{
		BaseURL:    remote.URL,
		Token:      "test-token",
		HTTPClient: remote.Client(),
	})
	require.NoError(t, err)

	d := dispatch.New(client,
		dispatch.WithSource(engine.FixedSource(games.FloatFor(counter))),
		dispatch.WithLogger(quietLogger()),
	)

	opts := []Option{WithLogger(quietLogger()), WithRemoteBase(remote.URL)}
	env := &testEnv{vendor: vendor}
	if withJournal {
		store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		env.journal = store
		opts = append(opts, WithJournal(store))
	}
	env.handler = NewServer(d, opts...).Routes()
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

const (
	createdBody    = `{"version":"1","baseURL":"https://tenant.benchling.com","tenantId":"ten_1","app":{"id":"app_1"},"message":{"type":"v2.canvas.created","featureId":"rps_canvas","resourceId":"etr_1"}}`
	interactedBody = `{"tenantId":"ten_1","app":{"id":"app_1"},"message":{"type":"v2.canvas.userInteracted","canvasId":"cv_1","buttonId":"btn_rock"}}`
)

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, games.Rock, false)

	w := env.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","name":"benchling-rps-app"}`, w.Body.String())
	assert.Equal(t, Version, w.Header().Get("X-App-Version"))
}

func TestWebhookCanvasCreated(t *testing.T) {
	env := newTestEnv(t, games.Rock, false)

	w := env.do(http.MethodPost, "/webhook", createdBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	calls := env.vendor.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "/api/v2/app-canvases", calls[0].Path)
	assert.Equal(t, "rps_canvas", calls[0].Body["featureId"])
	assert.Equal(t, "etr_1", calls[0].Body["resourceId"])
	blocks, ok := calls[0].Body["blocks"].([]any)
	require.True(t, ok)
	assert.Len(t, blocks, 4)
}

func TestWebhookUserInteracted(t *testing.T) {
	env := newTestEnv(t, games.Scissors, false)

	w := env.do(http.MethodPost, "/webhook", interactedBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	calls := env.vendor.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPatch, calls[0].Method)
	assert.Equal(t, "/api/v2/app-canvases/cv_1", calls[0].Path)

	blocks, ok := calls[0].Body["blocks"].([]any)
	require.True(t, ok)
	require.Len(t, blocks, 5)
	result, ok := blocks[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "md_result", result["id"])
	text, _ := result["value"].(string)
	assert.Contains(t, text, "rock")
	assert.Contains(t, text, "scissors")
	assert.Contains(t, text, "WIN")
}

func TestWebhookLegacyPath(t *testing.T) {
	env := newTestEnv(t, games.Rock, false)

	w := env.do(http.MethodPost, "/webhook/canvas", interactedBody)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env.vendor.Calls(), 1)
}

func TestWebhookRemoteFailureStillAcks(t *testing.T) {
	env := newTestEnv(t, games.Paper, true)
	env.vendor.SetStatus(http.StatusInternalServerError)

	w := env.do(http.MethodPost, "/webhook", interactedBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.Len(t, env.vendor.Calls(), 1)

	list, err := env.journal.List(context.Background(), journal.Query{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "updated", list[0].Action)
	assert.Contains(t, list[0].Error, "HTTP 500")
}

func TestWebhookIgnoredAndNoop(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown type",
			body: `{"message":{"type":"v2.app.installed"}}`,
			want: `{"ok":true,"ignored":"v2.app.installed"}`,
		},
		{
			name: "interaction without canvas",
			body: `{"message":{"type":"v2.canvas.userInteracted","buttonId":"btn_rock"}}`,
			want: `{"ok":true}`,
		},
		{
			name: "unknown button",
			body: `{"message":{"type":"v2.canvas.userInteracted","canvasId":"cv_1","buttonId":"btn_lizard"}}`,
			want: `{"ok":true}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, games.Rock, false)

			w := env.do(http.MethodPost, "/webhook", tt.body)
			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
			assert.Empty(t, env.vendor.Calls())
		})
	}
}

func TestWebhookMalformed(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "empty body", body: ""},
		{name: "invalid json", body: `{"message":`},
		{name: "missing message", body: `{"tenantId":"ten_1"}`, field: "message"},
		{name: "missing type", body: `{"message":{"featureId":"f"}}`, field: "message.type"},
		{name: "created without feature", body: `{"message":{"type":"v2.canvas.created"}}`, field: "message.featureId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, games.Rock, false)

			w := env.do(http.MethodPost, "/webhook", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, ErrTypeMalformedEnvelope, w.Header().Get("X-Error-Type"))

			var apiErr APIError
			require.NoError(t, json.NewDecoder(w.Body).Decode(&apiErr))
			assert.Equal(t, ErrTypeMalformedEnvelope, apiErr.Type)
			assert.NotEmpty(t, apiErr.RequestID)
			assert.NotEmpty(t, apiErr.Timestamp)
			if tt.field != "" {
				assert.Equal(t, tt.field, apiErr.Context["field"])
			}
			assert.Empty(t, env.vendor.Calls())
		})
	}
}

func TestWebhookBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, games.Rock, false)

	body := `{"message":{"type":"x","pad":"` + strings.Repeat("a", maxWebhookBody) + `"}}`
	w := env.do(http.MethodPost, "/webhook", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, ErrTypePayloadTooLarge, w.Header().Get("X-Error-Type"))
}

type panicDispatcher struct{}

func (panicDispatcher) Dispatch(context.Context, webhook.Event) dispatch.Report {
	panic("dispatcher exploded")
}

func TestPanicRecovered(t *testing.T) {
	h := NewServer(panicDispatcher{}, WithLogger(quietLogger())).Routes()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(interactedBody))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var apiErr APIError
	require.NoError(t, json.NewDecoder(w.Body).Decode(&apiErr))
	assert.Equal(t, ErrTypeInternal, apiErr.Type)
	assert.NotContains(t, w.Body.String(), "exploded")
}

func TestDeliveriesDisabled(t *testing.T) {
	env := newTestEnv(t, games.Rock, false)

	w := env.do(http.MethodGet, "/deliveries", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrTypeNotFound, w.Header().Get("X-Error-Type"))
}

func TestDeliveriesJournal(t *testing.T) {
	env := newTestEnv(t, games.Scissors, true)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/webhook", createdBody).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/webhook", interactedBody).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/webhook", `{"message":{"type":"v2.app.installed"}}`).Code)
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/webhook", `{}`).Code)

	w := env.do(http.MethodGet, "/deliveries", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp DeliveriesResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Deliveries, 3)
	assert.Equal(t, 100, resp.Limit)
	assert.Equal(t, map[string]int64{"created": 1, "updated": 1, "ignored": 1}, resp.Counts)

	byAction := map[string]journal.Delivery{}
	for _, d := range resp.Deliveries {
		byAction[d.Action] = d
		assert.NotEmpty(t, d.RequestID)
	}
	assert.Equal(t, "rps_canvas", byAction["created"].FeatureID)
	assert.Equal(t, "cnvs_new", byAction["created"].CanvasID)
	assert.Equal(t, "ten_1", byAction["created"].TenantID)
	assert.Equal(t, "cv_1", byAction["updated"].CanvasID)
	assert.Equal(t, "btn_rock", byAction["updated"].ButtonID)
	assert.Equal(t, "v2.app.installed", byAction["ignored"].MessageType)

	w = env.do(http.MethodGet, "/deliveries?action=updated&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = DeliveriesResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Deliveries, 1)
	assert.Equal(t, "updated", resp.Action)
	assert.Equal(t, 5, resp.Limit)
}

func TestDeliveriesBadParams(t *testing.T) {
	env := newTestEnv(t, games.Rock, true)

	for _, q := range []string{"limit=0", "limit=501", "limit=abc", "offset=-1"} {
		w := env.do(http.MethodGet, "/deliveries?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Equal(t, ErrTypeInvalidParams, w.Header().Get("X-Error-Type"), q)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, games.Rock, true)

	w := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthCheckResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, HealthStatusHealthy, health.Status)
	assert.Equal(t, Version, health.Version)
	assert.Contains(t, health.Checks, "dispatcher")
	assert.Contains(t, health.Checks, "journal")
	assert.NotEmpty(t, health.RequestID)

	w = env.do(http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready":true`)

	w = env.do(http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alive":true`)
}

func TestHealthUnhealthyJournal(t *testing.T) {
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	h := NewServer(panicDispatcher{}, WithLogger(quietLogger()), WithJournal(store)).Routes()

	for _, path := range []string{"/health", "/health/ready"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, games.Rock, false)

	w := env.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var apiErr APIError
	require.NoError(t, json.NewDecoder(w.Body).Decode(&apiErr))
	assert.Equal(t, ErrTypeNotFound, apiErr.Type)
}
