package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beamsched/internal/config"
	"beamsched/internal/logging"
	"beamsched/internal/metrics"
	"beamsched/internal/model"
	"beamsched/internal/store"
)

const sixInstance = `{
  "name": "six",
  "start": "A",
  "horizon": 6,
  "agents": 2,
  "edges": [
    {"from": "A", "to": "B", "weight": 1},
    {"from": "B", "to": "C", "weight": 2},
    {"from": "B", "to": "D", "weight": 3},
    {"from": "A", "to": "E", "weight": 1},
    {"from": "E", "to": "F", "weight": 1}
  ],
  "rewards": {"B": 13, "C": 2, "D": 20}
}`

func testConfig() config.Config {
	return config.Config{
		Search:             config.Search{Ceiling: 1000, Workers: 1, Scorer: "discounted", ThrashFactor: 2},
		WebhookMaxAttempts: 3,
	}
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, http.Handler) {
	t.Helper()
	s := newServer(store.NewMemory(), NewBroker(), cfg, logging.NewNop())
	t.Cleanup(func() { require.NoError(t, s.Close(context.Background())) })
	return s, s.Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func searchBody(async bool, options string) string {
	b := `{"instance":` + sixInstance
	if options != "" {
		b += `,"options":` + options
	}
	if async {
		b += `,"async":true`
	}
	return b + "}"
}

func TestHealthReady(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)
}

func TestSearchSync(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	rr := do(t, h, http.MethodPost, "/v1/search", searchBody(false, ""))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	run := decode[model.Run](t, rr)
	assert.Equal(t, model.RunSucceeded, run.Status)
	assert.Equal(t, 74, run.Reward)
	assert.ElementsMatch(t, []string{"B", "C", "D"}, run.Activated)
	assert.Equal(t, "discounted", run.Scorer)
	require.NotNil(t, run.Metrics)
	assert.Equal(t, 6, run.Metrics.Ticks)
	assert.NotNil(t, run.FinishedAt)

	got := decode[model.Run](t, do(t, h, http.MethodGet, "/v1/runs/"+run.ID, ""))
	assert.Equal(t, 74, got.Reward)

	ticks := decode[struct {
		Items []map[string]any `json:"items"`
	}](t, do(t, h, http.MethodGet, "/v1/runs/"+run.ID+"/ticks", ""))
	assert.Len(t, ticks.Items, 6)

	list := decode[struct {
		Items []model.Run `json:"items"`
	}](t, do(t, h, http.MethodGet, "/v1/runs?status=succeeded", ""))
	assert.Len(t, list.Items, 1)
}

func TestSearchOptionsOverride(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	rr := do(t, h, http.MethodPost, "/v1/search", searchBody(false, `{"ceiling":3,"scorer":"raw","workers":2}`))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	run := decode[model.Run](t, rr)
	assert.Equal(t, 3, run.Ceiling)
	assert.Equal(t, "raw", run.Scorer)
	assert.LessOrEqual(t, run.Metrics.FinalFrontier, 3)
}

func TestSearchRejectsBadRequests(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	for name, tc := range map[string]struct {
		body  string
		title string
	}{
		"bad json":      {`{"instance":`, "Invalid JSON"},
		"unknown field": {`{"instance":` + sixInstance + `,"bogus":1}`, "Invalid JSON"},
		"missing start": {`{"instance":{"horizon":3,"edges":[{"from":"A","to":"B","weight":1}]}}`, "Invalid search request"},
		"zero weight":   {`{"instance":{"start":"A","horizon":3,"edges":[{"from":"A","to":"B","weight":0}]}}`, "Invalid search request"},
		"unknown start": {`{"instance":{"start":"Q","horizon":3,"edges":[{"from":"A","to":"B","weight":1}]}}`, "Invalid instance"},
		"bad scorer":    {searchBody(false, `{"scorer":"greedy"}`), "Invalid search request"},
	} {
		rr := do(t, h, http.MethodPost, "/v1/search", tc.body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, name)
		p := decode[Problem](t, rr)
		assert.Equal(t, tc.title, p.Title, name)
	}
}

func TestRunsAreTenantScoped(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	run := decode[model.Run](t, do(t, h, http.MethodPost, "/v1/search", searchBody(false, ""), "X-Tenant-Id", "t_a"))
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/"+run.ID, "", "X-Tenant-Id", "t_b").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/"+run.ID+"/ticks", "", "X-Tenant-Id", "t_b").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/runs/"+run.ID, "", "X-Tenant-Id", "t_a").Code)
}

func waitDone(t *testing.T, h http.Handler, id string) model.Run {
	t.Helper()
	var run model.Run
	require.Eventually(t, func() bool {
		run = decode[model.Run](t, do(t, h, http.MethodGet, "/v1/runs/"+id, ""))
		return run.Done()
	}, 5*time.Second, 10*time.Millisecond)
	return run
}

func TestSearchAsync(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	rr := do(t, h, http.MethodPost, "/v1/search", searchBody(true, ""))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	queued := decode[model.Run](t, rr)
	assert.Equal(t, model.RunQueued, queued.Status)
	assert.Equal(t, "/v1/runs/"+queued.ID, rr.Header().Get("Location"))

	run := waitDone(t, h, queued.ID)
	assert.Equal(t, model.RunSucceeded, run.Status)
	assert.Equal(t, 74, run.Reward)
}

func TestRunEventsStream(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	srv := httptest.NewServer(h)
	defer srv.Close()

	queued := decode[model.Run](t, do(t, h, http.MethodPost, "/v1/search", searchBody(true, "")))
	resp, err := srv.Client().Get(srv.URL + "/v1/runs/" + queued.ID + "/events/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	var last string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if typ, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, typ)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			last = data
		}
	}
	require.NotEmpty(t, events)
	assert.Equal(t, "heartbeat", events[0])
	assert.Equal(t, EventCompleted, events[len(events)-1], "stream ends after the terminal event")
	assert.Contains(t, last, `"reward":74`)
}

func TestRunEventsStreamAfterFinish(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	srv := httptest.NewServer(h)
	defer srv.Close()

	run := decode[model.Run](t, do(t, h, http.MethodPost, "/v1/search", searchBody(false, "")))
	resp, err := srv.Client().Get(srv.URL + "/v1/runs/" + run.ID + "/events/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: "+EventCompleted)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/nope/events/stream", "").Code)
}

func TestRunWebSocket(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	srv := httptest.NewServer(h)
	defer srv.Close()

	queued := decode[model.Run](t, do(t, h, http.MethodPost, "/v1/search", searchBody(true, "")))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/runs/" + queued.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var last SSEEvent
	for {
		var evt SSEEvent
		if err := conn.ReadJSON(&evt); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		last = evt
	}
	assert.Equal(t, EventCompleted, last.Type)
	assert.Equal(t, 74.0, last.Data["reward"])
}

func TestSearchConfigAdmin(t *testing.T) {
	_, h := newTestServer(t, testConfig())

	rr := do(t, h, http.MethodPut, "/v1/admin/search/config", `{"config":{"ceiling":2,"scorer":"projected"}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	cfg := decode[struct {
		Config map[string]any `json:"config"`
	}](t, do(t, h, http.MethodGet, "/v1/admin/search/config", ""))
	assert.Equal(t, 2.0, cfg.Config["ceiling"])

	eff := decode[struct {
		Defaults searchSettings `json:"defaults"`
		Scorers  []string       `json:"scorers"`
	}](t, do(t, h, http.MethodGet, "/v1/search/config", ""))
	assert.Equal(t, searchSettings{Ceiling: 2, Scorer: "projected", ThrashFactor: 2, Workers: 1}, eff.Defaults)
	assert.Contains(t, eff.Scorers, "visit-penalty")

	run := decode[model.Run](t, do(t, h, http.MethodPost, "/v1/search", searchBody(false, "")))
	assert.Equal(t, 2, run.Ceiling, "tenant config applies to searches")
	assert.Equal(t, "projected", run.Scorer)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/v1/admin/search/config", `{"config":{"temperature":1}}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/v1/admin/search/config", `{}`).Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPut, "/v1/admin/search/config", `{"config":{}}`, "X-Role", "viewer").Code)
}

func TestSubscriptionsAndWebhooks(t *testing.T) {
	s, h := newTestServer(t, testConfig())

	rr := do(t, h, http.MethodPost, "/v1/subscriptions", `{"url":"http://hooks.example/x","events":["search.completed"],"secret":"k"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	sub := decode[model.Subscription](t, rr)
	assert.Equal(t, "t_demo", sub.TenantID)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/subscriptions", `{"url":"http://x","events":["route.updated"]}`).Code)

	list := decode[struct {
		Items []model.Subscription `json:"items"`
	}](t, do(t, h, http.MethodGet, "/v1/subscriptions", ""))
	require.Len(t, list.Items, 1)
	assert.Empty(t, list.Items[0].Secret, "secrets are not listed")

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/search", searchBody(false, "")).Code)

	deliveries := decode[struct {
		Items []map[string]any `json:"items"`
	}](t, do(t, h, http.MethodGet, "/v1/admin/webhook-deliveries", ""))
	require.Len(t, deliveries.Items, 1)
	assert.Equal(t, "search.completed", deliveries.Items[0]["eventType"])

	id := deliveries.Items[0]["id"].(string)
	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/v1/admin/webhook-deliveries/"+id+"/retry", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/v1/admin/webhook-deliveries/nope/retry", "").Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/v1/subscriptions/"+sub.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/v1/subscriptions/"+sub.ID, "").Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/v1/subscriptions", "", "X-Role", "viewer").Code)
	assert.NotNil(t, s.NewWebhookWorker())
}

func TestSearchMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t, testConfig())
	run := decode[model.Run](t, do(t, h, http.MethodPost, "/v1/search", searchBody(false, ""), "X-Tenant-Id", "t_metrics_api"))
	rr := do(t, h, http.MethodGet, "/v1/admin/search-metrics", "", "X-Tenant-Id", "t_metrics_api")
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode[struct {
		Runs map[string]map[string]any `json:"runs"`
	}](t, rr)
	require.Contains(t, out.Runs, run.ID)
	assert.Equal(t, 74.0, out.Runs[run.ID]["bestReward"])
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS, cfg.RateBurst = 0.001, 1
	_, h := newTestServer(t, cfg)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/runs", "").Code)
	rr := do(t, h, http.MethodGet, "/v1/runs", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/runs", "", "X-Tenant-Id", "t_other").Code, "limits are per tenant")
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code, "health is not limited")
}

func TestDocsAndMetrics(t *testing.T) {
	metrics.RegisterDefault()
	_, h := newTestServer(t, testConfig())

	rr := do(t, h, http.MethodGet, "/openapi.json", "")
	require.Equal(t, http.StatusOK, rr.Code)
	doc := decode[map[string]any](t, rr)
	assert.Contains(t, doc["paths"], "/v1/search")
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/openapi.yaml", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/docs", "").Code)

	do(t, h, http.MethodGet, "/healthz", "")
	rr = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, bytes.Contains(rr.Body.Bytes(), []byte(`http_requests_total{method="GET",path="/healthz",status="200"}`)))

	debug := decode[map[string]any](t, do(t, h, http.MethodGet, "/v1/admin/debug", ""))
	assert.Contains(t, debug, "build")
}
