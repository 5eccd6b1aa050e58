package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MathewBravo/realtime-db/internal/configs"
	"github.com/MathewBravo/realtime-db/internal/connector"
	"github.com/MathewBravo/realtime-db/internal/source"
	"github.com/MathewBravo/realtime-db/pkg/poller"
	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

func newTestServer(t *testing.T) (*httptest.Server, *source.MockSource) {
	t.Helper()
	src := source.NewMockSource()
	src.Set("users", rowset.Row{"id": int64(1), "name": "alex"})

	engine := poller.New(src, poller.WithClock(testclock.NewClock(time.Now())), poller.WithLogger(zerolog.Nop()))
	conn := connector.NewPollingConnector(engine, configs.ListenConfig{
		DefaultInterval: time.Second,
		Tables:          map[string]configs.TableListen{"users": {}},
	})
	eventCh, err := conn.Start()
	require.NoError(t, err)
	go func() {
		for range eventCh {
		}
	}()

	srv := httptest.NewServer(Router(NewHandlers(conn, time.Second, nil)))
	t.Cleanup(func() {
		srv.Close()
		_ = conn.Stop()
		_ = engine.Close()
	})
	return srv, src
}

func do(t *testing.T, method, url string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/healthz")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["data"])
}

func TestListTables(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/tables")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	tables := body["data"].([]any)
	require.Len(t, tables, 1)
	first := tables[0].(map[string]any)
	assert.Equal(t, "users", first["table"])
	assert.Equal(t, "1s", first["interval"])
}

func TestSnapshot(t *testing.T) {
	srv, _ := newTestServer(t)

	require.Eventually(t, func() bool {
		_, body := do(t, http.MethodGet, srv.URL+"/tables/users/snapshot")
		rows, _ := body["data"].([]any)
		return len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, body := do(t, http.MethodGet, srv.URL+"/tables/missing/snapshot")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "missing")
}

func TestListenAndUnlisten(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/tables/orders/listen?interval=250ms")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "250ms", body["data"].(map[string]any)["interval"])

	_, body = do(t, http.MethodGet, srv.URL+"/tables")
	assert.Len(t, body["data"].([]any), 2)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/tables/orders/listen")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/tables/orders/listen")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListen_BadInterval(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/tables/orders/listen?interval=soon")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "invalid interval")

	resp, _ = do(t, http.MethodPost, srv.URL+"/tables/orders/listen?interval=-1s")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsDisabled(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
