package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/raphaelgruber/wspiernik/internal/metrics"
	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/raphaelgruber/wspiernik/internal/server"
	"github.com/raphaelgruber/wspiernik/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLen int

func (n fixedLen) Len() int { return int(n) }

func newServer(t *testing.T, facts store.FactStore) (*server.Server, *metrics.Collector) {
	t.Helper()
	collector := metrics.NewCollector()
	srv := server.New(server.Options{
		Version: "test",
		WebSocket: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		Facts:       facts,
		Sessions:    fixedLen(2),
		Connections: fixedLen(3),
		Metrics:     collector,
	})
	return srv, collector
}

func get(t *testing.T, srv *server.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, store.NewMemory())

	rec := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"test","sessions":2,"connections":3}`, rec.Body.String())
}

func TestFacts(t *testing.T) {
	st := store.NewMemory()
	srv, _ := newServer(t, st)

	rec := get(t, srv, "/api/facts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"facts":[],"total_count":0}`, rec.Body.String())

	ctx := context.Background()
	for _, v := range []string{"a", "b", "c"} {
		_, err := st.SaveFacts(ctx, []models.Fact{{Tags: []string{"t"}, Value: v}})
		require.NoError(t, err)
	}

	rec = get(t, srv, "/api/facts?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Facts []struct {
			Value string `json:"value"`
		} `json:"facts"`
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Facts, 1)
	assert.Equal(t, "c", body.Facts[0].Value)
	assert.Equal(t, 3, body.TotalCount)

	rec = get(t, srv, "/api/facts?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type brokenFacts struct{ *store.Memory }

func (brokenFacts) CountFacts(ctx context.Context) (int, error) {
	return 0, store.Wrap("count facts", errors.New("connection refused"))
}

func TestFacts_StoreError(t *testing.T) {
	srv, _ := newServer(t, brokenFacts{store.NewMemory()})

	rec := get(t, srv, "/api/facts")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStats(t *testing.T) {
	srv, collector := newServer(t, store.NewMemory())
	collector.Add(metrics.CountSessionsStarted, 4)

	rec := get(t, srv, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(4), snap.Counters[metrics.CountSessionsStarted])
}

func TestWebSocketRoute(t *testing.T) {
	srv, _ := newServer(t, store.NewMemory())

	rec := get(t, srv, "/ws")
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
