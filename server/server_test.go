package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/paymesh"
	"github.com/hupe1980/paymesh/config"
	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/logging"
	"github.com/hupe1980/paymesh/model"
	"github.com/hupe1980/paymesh/session"
)

// newTestServer wires a full mesh with a scripted model behind the HTTP
// router and returns the test server plus the model for enqueuing
// responses.
func newTestServer(t *testing.T) (*httptest.Server, *model.MockModel, *paymesh.PayMesh) {
	t.Helper()

	mdl := model.NewMockModel("scripted", "mock")

	cfg := config.DefaultConfig()
	cfg.Model.Provider = "mock"
	cfg.Model.Name = "scripted"

	mesh, err := paymesh.New(func(o *paymesh.Options) {
		o.Config = cfg
		o.Model = mdl
	})
	require.NoError(t, err)

	srv := New(mesh, cfg.Server, func(o *Options) {
		o.Version = "test"
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		require.NoError(t, mesh.Close())
	})

	return ts, mdl, mesh
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp
}

type sessionEnvelope struct {
	Session core.SessionSnapshot `json:"session"`
	History []core.Message       `json:"history"`
}

type errorEnvelope struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var body struct {
		Status   string `json:"status"`
		Service  string `json:"service"`
		Version  string `json:"version"`
		Sessions struct {
			Active int `json:"active"`
			Max    int `json:"max"`
		} `json:"sessions"`
		Limits struct {
			MaxHops     int    `json:"max_hops"`
			ToolTimeout string `json:"tool_timeout"`
			IdleTimeout string `json:"idle_timeout"`
		} `json:"limits"`
	}

	resp := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "paymesh", body.Service)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, 0, body.Sessions.Active)
	assert.Equal(t, 100, body.Sessions.Max)
	assert.Equal(t, 10, body.Limits.MaxHops)
	assert.Equal(t, "30s", body.Limits.ToolTimeout)
	assert.Equal(t, "1h0m0s", body.Limits.IdleTimeout)
}

func TestStatusEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var st paymesh.Status
	resp := getJSON(t, ts.URL+"/status", &st)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.True(t, st.Ready)
	assert.Equal(t, "planner", st.Entry)
	assert.Len(t, st.Roles, 9)
	assert.Contains(t, st.Tools, "charge-token")
	assert.Contains(t, st.Tools, "real-time-search")
	assert.Equal(t, "mock", st.Model.Provider)
	assert.True(t, st.SkyfireMock)
	assert.True(t, st.DappierMock)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "paymesh_sessions_active")
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)

	var created sessionEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, created.Session.ID)
	assert.Equal(t, core.StatusActive, created.Session.Status)

	var list struct {
		Sessions []core.SessionSnapshot `json:"sessions"`
		Stats    session.Stats          `json:"stats"`
	}
	getJSON(t, ts.URL+"/sessions", &list)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, created.Session.ID, list.Sessions[0].ID)
	assert.Equal(t, 1, list.Stats.Active)

	var got sessionEnvelope
	resp = getJSON(t, ts.URL+"/sessions/"+created.Session.ID, &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.Session.ID, got.Session.ID)
	assert.Empty(t, got.History)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+created.Session.ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Deleting again stays 204.
	resp, err = http.DefaultClient.Do(req.Clone(req.Context()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var missing errorEnvelope
	resp = getJSON(t, ts.URL+"/sessions/"+created.Session.ID, &missing)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(core.KindSessionNotFound), missing.Error.Kind)
}

func TestCleanupAndStatsEndpoints(t *testing.T) {
	ts, _, mesh := newTestServer(t)

	_, err := mesh.NewSession(context.Background())
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/sessions/cleanup", "application/json", nil)
	require.NoError(t, err)

	var cleaned struct {
		Removed int `json:"removed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cleaned))
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, cleaned.Removed)

	var stats session.Stats
	getJSON(t, ts.URL+"/sessions/stats", &stats)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, uint64(1), stats.Created)
	assert.Equal(t, 100, stats.MaxSessions)
}

func TestStatusForKind(t *testing.T) {
	cases := []struct {
		kind core.ErrorKind
		want int
	}{
		{core.KindValidation, http.StatusBadRequest},
		{core.KindSessionNotFound, http.StatusNotFound},
		{core.KindSessionExpired, http.StatusGone},
		{core.KindCapacity, http.StatusServiceUnavailable},
		{core.KindConcurrentTurn, http.StatusConflict},
		{core.KindConfiguration, http.StatusInternalServerError},
		{core.KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, statusForKind(tc.kind), "kind %s", tc.kind)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	srv := &Server{logger: logging.NoOpLogger{}}

	h := srv.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(core.KindInternal), body.Error.Kind)
	assert.Equal(t, "internal server error", body.Error.Message)
}

func TestRequestIDMiddleware(t *testing.T) {
	h := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
