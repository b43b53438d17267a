package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/distance.spectrum/internal/monitoring"
	"github.com/banshee-data/distance.spectrum/internal/spectrum"
	"github.com/banshee-data/distance.spectrum/internal/spectrum/cluster"
	"github.com/banshee-data/distance.spectrum/internal/spectrum/store"
	"github.com/banshee-data/distance.spectrum/internal/version"
)

func newTestCollector(t *testing.T) *spectrum.DiffCollector {
	t.Helper()
	t.Cleanup(monitoring.Mute())

	base, exp := cluster.NewModel(4), cluster.NewModel(5)
	c, err := base.CreateCluster(40, nil)
	require.NoError(t, err)
	require.NoError(t, c.SetHull(cluster.UnitSquare))
	_, err = exp.CreateCluster(40, &cluster.NormalParams{Deviation: 0.2, ClipRadius: 2})
	require.NoError(t, err)

	dc, err := spectrum.NewDiffCollector(base.Cloud(), exp.Cloud(), spectrum.DiffCollectorConfig{Slots: 16})
	require.NoError(t, err)
	t.Cleanup(dc.Close)
	dc.TriggerBaselineUpdate()
	dc.TriggerExperimentalUpdate()
	dc.Wait()
	return dc
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandleSeries(t *testing.T) {
	dc := newTestCollector(t)
	h := NewServer(ServerConfig{Collector: dc}).Handler()

	rec := do(t, h, http.MethodGet, "/spectrum/series")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body spectrumJSON
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 16, body.Slots)
	assert.Zero(t, body.MaxDistSamples)
	assert.True(t, body.Completed)
	assert.Len(t, body.Baseline.Points, 17)
	assert.Len(t, body.Diff.Points, 17)
	assert.Equal(t, 1.0, body.Experimental.Progress)
	for i, p := range body.Diff.Points {
		assert.InDelta(t, body.Experimental.Points[i][1]-body.Baseline.Points[i][1], p[1], 1e-12)
	}

	rec = do(t, h, http.MethodPost, "/spectrum/series")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleSamples(t *testing.T) {
	dc := newTestCollector(t)
	h := NewServer(ServerConfig{Collector: dc}).Handler()

	rec := do(t, h, http.MethodPost, "/spectrum/samples?max=300")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"max_dist_samples": 300}`, rec.Body.String())
	assert.Equal(t, uint64(300), dc.MaxDistSamples())
	dc.Wait()
	assert.True(t, dc.Completed())

	rec = do(t, h, http.MethodPost, "/spectrum/samples?max=all")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"max_dist_samples": 0}`, rec.Body.String())
	assert.Equal(t, uint64(spectrum.MaxDistances), dc.MaxDistSamples())

	tests := []struct {
		method, target string
		status         int
	}{
		{http.MethodGet, "/spectrum/samples?max=10", http.StatusMethodNotAllowed},
		{http.MethodPost, "/spectrum/samples", http.StatusBadRequest},
		{http.MethodPost, "/spectrum/samples?max=-4", http.StatusBadRequest},
		{http.MethodPost, "/spectrum/samples?max=lots", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.target)
		assert.Equal(t, tt.status, rec.Code, "%s %s", tt.method, tt.target)
		assert.Contains(t, rec.Body.String(), `"error"`)
	}
}

func TestHandleTrigger(t *testing.T) {
	dc := newTestCollector(t)
	h := NewServer(ServerConfig{Collector: dc}).Handler()

	rec := do(t, h, http.MethodPost, "/spectrum/trigger?side=experimental")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"triggered": ["experimental"]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/spectrum/trigger")
	assert.JSONEq(t, `{"triggered": ["baseline", "experimental"]}`, rec.Body.String())
	dc.Wait()

	rec = do(t, h, http.MethodPost, "/spectrum/trigger?side=control")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/spectrum/trigger")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleSpectrumRendersChart(t *testing.T) {
	dc := newTestCollector(t)
	h := NewServer(ServerConfig{Collector: dc}).Handler()

	rec := do(t, h, http.MethodGet, "/spectrum")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "Distance Spectrum")
	assert.Contains(t, body, "experimental")
	assert.Contains(t, body, echartsAssetsPrefix)

	rec = do(t, h, http.MethodPost, "/spectrum")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestHandlePlotPNG(t *testing.T) {
	dc := newTestCollector(t)
	h := NewServer(ServerConfig{Collector: dc}).Handler()

	rec := do(t, h, http.MethodGet, "/spectrum/plot.png?w=4&h=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestWritePNG(t *testing.T) {
	dc := newTestCollector(t)
	path := filepath.Join(t.TempDir(), "spectrum.png")

	require.NoError(t, WritePNG(dc, path, 6*vg.Inch, 4*vg.Inch))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestHandleMetricsAndHealth(t *testing.T) {
	dc := newTestCollector(t)
	h := NewServer(ServerConfig{Collector: dc}).Handler()

	rec := do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `spectrum_sweeps_total{outcome="completed"}`)

	rec = do(t, h, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, map[string]interface{}{"status": "ok", "version": version.String(), "completed": true}, health)
}

func TestHandleWorkspaces(t *testing.T) {
	dc := newTestCollector(t)

	rec := do(t, NewServer(ServerConfig{Collector: dc}).Handler(), http.MethodGet, "/spectrum/workspaces")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	st, err := store.Open(filepath.Join(t.TempDir(), "ws.db"))
	require.NoError(t, err)
	defer st.Close()
	c := cluster.New(rand.New(rand.NewSource(1)), nil)
	c.Fill(3)
	_, err = st.SaveWorkspace(context.Background(), "demo", map[spectrum.Side][]*cluster.Cluster{spectrum.Baseline: {c}})
	require.NoError(t, err)

	rec = do(t, NewServer(ServerConfig{Collector: dc, Store: st}).Handler(), http.MethodGet, "/spectrum/workspaces")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []workspaceJSON
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "demo", list[0].Name)
	assert.Equal(t, 1, list[0].Clusters)
}

func TestStartShutsDownOnCancel(t *testing.T) {
	dc := newTestCollector(t)
	s := NewServer(ServerConfig{Address: "127.0.0.1:0", Collector: dc})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}

func TestStartReportsListenError(t *testing.T) {
	dc := newTestCollector(t)
	s := NewServer(ServerConfig{Address: "256.0.0.1:bad", Collector: dc})

	assert.Error(t, s.Start(context.Background()))
}
