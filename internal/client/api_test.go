package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAPIClientURL(srv.URL)
}

func TestGetHealth(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/health", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"driver":  "opencl",
			"devices": 2,
			"uptime":  "5s",
		})
	})

	health, err := c.GetHealth()
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "opencl", health.Driver)
	assert.Equal(t, 2, health.Devices)
}

func TestGetDevices(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"devices": []map[string]any{
				{"device": 0, "driver": "cuda", "stats": map[string]any{"hashes_attempted": 4096}},
				{"device": 1, "driver": "cuda", "stats": map[string]any{"hashes_attempted": 8192}},
			},
		})
	})

	devices, err := c.GetDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, uint32(1), devices[1].Device)
	assert.Equal(t, uint64(8192), devices[1].Stats.HashesAttempted)
}

func TestSubmitWork(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/work", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xffffffffffffffff", req["boundary"])

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{"height": 60001, "epoch": 2})
	})

	accepted, err := c.SubmitWork(common.HexToHash("0x11"), 60001, ^uint64(0), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(60001), accepted.Height)
	assert.Equal(t, int32(2), accepted.Epoch)
}

func TestServerErrorSurfaced(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "header must be a 32-byte hex string"})
	})

	_, err := c.GetHealth()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header must be a 32-byte hex string")
	assert.Contains(t, err.Error(), "400")
}

func TestNonJSONErrorTruncated(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		for i := 0; i < 50; i++ {
			w.Write([]byte("<html>not json</html>"))
		}
	})

	_, err := c.GetMetrics()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "...")
}

func TestShutdown(t *testing.T) {
	var called bool
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Equal(t, "/api/v1/shutdown", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"status": "shutting down"})
	})

	require.NoError(t, c.Shutdown())
	assert.True(t, called)
}
