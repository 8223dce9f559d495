package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkynetNext/mc-proxy/internal/presence"
)

func newTestProxy(t *testing.T) *Proxy {
	t.Helper()
	p, err := New(testConfig(t, closedAddr(t), closedAddr(t)))
	require.NoError(t, err)
	return p
}

func serveAdmin(p *Proxy, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	p.adminHandler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthAndReady(t *testing.T) {
	p := newTestProxy(t)

	rec := serveAdmin(p, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = serveAdmin(p, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	p.draining.Store(true)
	rec = serveAdmin(p, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Draining", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	p := newTestProxy(t)
	rec := serveAdmin(p, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPlayersListing(t *testing.T) {
	p := newTestProxy(t)
	id := uuid.New()
	p.presence.Track(presence.Player{UUID: id, Username: "Steve", OfflineUUID: uuid.New(), Backend: "primary"}, nil)
	p.presence.SetDimension(id, "minecraft:the_nether")

	rec := serveAdmin(p, http.MethodGet, "/players")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var views []playerView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, id.String(), views[0].UUID)
	assert.Equal(t, "Steve", views[0].Username)
	assert.Equal(t, "primary", views[0].Backend)
	assert.Equal(t, "minecraft:the_nether", views[0].Dimension)
}

func TestSwitchEndpointErrors(t *testing.T) {
	p := newTestProxy(t)

	tests := []struct {
		name   string
		method string
		target string
		code   int
	}{
		{"bad uuid", http.MethodPost, "/players/not-a-uuid/switch", http.StatusBadRequest},
		{"offline player", http.MethodPost, "/players/" + uuid.NewString() + "/switch", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/players/" + uuid.NewString() + "/switch", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveAdmin(p, tt.method, tt.target)
			assert.Equal(t, tt.code, rec.Code)
		})
	}

	// tracked but without a live session
	id := uuid.New()
	p.presence.Track(presence.Player{UUID: id, Username: "Alex", Backend: "primary"}, nil)
	rec := serveAdmin(p, http.MethodPost, "/players/"+id.String()+"/switch?backend=secondary")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
