package consul

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const healthResponse = `[
  {"Node": {"Address": "10.0.0.1"}, "Service": {"Address": "", "Port": 25566, "Meta": {"backend": "survival"}}},
  {"Node": {"Address": "10.0.0.2"}, "Service": {"Address": "10.0.1.2", "Port": 25567, "Meta": {"backend": "creative"}}},
  {"Node": {"Address": "10.0.0.3"}, "Service": {"Address": "10.0.1.3", "Port": 25568, "Meta": {"backend": "creative"}}},
  {"Node": {"Address": "10.0.0.4"}, "Service": {"Address": "10.0.1.4", "Port": 25569, "Meta": {}}}
]`

func consulServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.URL.Path != "/v1/health/service/minecraft" || r.URL.Query().Get("passing") != "true" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(healthResponse))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve(t *testing.T) {
	srv := consulServer(t, nil)
	d := NewDiscovery(srv.URL, time.Minute)

	addrs, err := d.Resolve(context.Background(), "minecraft")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"survival": "10.0.0.1:25566",
		"creative": "10.0.1.2:25567",
	}, addrs)
}

func TestResolveErrorStatus(t *testing.T) {
	srv := consulServer(t, nil)
	d := NewDiscovery(srv.URL, time.Minute)

	_, err := d.Resolve(context.Background(), "other")
	assert.ErrorContains(t, err, "status 404")
}

func TestWatchRefreshes(t *testing.T) {
	var hits atomic.Int32
	srv := consulServer(t, &hits)
	d := NewDiscovery(srv.URL, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan map[string]string, 16)
	done := make(chan struct{})
	go func() {
		d.Watch(ctx, "minecraft", func(m map[string]string) {
			select {
			case results <- m:
			default:
			}
		})
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case m := <-results:
			assert.Equal(t, "10.0.0.1:25566", m["survival"])
		case <-time.After(2 * time.Second):
			t.Fatal("no discovery result")
		}
	}
	cancel()
	<-done
	assert.GreaterOrEqual(t, hits.Load(), int32(2))
}
