// Package consul resolves backend addresses from the Consul health API.
package consul

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/logger"
)

// BackendMetaKey is the service meta key naming the backend an instance serves
const BackendMetaKey = "backend"

// ServiceEntry represents a service instance from Consul
type ServiceEntry struct {
	Address string
	Port    int
	Meta    map[string]string
}

// Addr returns host:port of the instance
func (e ServiceEntry) Addr() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

// Discovery queries Consul for healthy game server instances
type Discovery struct {
	consulAddress   string
	httpClient      *http.Client
	refreshInterval time.Duration
}

// NewDiscovery creates a new Consul service discovery instance
func NewDiscovery(consulAddress string, refreshInterval time.Duration) *Discovery {
	return &Discovery{
		consulAddress: consulAddress,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		refreshInterval: refreshInterval,
	}
}

// DiscoverServices returns the passing instances of serviceName
func (d *Discovery) DiscoverServices(ctx context.Context, serviceName string) ([]ServiceEntry, error) {
	// /v1/health/service/{service}?passing
	u := fmt.Sprintf("%s/v1/health/service/%s?passing=true", d.consulAddress, url.PathEscape(serviceName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query Consul: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("consul API returned status %d: %s", resp.StatusCode, string(body))
	}

	var entries []struct {
		Node struct {
			Address string `json:"Address"`
		} `json:"Node"`
		Service struct {
			Address string            `json:"Address"`
			Port    int               `json:"Port"`
			Meta    map[string]string `json:"Meta"`
		} `json:"Service"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	result := make([]ServiceEntry, 0, len(entries))
	for _, e := range entries {
		addr := e.Service.Address
		if addr == "" {
			// services registered without an address use the node's
			addr = e.Node.Address
		}
		result = append(result, ServiceEntry{Address: addr, Port: e.Service.Port, Meta: e.Service.Meta})
	}
	return result, nil
}

// Resolve maps backend names to addresses using the backend meta key. The
// first healthy instance of each backend wins.
func (d *Discovery) Resolve(ctx context.Context, serviceName string) (map[string]string, error) {
	entries, err := d.DiscoverServices(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	addrs := make(map[string]string)
	for _, e := range entries {
		name := e.Meta[BackendMetaKey]
		if name == "" {
			logger.L.Debug("Skipping instance without backend meta",
				zap.String("service", serviceName),
				zap.String("addr", e.Addr()))
			continue
		}
		if _, seen := addrs[name]; !seen {
			addrs[name] = e.Addr()
		}
	}
	return addrs, nil
}

// Watch resolves serviceName every refresh interval and passes the result to
// callback until ctx is done. Failed lookups are logged and skipped.
func (d *Discovery) Watch(ctx context.Context, serviceName string, callback func(map[string]string)) {
	ticker := time.NewTicker(d.refreshInterval)
	defer ticker.Stop()

	for {
		addrs, err := d.Resolve(ctx, serviceName)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.L.Error("Consul service discovery failed",
				zap.String("service", serviceName),
				zap.Error(err))
		} else {
			callback(addrs)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
