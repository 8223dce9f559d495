package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/config"
	"github.com/SkynetNext/mc-proxy/internal/logger"
	"github.com/SkynetNext/mc-proxy/internal/metrics"
	"github.com/SkynetNext/mc-proxy/internal/protocol/packet"
	"github.com/SkynetNext/mc-proxy/internal/retry"
)

// ErrSessionRejected means the session service did not confirm the join
var ErrSessionRejected = errors.New("session service rejected the join")

// Profile is a verified player profile
type Profile struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Properties []packet.Property `json:"properties"`
}

// UUID parses the profile id, which the service sends without dashes
func (p *Profile) UUID() (uuid.UUID, error) {
	return uuid.Parse(p.ID)
}

// SessionClient checks joins against the session service
type SessionClient struct {
	baseURL   string
	omitLocal bool
	retry     retry.Config
	http      *http.Client
}

// NewSessionClient creates a client from the auth configuration
func NewSessionClient(cfg *config.AuthConfig) *SessionClient {
	return &SessionClient{
		baseURL:   strings.TrimRight(cfg.SessionServer, "/"),
		omitLocal: cfg.ShouldOmitPrivateIP(),
		retry:     retry.Config{MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay},
		http:      &http.Client{Timeout: cfg.Timeout},
	}
}

// HasJoined asks whether username joined with serverID. ip is the client's
// address and may be empty. A negative answer is ErrSessionRejected.
func (c *SessionClient) HasJoined(ctx context.Context, username, serverID, ip string) (*Profile, error) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("serverId", serverID)
	if ip != "" && !(c.omitLocal && isLocalAddress(ip)) {
		q.Set("ip", ip)
	}
	endpoint := c.baseURL + "/session/minecraft/hasJoined?" + q.Encode()

	start := time.Now()
	var profile *Profile
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		p, err := c.fetch(ctx, endpoint)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	metrics.SessionLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.Auth.WithLabelValues("success").Inc()
		return profile, nil
	case errors.Is(err, ErrSessionRejected):
		metrics.Auth.WithLabelValues("rejected").Inc()
		return nil, err
	default:
		metrics.Auth.WithLabelValues("error").Inc()
		logger.L.Warn("Session service request failed",
			zap.String("username", username),
			zap.Error(err))
		return nil, err
	}
}

func (c *SessionClient) fetch(ctx context.Context, endpoint string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("session service returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		// 204 for unknown joins, 403 for blocked clients
		return nil, retry.Permanent(fmt.Errorf("%w: status %d", ErrSessionRejected, resp.StatusCode))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to decode profile: %w", err))
	}
	if _, err := profile.UUID(); err != nil {
		return nil, retry.Permanent(fmt.Errorf("invalid profile id %q: %w", profile.ID, err))
	}
	return &profile, nil
}

// isLocalAddress reports loopback, private and link-local addresses
func isLocalAddress(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}
