package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/config"
	"github.com/SkynetNext/mc-proxy/internal/logger"
)

// Client is a Redis client wrapper. It stores last-used backends, mirrors
// the online player list and carries switch requests from other processes.
type Client struct {
	rdb     *redis.Client
	prefix  string
	lastTTL time.Duration
}

// NewClient creates a new Redis client
func NewClient(cfg *config.RedisConfig) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &Client{
		rdb:     rdb,
		prefix:  cfg.KeyPrefix,
		lastTTL: cfg.LastServerTTL,
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// key generates full key with prefix
func (c *Client) key(suffix string) string {
	return c.prefix + suffix
}

func (c *Client) lastBackendKey(id uuid.UUID) string {
	return c.key("last-backend:" + id.String())
}

// LastBackend implements presence.BackendStore
func (c *Client) LastBackend(ctx context.Context, id uuid.UUID) (string, bool, error) {
	backend, err := c.rdb.Get(ctx, c.lastBackendKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load last backend: %w", err)
	}
	return backend, true, nil
}

// SetLastBackend implements presence.BackendStore
func (c *Client) SetLastBackend(ctx context.Context, id uuid.UUID, backend string) error {
	if err := c.rdb.Set(ctx, c.lastBackendKey(id), backend, c.lastTTL).Err(); err != nil {
		return fmt.Errorf("failed to store last backend: %w", err)
	}
	return nil
}

// OnlinePlayer is the mirrored record of a connected player
type OnlinePlayer struct {
	UUID     string    `json:"uuid"`
	Username string    `json:"username"`
	Backend  string    `json:"backend"`
	Since    time.Time `json:"since"`
}

// MarkOnline records a player in the shared online hash
func (c *Client) MarkOnline(ctx context.Context, p OnlinePlayer) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := c.rdb.HSet(ctx, c.key("online"), p.UUID, data).Err(); err != nil {
		return fmt.Errorf("failed to mark player online: %w", err)
	}
	return nil
}

// MarkOffline removes a player from the shared online hash
func (c *Client) MarkOffline(ctx context.Context, id uuid.UUID) error {
	if err := c.rdb.HDel(ctx, c.key("online"), id.String()).Err(); err != nil {
		return fmt.Errorf("failed to mark player offline: %w", err)
	}
	return nil
}

// ClearOnline drops the whole online hash, used at startup and shutdown
func (c *Client) ClearOnline(ctx context.Context) error {
	return c.rdb.Del(ctx, c.key("online")).Err()
}

// OnlinePlayers loads the mirrored online list
func (c *Client) OnlinePlayers(ctx context.Context) ([]OnlinePlayer, error) {
	data, err := c.rdb.HGetAll(ctx, c.key("online")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load online players: %w", err)
	}
	players := make([]OnlinePlayer, 0, len(data))
	for _, raw := range data {
		var p OnlinePlayer
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue // Skip invalid entry
		}
		players = append(players, p)
	}
	return players, nil
}

// SwitchRequest asks the proxy to move a player to another backend
type SwitchRequest struct {
	UUID    uuid.UUID `json:"uuid"`
	Backend string    `json:"backend"`
}

func parseSwitchRequest(payload string) (SwitchRequest, error) {
	var req SwitchRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return req, err
	}
	if req.UUID == uuid.Nil || req.Backend == "" {
		return req, fmt.Errorf("switch request needs uuid and backend")
	}
	return req, nil
}

// PublishSwitch publishes a switch request
func (c *Client) PublishSwitch(ctx context.Context, req SwitchRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, c.key("switch"), data).Err()
}

// WatchSwitchRequests delivers switch requests published on the switch channel until ctx is done
func (c *Client) WatchSwitchRequests(ctx context.Context, callback func(SwitchRequest)) error {
	pubsub := c.rdb.Subscribe(ctx, c.key("switch"))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			req, err := parseSwitchRequest(msg.Payload)
			if err != nil {
				logger.L.Warn("Ignoring malformed switch request",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			callback(req)
		}
	}
}
