package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nurpe/aquaroute/internal/config"
	"github.com/nurpe/aquaroute/internal/model"
	"github.com/nurpe/aquaroute/internal/service"
)

const dashboardKey = "ledger:dashboard"

// Client backs the dashboard cache and the per-customer ledger lock.
// A nil *Client is valid and behaves as a disabled cache with no-op locking.
type Client struct {
	rdb          *redis.Client
	locker       *redislock.Client
	lockTTL      time.Duration
	dashboardTTL time.Duration
	log          zerolog.Logger
}

// New connects to Redis. It returns nil when no address is configured or the
// server is unreachable, so the service keeps working with database locks only.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) *Client {
	if cfg.Redis.Addr == "" {
		log.Info().Msg("REDIS_ADDR not set, dashboard cache and distributed lock disabled")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, dashboard cache and distributed lock disabled")
		_ = rdb.Close()
		return nil
	}

	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	return &Client{
		rdb:          rdb,
		locker:       redislock.New(rdb),
		lockTTL:      cfg.Ledger.LockTTL,
		dashboardTTL: cfg.Ledger.DashboardCacheTTL,
		log:          log,
	}
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// Lock obtains the key for lockTTL, retrying briefly before giving up with service.ErrConflict.
func (c *Client) Lock(ctx context.Context, key string) (func(), error) {
	if c == nil {
		return func() {}, nil
	}

	lock, err := c.locker.Obtain(ctx, key, c.lockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s is locked by another request", service.ErrConflict, key)
	}
	if err != nil {
		return nil, err
	}

	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			c.log.Warn().Err(err).Str("key", key).Msg("release ledger lock failed")
		}
	}, nil
}

func (c *Client) Get(ctx context.Context) (*model.Dashboard, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, dashboardKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("read cached dashboard failed")
		}
		return nil, false
	}
	var dashboard model.Dashboard
	if err := json.Unmarshal(raw, &dashboard); err != nil {
		c.log.Warn().Err(err).Msg("decode cached dashboard failed")
		return nil, false
	}
	return &dashboard, true
}

func (c *Client) Set(ctx context.Context, dashboard model.Dashboard) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(dashboard)
	if err != nil {
		c.log.Warn().Err(err).Msg("encode dashboard failed")
		return
	}
	if err := c.rdb.Set(ctx, dashboardKey, raw, c.dashboardTTL).Err(); err != nil {
		c.log.Warn().Err(err).Msg("cache dashboard failed")
	}
}

func (c *Client) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, dashboardKey).Err(); err != nil {
		c.log.Warn().Err(err).Msg("invalidate dashboard failed")
	}
}

var (
	_ service.Locker         = (*Client)(nil)
	_ service.DashboardCache = (*Client)(nil)
)
