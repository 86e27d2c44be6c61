package waitlist

import (
	"context"
	"time"

	"apptly/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sweeper periodically expires entries whose patience or confirmation
// deadline has lapsed. Deadlines are durable timestamps, so a restarted
// process picks up exactly where the previous one left off.
type Sweeper struct {
	service Service
	redis   *redis.Client
	config  *SweeperConfig
	log     *logger.Logger
	// instanceID identifies this process in the shared guard lock
	instanceID string
	done       chan struct{}
}

// SweeperConfig contains configuration for the background sweeper
type SweeperConfig struct {
	Interval time.Duration
}

// DefaultSweeperConfig returns default sweeper configuration
func DefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Interval: 1 * time.Minute,
	}
}

// NewSweeper creates a new background sweeper. The Redis client is
// optional: it only de-duplicates passes across instances, correctness
// never depends on it because Sweep is idempotent.
func NewSweeper(service Service, redisClient *redis.Client, config *SweeperConfig) *Sweeper {
	if config == nil {
		config = DefaultSweeperConfig()
	}

	return &Sweeper{
		service:    service,
		redis:      redisClient,
		config:     config,
		log:        logger.GetDefault(),
		instanceID: uuid.NewString(),
		done:       make(chan struct{}),
	}
}

// Start starts the sweep loop
func (sw *Sweeper) Start(ctx context.Context) {
	sw.log.InfoWithContext(ctx, "starting waitlist sweeper", map[string]interface{}{
		"interval": sw.config.Interval.String(),
	})
	go sw.run(ctx)
}

// Stop stops the sweep loop
func (sw *Sweeper) Stop() {
	close(sw.done)
}

func (sw *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(sw.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.sweepOnce(ctx)
		case <-sw.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweepOnce runs a single guarded sweep pass
func (sw *Sweeper) sweepOnce(ctx context.Context) {
	if !sw.acquireGuard(ctx) {
		// Another instance is already sweeping this tick.
		return
	}
	defer sw.releaseGuard(ctx)

	if _, err := sw.service.Sweep(ctx); err != nil {
		sw.log.ErrorWithContext(ctx, "sweep pass failed", err, nil)
	}
}

// acquireGuard takes the shared sweep lock; without Redis every pass runs
func (sw *Sweeper) acquireGuard(ctx context.Context) bool {
	if sw.redis == nil {
		return true
	}

	ok, err := sw.redis.SetNX(ctx, GetSweepLockKey(), sw.instanceID, sw.config.Interval).Result()
	if err != nil {
		// Redis being down must not stop expiry processing.
		sw.log.ErrorWithContext(ctx, "sweep guard unavailable, sweeping anyway", err, nil)
		return true
	}
	return ok
}

func (sw *Sweeper) releaseGuard(ctx context.Context) {
	if sw.redis == nil {
		return
	}

	// Release only our own guard; an expired lock may belong to another
	// instance by now.
	current, err := sw.redis.Get(ctx, GetSweepLockKey()).Result()
	if err == nil && current == sw.instanceID {
		sw.redis.Del(ctx, GetSweepLockKey())
	}
}
