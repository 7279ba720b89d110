package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/service"
	"github.com/dhumphrey11/moda-trading/pkg/logger"
	"github.com/dhumphrey11/moda-trading/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisConsumer drains the trigger stream and hands each task to the
// dispatcher.
type RedisConsumer struct {
	cfg         *config.Config
	redisClient *redis.Client
	dispatcher  service.DispatcherService
	logger      *logger.Logger
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// NewRedisConsumer creates a new RedisConsumer.
func NewRedisConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	dispatcher service.DispatcherService,
	log *logger.Logger,
) *RedisConsumer {
	return &RedisConsumer{
		cfg:         cfg,
		redisClient: redisClient,
		dispatcher:  dispatcher,
		logger:      log,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the consumer's task processing loop.
func (c *RedisConsumer) Start(ctx context.Context) {
	c.logger.Info("Redis consumer started")

	stageDeadline, err := time.ParseDuration(c.cfg.Scheduler.StageDeadline)
	if err != nil || stageDeadline <= 0 {
		stageDeadline = 10 * time.Minute
	}

	c.RegisterStreamHandler(ctx, c.dispatcher.ProcessTask, stageDeadline)
}

// RegisterStreamHandler loops fn until shutdown, bounding each iteration.
func (c *RedisConsumer) RegisterStreamHandler(ctx context.Context, fn func(ctx context.Context), timeout time.Duration) {
	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Redis consumer stopping due to context cancellation")
				return
			case <-c.stopChan:
				c.logger.Info("Redis consumer stopping")
				return
			default:
				ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
				fn(ctxTimeout)
				cancel()
			}
		}
	})
}

// Stop gracefully shuts down the consumer.
func (c *RedisConsumer) Stop() {
	close(c.stopChan)
	c.wg.Wait()
	c.logger.Info("Redis consumer stopped")
}
