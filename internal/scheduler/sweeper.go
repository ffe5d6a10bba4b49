package scheduler

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"churnwatch_backend/platform/logger"
)

const defaultHealSweepInterval = time.Hour

// Sweeper periodically enqueues the corrective sweep task so drifted records
// and missed reminders get picked up even when nobody lists them.
type Sweeper struct {
	client   *Client
	log      *logger.Logger
	interval time.Duration
}

func NewSweeper(client *Client, log *logger.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultHealSweepInterval
	}
	return &Sweeper{client: client, log: log, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.client == nil {
		return
	}

	s.enqueue(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueue(ctx)
		}
	}
}

func (s *Sweeper) enqueue(ctx context.Context) {
	_, err := s.client.client.EnqueueContext(ctx, NewHealSweepTask(), asynq.Queue(s.client.queue))
	if err != nil {
		s.log.Warn("failed to enqueue heal sweep", "error", err)
	}
}
