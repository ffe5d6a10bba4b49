package scheduler

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"churnwatch_backend/internal/churn/transport"
	"churnwatch_backend/platform/apperr"
	"churnwatch_backend/platform/config"
	"churnwatch_backend/platform/logger"
)

// WorkflowService is the slice of the churn service the worker needs.
type WorkflowService interface {
	ActivateDueRecord(ctx context.Context, rid string) error
	ProcessDueReminders(ctx context.Context) (int, error)
	HealAll(ctx context.Context) (transport.HealResponse, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	svc    WorkflowService
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, svc WorkflowService, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		svc:    svc,
		log:    log,
	}

	mux.HandleFunc(TaskReminderDue, w.handleReminderDue)
	mux.HandleFunc(TaskHealSweep, w.handleHealSweep)

	return w, nil
}

func (w *Worker) handleReminderDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReminderDuePayload(task)
	if err != nil {
		return err
	}

	err = w.svc.ActivateDueRecord(ctx, payload.RID)
	if apperr.Is(err, apperr.KindNotFound) {
		// Record deleted since the task was queued; nothing to do.
		return nil
	}
	return err
}

func (w *Worker) handleHealSweep(ctx context.Context, _ *asynq.Task) error {
	report, err := w.svc.HealAll(ctx)
	if err != nil {
		return err
	}

	// Reminders missed by per-record tasks (enqueue failures, downtime)
	// are caught here.
	activated, err := w.svc.ProcessDueReminders(ctx)
	if err != nil {
		return err
	}

	w.log.Info("heal sweep finished",
		"scanned", report.Scanned,
		"corrected", report.Corrected,
		"skipped", report.Skipped,
		"remindersActivated", activated,
	)
	return nil
}

// Run serves tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
