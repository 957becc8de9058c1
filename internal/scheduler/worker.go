package scheduler

import (
	"context"
	"fmt"

	"salesops_backend/internal/crm"
	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker consumes deferred CRM sync tasks. A returned error makes asynq
// retry the task with its default backoff.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	sync   *crm.Service
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sync *crm.Service, log *logger.Logger) (*Worker, error) {
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
		sync:   sync,
		log:    log,
	}

	mux.HandleFunc(TaskCRMMembershipSync, w.handleMembershipSync)
	mux.HandleFunc(TaskCRMAssignmentRetry, w.handleAssignmentRetry)

	return w, nil
}

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

func (w *Worker) handleMembershipSync(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCRMMembershipSyncPayload(task)
	if err != nil {
		return err
	}

	unitID, err := uuid.Parse(payload.UnitID)
	if err != nil {
		return err
	}

	return w.sync.SyncMembership(ctx, unitID)
}

func (w *Worker) handleAssignmentRetry(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCRMAssignmentRetryPayload(task)
	if err != nil {
		return err
	}

	unitID, err := uuid.Parse(payload.UnitID)
	if err != nil {
		return err
	}

	vendorID, err := uuid.Parse(payload.VendorID)
	if err != nil {
		return err
	}

	fetch, err := w.sync.FetchLead(ctx, payload.LeadID)
	if err != nil {
		return err
	}

	result := w.sync.PushAssignment(ctx, unitID, vendorID, payload.LeadID, fetch.State)
	if !result.Synced && !result.Skipped {
		return fmt.Errorf("crm assignment retry failed: %s", result.Reason)
	}

	w.log.Info("crm assignment retried", "unit_id", unitID, "vendor_id", vendorID,
		"lead_id", payload.LeadID, "updated", result.LeadUpdated)
	return nil
}
