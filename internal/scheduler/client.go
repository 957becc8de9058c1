// Package scheduler provides deferred CRM sync work backed by asynq. The
// Client enqueues tasks from the API process; the Worker consumes them in a
// separate process so a slow or flaky CRM never blocks request handling.
package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"salesops_backend/internal/distribution/ports"
	"salesops_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleMembershipSync enqueues a rotation resync for the unit. Deduped by
// task id so a burst of membership edits collapses into one pending sync.
func (c *Client) ScheduleMembershipSync(ctx context.Context, unitID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewCRMMembershipSyncTask(CRMMembershipSyncPayload{UnitID: unitID.String()})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID("crm-membership-sync:"+unitID.String()),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	return nil
}

// ScheduleAssignmentRetry enqueues a delayed re-push of a failed assignment.
func (c *Client) ScheduleAssignmentRetry(ctx context.Context, unitID, vendorID uuid.UUID, leadID string, delay time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewCRMAssignmentRetryTask(CRMAssignmentRetryPayload{
		UnitID:   unitID.String(),
		VendorID: vendorID.String(),
		LeadID:   leadID,
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(5),
	)
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}

// Compile-time check that Client implements the scheduler port.
var _ ports.SyncScheduler = (*Client)(nil)
