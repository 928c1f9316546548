package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/repository"
)

// blpopTimeout is the per-call blocking window on the queue. Short enough
// that shutdown and health transitions are noticed promptly.
const blpopTimeout = 5 * time.Second

// QueuePayload is the wire format of one queued render job.
type QueuePayload struct {
	JobID     string `json:"jobId"`
	ProjectID string `json:"projectId"`
}

// Renderer is the controller surface the acquirer drives.
type Renderer interface {
	Render(ctx context.Context, jobID models.ULID) error
}

// Acquirer feeds jobs to the controller from two concurrent channels: a
// Redis queue and a database poller. At most one job is in flight per
// process, enforced by the busy flag.
type Acquirer struct {
	queue        *redis.Client
	queueName    string
	jobs         repository.RenderJobRepository
	renderer     Renderer
	pollInterval time.Duration
	log          *slog.Logger

	busy         atomic.Bool
	queueHealthy atomic.Bool
	wg           sync.WaitGroup
}

// NewAcquirer creates an acquirer. queue may be nil, in which case the
// poller alone carries the workload.
func NewAcquirer(queue *redis.Client, queueName string, jobs repository.RenderJobRepository, renderer Renderer, pollInterval time.Duration, log *slog.Logger) *Acquirer {
	return &Acquirer{
		queue:        queue,
		queueName:    queueName,
		jobs:         jobs,
		renderer:     renderer,
		pollInterval: pollInterval,
		log:          log,
	}
}

// Busy reports whether a job is currently in flight.
func (a *Acquirer) Busy() bool {
	return a.busy.Load()
}

// QueueConnected reports whether the queue channel is healthy.
func (a *Acquirer) QueueConnected() bool {
	return a.queueHealthy.Load()
}

// Run blocks until ctx is canceled, consuming from the queue and polling
// the store. The in-flight job, if any, finishes before Run returns.
func (a *Acquirer) Run(ctx context.Context) {
	if a.queue != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.consumeQueue(ctx)
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pollLoop(ctx)
	}()

	a.wg.Wait()
}

// Submit runs a pushed job under the busy-flag discipline. It returns false
// without rendering when another job is already in flight.
func (a *Acquirer) Submit(jobID models.ULID) bool {
	if !a.busy.CompareAndSwap(false, true) {
		return false
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.busy.Store(false)
		a.render(context.Background(), jobID)
	}()
	return true
}

// consumeQueue is the primary acquisition channel.
func (a *Acquirer) consumeQueue(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := a.queue.BLPop(ctx, blpopTimeout, a.queueName).Result()
		switch {
		case err == redis.Nil:
			a.queueHealthy.Store(true)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			if a.queueHealthy.Swap(false) {
				a.log.Warn("queue unreachable, poller takes over", slog.String("error", err.Error()))
			}
			select {
			case <-time.After(blpopTimeout):
			case <-ctx.Done():
				return
			}
			continue
		}
		a.queueHealthy.Store(true)

		// BLPop returns [key, value].
		payload, err := parsePayload(res[1])
		if err != nil {
			a.log.Error("discarding malformed queue payload", slog.String("payload", res[1]), slog.String("error", err.Error()))
			continue
		}
		jobID, err := models.ParseULID(payload.JobID)
		if err != nil {
			a.log.Error("discarding queue payload with invalid job ID", slog.String("job_id", payload.JobID))
			continue
		}

		if !a.busy.CompareAndSwap(false, true) {
			// Hand visibility back so another consumer takes the job.
			if err := a.queue.LPush(ctx, a.queueName, res[1]).Err(); err != nil {
				a.log.Error("requeueing job while busy", slog.String("job_id", payload.JobID), slog.String("error", err.Error()))
			}
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		a.render(ctx, jobID)
		a.busy.Store(false)
	}
}

// pollLoop is the fallback acquisition channel. It only claims work while
// the queue channel is down; a reconnected queue resumes primary
// responsibility.
func (a *Acquirer) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if a.queue != nil && a.queueHealthy.Load() {
			continue
		}
		if a.busy.Load() {
			continue
		}

		job, err := a.jobs.NextQueued(ctx)
		if err != nil {
			a.log.Warn("polling for queued jobs", slog.String("error", err.Error()))
			continue
		}
		if job == nil {
			continue
		}

		if !a.busy.CompareAndSwap(false, true) {
			continue
		}
		a.render(ctx, job.ID)
		a.busy.Store(false)
	}
}

// render invokes the controller, treating a lost claim race as routine.
func (a *Acquirer) render(ctx context.Context, jobID models.ULID) {
	err := a.renderer.Render(ctx, jobID)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrJobNotClaimable):
		a.log.Debug("job already claimed elsewhere", slog.String("job_id", jobID.String()))
	default:
		// The controller has already written the failed state; nothing
		// propagates past the acquirer.
		a.log.Error("job failed", slog.String("job_id", jobID.String()), slog.String("error", err.Error()))
	}
}

func parsePayload(raw string) (*QueuePayload, error) {
	var p QueuePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	if p.JobID == "" {
		return nil, errors.New("payload missing jobId")
	}
	return &p, nil
}
