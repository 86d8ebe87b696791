// Package execution holds the River workers that run outside the request
// path: webhook delivery of domain events and the claim-expiry sweep.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/riverqueue/river"

	"github.com/commentgig/backend/internal/events"
)

type DeliverEventArgs struct {
	WebhookURL string       `json:"webhook_url"`
	Event      events.Event `json:"event"`
}

func (DeliverEventArgs) Kind() string { return "deliver_event" }

func (DeliverEventArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 10}
}

type DeliverEventWorker struct {
	river.WorkerDefaults[DeliverEventArgs]
	httpClient *http.Client
}

func NewDeliverEventWorker() *DeliverEventWorker {
	return &DeliverEventWorker{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// Work posts the event. Network errors and non-2xx responses are returned so
// River retries with backoff; a 4xx other than 408/429 is final.
func (w *DeliverEventWorker) Work(ctx context.Context, job *river.Job[DeliverEventArgs]) error {
	args := job.Args
	body, err := json.Marshal(args.Event)
	if err != nil {
		return river.JobCancel(fmt.Errorf("encode event: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, args.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return river.JobCancel(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", args.Event.ID.String())
	req.Header.Set("X-Event-Type", string(args.Event.Type))

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error calling event webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("event webhook returned status %d", resp.StatusCode)
	default:
		return river.JobCancel(fmt.Errorf("event webhook rejected event with status %d", resp.StatusCode))
	}
}

// InsertDeliverEventFunc enqueues a delivery job. main wires it to the River
// client once the client exists.
type InsertDeliverEventFunc func(ctx context.Context, args DeliverEventArgs) error

// WebhookPublisher is an events.Publisher that hands each event to the job
// queue instead of calling the webhook inline.
type WebhookPublisher struct {
	URL    string
	Insert InsertDeliverEventFunc
}

func (p WebhookPublisher) Publish(ctx context.Context, e events.Event) error {
	if err := p.Insert(ctx, DeliverEventArgs{WebhookURL: p.URL, Event: e}); err != nil {
		return fmt.Errorf("enqueue event delivery: %w", err)
	}
	return nil
}

var _ events.Publisher = WebhookPublisher{}

// ---------------------------------------------------------------------------
// Claim expiry
// ---------------------------------------------------------------------------

// Releaser returns stale claims to the pool.
type Releaser interface {
	ReleaseExpired(ctx context.Context) (int, error)
}

type ReleaseExpiredClaimsArgs struct{}

func (ReleaseExpiredClaimsArgs) Kind() string { return "release_expired_claims" }

type ReleaseExpiredClaimsWorker struct {
	river.WorkerDefaults[ReleaseExpiredClaimsArgs]
	releaser Releaser
	log      *slog.Logger
}

func NewReleaseExpiredClaimsWorker(r Releaser, logger *slog.Logger) *ReleaseExpiredClaimsWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReleaseExpiredClaimsWorker{releaser: r, log: logger}
}

func (w *ReleaseExpiredClaimsWorker) Work(ctx context.Context, _ *river.Job[ReleaseExpiredClaimsArgs]) error {
	n, err := w.releaser.ReleaseExpired(ctx)
	if err != nil {
		return fmt.Errorf("release expired claims: %w", err)
	}
	if n > 0 {
		w.log.Info("claim sweep", "released", n)
	}
	return nil
}

// PeriodicJobs schedules the claim sweep every interval.
func PeriodicJobs(interval time.Duration) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ReleaseExpiredClaimsArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// NewWorkers registers every worker in this package.
func NewWorkers(r Releaser, logger *slog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker(workers, NewDeliverEventWorker())
	river.AddWorker(workers, NewReleaseExpiredClaimsWorker(r, logger))
	return workers
}

// RunSweeper is the in-process stand-in for the periodic job when there is no
// job queue (STORAGE=memory). It blocks until ctx is done.
func RunSweeper(ctx context.Context, r Releaser, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.ReleaseExpired(ctx); err != nil {
				logger.Error("claim sweep failed", "error", err)
			} else if n > 0 {
				logger.Info("claim sweep", "released", n)
			}
		}
	}
}
