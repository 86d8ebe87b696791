package execution

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/commentgig/backend/internal/events"
)

func deliverJob(url string, e events.Event) *river.Job[DeliverEventArgs] {
	return &river.Job[DeliverEventArgs]{
		JobRow: &rivertype.JobRow{ID: 1, Attempt: 1},
		Args:   DeliverEventArgs{WebhookURL: url, Event: e},
	}
}

func TestDeliverEventWorkerPostsEvent(t *testing.T) {
	var got events.Event
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Event-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	e := events.New(events.SubOrderApproved, uuid.New(), time.Now(), map[string]string{"amount": "10.00"})
	if err := NewDeliverEventWorker().Work(context.Background(), deliverJob(srv.URL, e)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if got.ID != e.ID || header != string(events.SubOrderApproved) {
		t.Errorf("received %+v with type header %q", got, header)
	}
}

func TestDeliverEventWorkerStatusHandling(t *testing.T) {
	tests := []struct {
		status  int
		wantErr bool
	}{
		{http.StatusOK, false},
		{http.StatusAccepted, false},
		{http.StatusInternalServerError, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := NewDeliverEventWorker().Work(context.Background(), deliverJob(srv.URL, events.New(events.WithdrawalSettled, uuid.New(), time.Now(), nil)))
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWebhookPublisherEnqueues(t *testing.T) {
	var mu sync.Mutex
	var queued []DeliverEventArgs
	p := WebhookPublisher{URL: "https://hooks.example.com/gig", Insert: func(_ context.Context, args DeliverEventArgs) error {
		mu.Lock()
		defer mu.Unlock()
		queued = append(queued, args)
		return nil
	}}
	e := events.New(events.SubOrderRejected, uuid.New(), time.Now(), nil)
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(queued) != 1 || queued[0].Event.ID != e.ID || queued[0].WebhookURL != p.URL {
		t.Errorf("queued = %+v", queued)
	}

	failing := WebhookPublisher{URL: p.URL, Insert: func(context.Context, DeliverEventArgs) error { return errors.New("queue down") }}
	if err := failing.Publish(context.Background(), e); err == nil {
		t.Error("expected enqueue failure to surface")
	}
}

type countingReleaser struct {
	calls atomic.Int32
	err   error
}

func (r *countingReleaser) ReleaseExpired(context.Context) (int, error) {
	r.calls.Add(1)
	return 2, r.err
}

func TestReleaseExpiredClaimsWorker(t *testing.T) {
	r := &countingReleaser{}
	w := NewReleaseExpiredClaimsWorker(r, nil)
	job := &river.Job[ReleaseExpiredClaimsArgs]{JobRow: &rivertype.JobRow{ID: 2}}
	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("Work: %v", err)
	}
	r.err = errors.New("db down")
	if err := w.Work(context.Background(), job); err == nil {
		t.Error("expected sweep error to be returned for retry")
	}
	if r.calls.Load() != 2 {
		t.Errorf("calls = %d", r.calls.Load())
	}
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	r := &countingReleaser{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, r, 5*time.Millisecond, nil)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for r.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("sweeper never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestPeriodicJobs(t *testing.T) {
	if jobs := PeriodicJobs(time.Minute); len(jobs) != 1 {
		t.Fatalf("periodic jobs = %d", len(jobs))
	}
	if (DeliverEventArgs{}).Kind() == (ReleaseExpiredClaimsArgs{}).Kind() {
		t.Error("job kinds must differ")
	}
}
