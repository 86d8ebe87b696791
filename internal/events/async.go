package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Async is a Notifier that hands events to publishers on a background
// goroutine. When the buffer is full the event is dropped and logged.
type Async struct {
	publishers []Publisher
	queue      chan Event
	timeout    time.Duration
	log        *slog.Logger
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAsync(buffer int, logger *slog.Logger, publishers ...Publisher) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		publishers: publishers,
		queue:      make(chan Event, buffer),
		timeout:    10 * time.Second,
		log:        logger,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) Notify(_ context.Context, e Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.log.Warn("event dropped, notifier closed", "event_id", e.ID, "type", e.Type)
		return
	}
	select {
	case a.queue <- e:
	default:
		a.log.Warn("event dropped, notification queue full", "event_id", e.ID, "type", e.Type)
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for e := range a.queue {
		for _, p := range a.publishers {
			ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
			if err := p.Publish(ctx, e); err != nil {
				a.log.Error("publish event", "event_id", e.ID, "type", e.Type, "error", err)
			}
			cancel()
		}
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
