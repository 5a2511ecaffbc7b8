package core

import (
	"context"
	"sync"
	"time"
)

// healthChecker runs a probe at regular intervals to detect a dead link
// before the next statement trips over it. The probe goes through the
// connection's dedicated session; pinging the pool directly would block
// behind the single checked-out slot.
type healthChecker struct {
	ping     func(ctx context.Context) error
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup

	mu       sync.RWMutex
	lastErr  error
	lastPing time.Time
}

func newHealthChecker(ping func(context.Context) error, interval time.Duration) *healthChecker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &healthChecker{
		ping:     ping,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (h *healthChecker) start() {
	h.wg.Add(1)
	go h.run()
}

func (h *healthChecker) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.probe()
		case <-h.stop:
			return
		}
	}
}

func (h *healthChecker) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := h.ping(ctx)

	h.mu.Lock()
	h.lastErr = err
	h.lastPing = time.Now()
	h.mu.Unlock()
}

func (h *healthChecker) lastError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastErr
}

func (h *healthChecker) stopAndWait() {
	close(h.stop)
	h.wg.Wait()
}
