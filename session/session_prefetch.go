package session

import (
	"context"
	"sync"
	"time"

	"github.com/enriquebris/goconcurrentqueue"
	"go.uber.org/zap"
)

// Prefetcher downloads patient series in the background so that the next
// navigation finds them on disk.
type Prefetcher struct {
	queue  *goconcurrentqueue.FIFO
	fetch  func(ctx context.Context, patientID string) error
	logger *zap.Logger
	idle   time.Duration

	mu     sync.Mutex
	queued map[string]bool
}

func NewPrefetcher(fetch func(ctx context.Context, patientID string) error, logger *zap.Logger) *Prefetcher {
	return &Prefetcher{
		queue:  goconcurrentqueue.NewFIFO(),
		fetch:  fetch,
		logger: logger,
		idle:   time.Second,
		queued: make(map[string]bool),
	}
}

// Enqueue schedules patientID once. A failed prefetch may be queued again.
func (prefetcher *Prefetcher) Enqueue(patientID string) {
	prefetcher.mu.Lock()
	defer prefetcher.mu.Unlock()
	if prefetcher.queued[patientID] {
		return
	}
	if err := prefetcher.queue.Enqueue(patientID); err != nil {
		prefetcher.logger.Warn("Cannot queue prefetch", zap.String("patient_id", patientID), zap.Error(err))
		return
	}
	prefetcher.queued[patientID] = true
}

func (prefetcher *Prefetcher) Len() int {
	return prefetcher.queue.GetLen()
}

// Run drains the queue until ctx is done.
func (prefetcher *Prefetcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if prefetcher.queue.GetLen() == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(prefetcher.idle):
			}
			continue
		}
		item, err := prefetcher.queue.Dequeue()
		if err != nil || item == nil {
			continue
		}
		prefetcher.process(ctx, item.(string))
	}
}

func (prefetcher *Prefetcher) process(ctx context.Context, patientID string) {
	start := time.Now()
	if err := prefetcher.fetch(ctx, patientID); err != nil {
		prefetcher.logger.Warn("Prefetch failed", zap.String("patient_id", patientID), zap.Error(err))
		prefetcher.mu.Lock()
		delete(prefetcher.queued, patientID)
		prefetcher.mu.Unlock()
		return
	}
	prefetcher.logger.Info("Prefetched patient", zap.String("patient_id", patientID), zap.Duration("took", time.Since(start)))
}
