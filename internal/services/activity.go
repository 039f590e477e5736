package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"collab-relay/internal/metrics"
	"collab-relay/internal/models"

	"go.uber.org/zap"
)

/*
LEARNING: ACTIVITY WORKER POOL

Presence handlers run under the coordinator lock, so they must never wait on
the database. Record only drops the entry into a bounded channel; a fixed
number of workers drain it and write to the repository.

When the queue is full the entry is dropped and counted. Losing a history row
is acceptable, stalling a room is not.

Shutdown closes the queue and waits for the workers to write what is left.
*/

const storeTimeout = 5 * time.Second

// ActivityService writes presence transitions through a worker pool
type ActivityService struct {
	repo ActivityRepository
	log  *zap.Logger

	jobs    chan models.ActivityEntry
	workers int
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewActivityService creates the pool. Call Start before Record.
func NewActivityService(repo ActivityRepository, workers, queueSize int, log *zap.Logger) *ActivityService {
	return &ActivityService{
		repo:    repo,
		log:     log,
		jobs:    make(chan models.ActivityEntry, queueSize),
		workers: workers,
	}
}

func (s *ActivityService) Start() {
	s.log.Info("🔧 Starting activity worker pool", zap.Int("workers", s.workers))

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *ActivityService) worker(id int) {
	defer s.wg.Done()

	for entry := range s.jobs {
		if err := s.store(entry); err != nil {
			s.log.Warn("failed to store activity",
				zap.Int("worker", id),
				zap.String("room", entry.RoomID),
				zap.String("kind", string(entry.Kind)),
				zap.Error(err),
			)
		}
	}
}

func (s *ActivityService) store(entry models.ActivityEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.repo.Store(ctx, &entry); err != nil {
		return fmt.Errorf("store %s activity: %w", entry.Kind, err)
	}
	return nil
}

// Record queues an entry without blocking. Entries are dropped when the
// queue is full or the service is shutting down.
func (s *ActivityService) Record(entry models.ActivityEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		metrics.DroppedActivity.Inc()
		return
	}

	select {
	case s.jobs <- entry:
	default:
		metrics.DroppedActivity.Inc()
		s.log.Warn("activity queue full, dropping entry",
			zap.String("room", entry.RoomID),
			zap.String("kind", string(entry.Kind)),
		)
	}
}

// Shutdown stops accepting entries and waits until the queue is drained or
// ctx expires.
func (s *ActivityService) Shutdown(ctx context.Context) error {
	s.log.Info("🛑 Shutting down activity service...", zap.Int("pending", s.QueueLength()))

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("✓ Activity service shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("activity drain: %w", ctx.Err())
	}
}

// QueueLength returns the number of entries waiting to be written
func (s *ActivityService) QueueLength() int {
	return len(s.jobs)
}
