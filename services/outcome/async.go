package outcome

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store persists outcome events. Implementations may fail; the async sink
// absorbs those failures so they never reach the routing path.
type Store interface {
	Insert(ctx context.Context, event Event) error
}

// Config holds configuration for the AsyncSink.
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 4,
	}
}

// AsyncSink decouples routing from persistence: Record enqueues onto a
// buffered channel and background workers drain it into a Store. A full
// buffer drops the event with a log line rather than blocking a route call.
type AsyncSink struct {
	store       Store
	logger      *zap.Logger
	eventChan   chan Event
	workerCount int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	mu          sync.Mutex
}

// NewAsyncSink creates a sink draining into the given store.
func NewAsyncSink(store Store, logger *zap.Logger, config Config) *AsyncSink {
	ctx, cancel := context.WithCancel(context.Background())

	return &AsyncSink{
		store:       store,
		logger:      logger,
		eventChan:   make(chan Event, config.BufferSize),
		workerCount: config.WorkerCount,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the background workers.
func (s *AsyncSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("outcome sink already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started outcome sink",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", cap(s.eventChan)))

	return nil
}

// Stop drains pending events and shuts the workers down, waiting up to the
// given timeout before forcing cancellation.
func (s *AsyncSink) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("outcome sink not started")
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("stopping outcome sink", zap.Int("pending_events", len(s.eventChan)))
	close(s.eventChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		s.cancel()
		<-done
		return fmt.Errorf("outcome sink stopped before draining all events")
	}
}

// Record implements Sink. It never blocks: when the buffer is full the event
// is dropped and counted in the log.
func (s *AsyncSink) Record(event Event) {
	select {
	case s.eventChan <- event:
	default:
		s.logger.Warn("outcome buffer full, dropping event",
			zap.String("provider_id", event.ProviderID),
			zap.Bool("success", event.Success))
	}
}

// worker drains events into the store until the channel closes.
func (s *AsyncSink) worker(id int) {
	defer s.wg.Done()

	for event := range s.eventChan {
		if err := s.store.Insert(s.ctx, event); err != nil {
			s.logger.Error("failed to persist outcome event",
				zap.Int("worker", id),
				zap.String("event_id", event.ID.String()),
				zap.Error(err))
		}
	}
}
