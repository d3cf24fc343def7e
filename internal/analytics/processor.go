package analytics

import (
	"SLINK-Backend/internal/domain"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Recorder is the link event side-channel.
type Recorder interface {
	Record(ctx context.Context, link *domain.Link, deleted bool) error
}

// LinkEvent is a snapshot of link metadata sent to the event sink.
type LinkEvent struct {
	Timestamp time.Time `json:"timestamp"`
	LinkID    string    `json:"link_id"`
	Domain    string    `json:"domain"`
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	TagIDs    []string  `json:"tag_ids"`
	ProjectID string    `json:"project_id"`
	Deleted   bool      `json:"deleted"`
}

// NewLinkEvent builds the event for link.
func NewLinkEvent(link *domain.Link, deleted bool, at time.Time) *LinkEvent {
	ev := &LinkEvent{
		Timestamp: at.UTC(),
		LinkID:    link.ID,
		Domain:    link.Domain,
		Key:       link.Key,
		URL:       link.URL,
		TagIDs:    link.TagIDs(),
		Deleted:   deleted,
	}
	if link.ProjectID != nil {
		ev.ProjectID = *link.ProjectID
	}
	return ev
}

// Sink delivers a single event. Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, ev *LinkEvent) error
}

// ProcessorConfig holds configuration for the event processor
type ProcessorConfig struct {
	WorkerCount     int           // Number of worker goroutines
	BufferSize      int           // Size of the job queue buffer
	RetryAttempts   int           // Number of retry attempts for failed jobs
	RetryDelay      time.Duration // Base delay between retries
	ShutdownTimeout time.Duration // Time to wait for graceful shutdown
	AttemptTimeout  time.Duration // Timeout for a single delivery attempt
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() ProcessorConfig {
	return ProcessorConfig{
		WorkerCount:     3,
		BufferSize:      1000,
		RetryAttempts:   3,
		RetryDelay:      time.Second,
		ShutdownTimeout: 30 * time.Second,
		AttemptTimeout:  30 * time.Second,
	}
}

// Processor delivers link events asynchronously with retries
type Processor struct {
	config   ProcessorConfig
	sink     Sink
	log      *zap.Logger
	jobQueue chan *LinkEvent
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex
	now      func() time.Time
}

// NewProcessor creates a new event processor
func NewProcessor(sink Sink, log *zap.Logger, config ProcessorConfig) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = 30 * time.Second
	}
	if config.RetryAttempts < 1 {
		config.RetryAttempts = 1
	}

	return &Processor{
		config:   config,
		sink:     sink,
		log:      log,
		jobQueue: make(chan *LinkEvent, config.BufferSize),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
}

// Start begins processing events
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("processor already started")
	}

	p.log.Info("starting link event processor",
		zap.Int("workers", p.config.WorkerCount),
		zap.Int("buffer_size", p.config.BufferSize),
		zap.Int("retry_attempts", p.config.RetryAttempts),
	)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.started = true
	return nil
}

// Stop drains the queue and waits for the workers to finish
func (p *Processor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return fmt.Errorf("processor not started")
	}

	p.log.Info("stopping link event processor")

	// Closing the queue lets workers drain what is already buffered
	close(p.jobQueue)
	p.started = false

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.log.Info("link event processor stopped gracefully")
	case <-time.After(p.config.ShutdownTimeout):
		p.cancel()
		p.log.Warn("link event processor shutdown timeout reached")
		return fmt.Errorf("shutdown timeout reached")
	}

	return nil
}

// Record queues an event for link. It never blocks on the sink.
func (p *Processor) Record(_ context.Context, link *domain.Link, deleted bool) error {
	return p.Submit(NewLinkEvent(link, deleted, p.now()))
}

// Submit queues an event for asynchronous delivery
func (p *Processor) Submit(ev *LinkEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		return fmt.Errorf("processor not started")
	}

	select {
	case p.jobQueue <- ev:
		p.log.Debug("link event submitted", zap.String("link_id", ev.LinkID), zap.Bool("deleted", ev.Deleted))
		return nil
	default:
		p.log.Error("link event queue is full, dropping event",
			zap.String("link_id", ev.LinkID),
			zap.Int("queue_size", len(p.jobQueue)),
		)
		return fmt.Errorf("link event queue is full")
	}
}

func (p *Processor) worker(workerID int) {
	defer p.wg.Done()

	log := p.log.With(zap.Int("worker_id", workerID))
	log.Debug("link event worker started")

	for ev := range p.jobQueue {
		p.sendWithRetry(log, ev)
	}
	log.Debug("link event worker stopped")
}

// sendWithRetry delivers a single event with exponential backoff
func (p *Processor) sendWithRetry(log *zap.Logger, ev *LinkEvent) {
	var lastErr error

	for attempt := 1; attempt <= p.config.RetryAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(p.ctx, p.config.AttemptTimeout)
		err := p.sink.Send(ctx, ev)
		cancel()

		if err == nil {
			if attempt > 1 {
				log.Info("link event delivered after retry",
					zap.String("link_id", ev.LinkID),
					zap.Int("attempt", attempt),
				)
			}
			return
		}

		lastErr = err
		log.Warn("link event delivery failed",
			zap.String("link_id", ev.LinkID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.config.RetryAttempts),
			zap.Error(err),
		)

		if attempt == p.config.RetryAttempts {
			break
		}

		delay := p.config.RetryDelay * time.Duration(1<<(attempt-1))
		select {
		case <-time.After(delay):
		case <-p.ctx.Done():
			log.Info("worker shutdown during retry delay")
			return
		}
	}

	log.Error("link event delivery failed after all retries",
		zap.String("link_id", ev.LinkID),
		zap.Int("attempts", p.config.RetryAttempts),
		zap.Error(lastErr),
	)
}

// GetStats returns processor statistics
func (p *Processor) GetStats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"started":        p.started,
		"queue_length":   len(p.jobQueue),
		"queue_capacity": cap(p.jobQueue),
		"worker_count":   p.config.WorkerCount,
		"retry_attempts": p.config.RetryAttempts,
	}
}

// LogSink writes events to the application log
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(_ context.Context, ev *LinkEvent) error {
	s.log.Info("link event",
		zap.String("link_id", ev.LinkID),
		zap.String("domain", ev.Domain),
		zap.String("key", ev.Key),
		zap.String("project_id", ev.ProjectID),
		zap.String("tag_ids", strings.Join(ev.TagIDs, ",")),
		zap.Bool("deleted", ev.Deleted),
	)
	return nil
}
