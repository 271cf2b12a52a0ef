package defra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// OpType represents the type of write operation.
type OpType string

const (
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// WriteOp represents a single write operation to be batched.
type WriteOp struct {
	Collection string             // Target collection name
	Document   map[string]any     // Document data
	DocID      string             // Target document
	Op         OpType             // Operation type
	result     chan<- WriteResult // Set by SendSync
}

// WriteResult contains the result of a write operation.
type WriteResult struct {
	DocID string // Stable document ID
	Err   error  // Error if operation failed
}

// SinkStats counts sink outcomes since start.
type SinkStats struct {
	Queued  int   `json:"queued"`
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

// SinkConfig configures the write sink.
type SinkConfig struct {
	Client        *Client
	BatchSize     int           // Flush after N ops (default: 100)
	FlushInterval time.Duration // Or after duration (default: 5s)
	QueueSize     int           // Buffer size (default: 1000)
	Logger        *slog.Logger
}

// Sink batches writes to DefraDB. Operations are applied in arrival order
// within a batch, so a delete queued after an update for the same document
// always wins.
type Sink struct {
	client *Client
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	queue   chan WriteOp
	flushCh chan struct{}

	mu     sync.RWMutex // guards closed against concurrent sends
	closed bool

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSink creates a new write sink.
func NewSink(cfg SinkConfig) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Sink{
		client:        cfg.Client,
		logger:        cfg.Logger.With("component", "defra_sink"),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan WriteOp, cfg.QueueSize),
		flushCh:       make(chan struct{}, 1),
	}
}

// Start begins processing write operations.
func (s *Sink) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()
}

// Stop gracefully shuts down the sink, flushing remaining operations.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping sink, flushing remaining operations")

		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()

		s.wg.Wait()
		s.cancel()

		s.logger.Info("sink stopped",
			"written", s.written.Load(),
			"failed", s.failed.Load())
	})
}

// Stats returns a snapshot of sink counters.
func (s *Sink) Stats() SinkStats {
	return SinkStats{
		Queued:  len(s.queue),
		Written: s.written.Load(),
		Failed:  s.failed.Load(),
		Dropped: s.dropped.Load(),
	}
}

// Send queues a write operation without waiting for it to be applied.
func (s *Sink) Send(op WriteOp) {
	op.result = nil

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.drop(op)
		return
	}
	select {
	case s.queue <- op:
	case <-s.ctx.Done():
		s.drop(op)
	}
}

func (s *Sink) drop(op WriteOp) {
	s.dropped.Add(1)
	s.logger.Warn("sink closed, dropping write op",
		"collection", op.Collection,
		"op", op.Op)
}

// SendSync queues a write operation and waits for the result.
func (s *Sink) SendSync(ctx context.Context, op WriteOp) (WriteResult, error) {
	resultCh := make(chan WriteResult, 1)
	op.result = resultCh

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return WriteResult{}, ErrSinkClosed
	}
	select {
	case s.queue <- op:
		s.mu.RUnlock()
	case <-s.ctx.Done():
		s.mu.RUnlock()
		return WriteResult{}, ErrSinkClosed
	case <-ctx.Done():
		s.mu.RUnlock()
		return WriteResult{}, ctx.Err()
	}

	select {
	case result := <-resultCh:
		return result, result.Err
	case <-ctx.Done():
		return WriteResult{}, ctx.Err()
	}
}

// Flush asks the sink to write its current batch now.
func (s *Sink) Flush() {
	select {
	case s.flushCh <- struct{}{}:
	default:
		// Flush already pending
	}
}

// run collects operations and flushes on size, time, or explicit request.
func (s *Sink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]WriteOp, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.apply(batch)
		batch = make([]WriteOp, 0, s.batchSize)
	}

	for {
		select {
		case op, ok := <-s.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, op)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.flushCh:
			flush()
		}
	}
}

// apply writes a batch in order. Shutdown drains with a fresh context so
// queued writes still land after the parent context is cancelled.
func (s *Sink) apply(ops []WriteOp) {
	ctx := s.ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}

	s.logger.Debug("flushing batch", "count", len(ops))

	for _, op := range ops {
		result := WriteResult{DocID: op.DocID}
		switch op.Op {
		case OpUpdate:
			result.Err = s.client.Update(ctx, op.Collection, op.DocID, op.Document)
		case OpDelete:
			result.Err = s.client.Delete(ctx, op.Collection, op.DocID)
		default:
			result.Err = fmt.Errorf("unsupported write op %q", op.Op)
		}

		if result.Err != nil {
			s.failed.Add(1)
			s.logger.Error("write failed",
				"collection", op.Collection,
				"op", op.Op,
				"docID", op.DocID,
				"error", result.Err)
		} else {
			s.written.Add(1)
		}

		if op.result != nil {
			op.result <- result
			close(op.result)
		}
	}
}
