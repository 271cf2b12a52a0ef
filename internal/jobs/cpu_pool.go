package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// CPUWorkerPool manages a pool of workers for CPU-bound tasks.
// All workers share a single queue - natural load balancing via Go channel semantics.
type CPUWorkerPool struct {
	name        string
	logger      *slog.Logger
	workerCount int
	queueSize   int

	// Single shared queue (all workers pull from this)
	queue chan *WorkUnit

	// Task handlers by task name
	handlers map[string]CPUTaskHandler
	mu       sync.RWMutex

	startOnce sync.Once
	wg        sync.WaitGroup
	done      chan struct{}
	stopped   atomic.Bool

	inFlight  atomic.Int32
	processed atomic.Int64
	failed    atomic.Int64
}

// CPUWorkerPoolConfig configures a new CPU worker pool.
type CPUWorkerPoolConfig struct {
	Name        string
	Logger      *slog.Logger
	WorkerCount int // Number of worker goroutines (default: runtime.NumCPU())
	QueueSize   int // Queue size (default: 1000)
}

// NewCPUWorkerPool creates a new CPU worker pool.
func NewCPUWorkerPool(cfg CPUWorkerPoolConfig) *CPUWorkerPool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	name := cfg.Name
	if name == "" {
		name = "cpu"
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	return &CPUWorkerPool{
		name:        name,
		logger:      logger.With("pool", name, "type", PoolTypeCPU, "workers", workerCount),
		workerCount: workerCount,
		queueSize:   queueSize,
		queue:       make(chan *WorkUnit, queueSize),
		handlers:    make(map[string]CPUTaskHandler),
		done:        make(chan struct{}),
	}
}

// RegisterHandler registers a handler for a task type.
func (p *CPUWorkerPool) RegisterHandler(taskName string, handler CPUTaskHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[taskName] = handler
	p.logger.Debug("registered CPU task handler", "task", taskName)
}

// Name returns the pool name.
func (p *CPUWorkerPool) Name() string {
	return p.name
}

// Type returns PoolTypeCPU.
func (p *CPUWorkerPool) Type() PoolType {
	return PoolTypeCPU
}

// Start begins the pool's processing. Blocks until ctx cancelled and
// every worker has returned. Calling Start more than once is a no-op.
func (p *CPUWorkerPool) Start(ctx context.Context) {
	started := false
	p.startOnce.Do(func() { started = true })
	if !started {
		return
	}

	p.logger.Info("cpu pool starting", "queue_size", p.queueSize)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	<-ctx.Done()
	p.stopped.Store(true)
	p.wg.Wait()
	close(p.done)
	p.logger.Info("pool stopped")
}

// Done is closed once the pool has stopped.
func (p *CPUWorkerPool) Done() <-chan struct{} {
	return p.done
}

// worker processes work units from the shared queue.
func (p *CPUWorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return

		case unit := <-p.queue:
			p.inFlight.Add(1)
			result := p.process(ctx, unit)
			p.inFlight.Add(-1)
			if result.Success {
				p.processed.Add(1)
			} else {
				p.failed.Add(1)
			}
			p.logger.Debug("cpu worker completed unit", "worker_id", id, "unit_id", unit.ID, "success", result.Success)
			if unit.reply != nil {
				unit.reply <- workerResult{
					JobID:  unit.JobID,
					Unit:   unit,
					Result: result,
				}
			}
		}
	}
}

// Submit adds a work unit to the pool's queue.
func (p *CPUWorkerPool) Submit(unit *WorkUnit) error {
	if p.stopped.Load() {
		return ErrPoolStopped
	}
	select {
	case p.queue <- unit:
		return nil
	default:
		p.logger.Warn("cpu pool queue full", "unit_id", unit.ID, "job_id", unit.JobID)
		return fmt.Errorf("%w: %s", ErrWorkerQueueFull, p.name)
	}
}

// Status returns current pool status.
func (p *CPUWorkerPool) Status() PoolStatus {
	return PoolStatus{
		Name:       p.name,
		Type:       string(PoolTypeCPU),
		Workers:    p.workerCount,
		InFlight:   int(p.inFlight.Load()),
		QueueDepth: len(p.queue),
		QueueSize:  p.queueSize,
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
	}
}

// process executes a CPU work unit.
func (p *CPUWorkerPool) process(ctx context.Context, unit *WorkUnit) WorkResult {
	result := WorkResult{
		WorkUnitID: unit.ID,
	}

	if unit.Type != WorkUnitTypeCPU {
		result.Error = fmt.Errorf("work unit type %s does not match pool type cpu", unit.Type)
		return result
	}

	if unit.CPURequest == nil {
		result.Error = fmt.Errorf("CPU work unit missing CPURequest")
		return result
	}

	p.mu.RLock()
	handler, ok := p.handlers[unit.CPURequest.Task]
	p.mu.RUnlock()

	if !ok {
		result.Error = fmt.Errorf("no handler registered for CPU task: %s", unit.CPURequest.Task)
		return result
	}

	cpuResult, err := runHandler(ctx, handler, unit.CPURequest)
	if err != nil {
		result.Error = err
		p.logger.Debug("CPU work unit failed", "unit_id", unit.ID, "task", unit.CPURequest.Task, "error", err)
		return result
	}

	result.Success = true
	result.CPUResult = cpuResult
	return result
}

// runHandler converts a handler panic into an error so one bad unit cannot
// take a worker down.
func runHandler(ctx context.Context, handler CPUTaskHandler, req *CPUWorkRequest) (res *CPUWorkResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", req.Task, r)
		}
	}()
	return handler(ctx, req)
}
