// Package jobs runs CPU-bound work on a fixed pool of worker goroutines.
package jobs

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrWorkerQueueFull is returned when a pool cannot accept more work.
	ErrWorkerQueueFull = errors.New("worker queue full")

	// ErrPoolStopped is returned when work is submitted to a stopped pool.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// PoolType indicates what kind of work this pool handles.
type PoolType string

const (
	PoolTypeCPU PoolType = "cpu"
)

// WorkUnitType identifies which pool type a unit is meant for.
type WorkUnitType string

const (
	WorkUnitTypeCPU WorkUnitType = "cpu"
)

// CPUWorkRequest names a registered task and carries its input.
type CPUWorkRequest struct {
	Task string
	Data any
}

// CPUWorkResult carries a handler's output.
type CPUWorkResult struct {
	Data any
}

// WorkUnit is a single piece of work routed to a pool.
type WorkUnit struct {
	ID         string
	JobID      string
	Type       WorkUnitType
	CPURequest *CPUWorkRequest

	// reply receives the unit's result once processed.
	reply chan<- workerResult
}

// NewCPUWorkUnit creates a CPU work unit with a fresh ID.
func NewCPUWorkUnit(jobID, task string, data any) *WorkUnit {
	return &WorkUnit{
		ID:    uuid.New().String(),
		JobID: jobID,
		Type:  WorkUnitTypeCPU,
		CPURequest: &CPUWorkRequest{
			Task: task,
			Data: data,
		},
	}
}

// WorkResult is the outcome of processing a work unit.
type WorkResult struct {
	WorkUnitID string
	Success    bool
	Error      error
	CPUResult  *CPUWorkResult
}

// PoolStatus reports a pool's current state.
type PoolStatus struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Workers    int    `json:"workers"`
	InFlight   int    `json:"in_flight"`
	QueueDepth int    `json:"queue_depth"`
	QueueSize  int    `json:"queue_size"`
	Processed  int64  `json:"processed"`
	Failed     int64  `json:"failed"`
}

// workerResult pairs a work result with its job ID for routing.
type workerResult struct {
	JobID  string
	Unit   *WorkUnit
	Result WorkResult
}

// CPUTaskHandler processes a CPU work request and returns a result.
// Implementations should be safe for concurrent use.
type CPUTaskHandler func(ctx context.Context, req *CPUWorkRequest) (*CPUWorkResult, error)
