package jobs

import (
	"context"

	"github.com/google/uuid"
)

// RunBatch submits one unit per input under a fresh job ID and waits for all
// of them. Results are returned in input order. A unit the pool refused
// (queue full, pool stopped) gets a failed result carrying that error.
//
// The returned error is non-nil only when ctx ends or the pool stops before
// every submitted unit has reported back.
func (p *CPUWorkerPool) RunBatch(ctx context.Context, task string, inputs []any) ([]WorkResult, error) {
	jobID := uuid.New().String()
	results := make([]WorkResult, len(inputs))
	if len(inputs) == 0 {
		return results, nil
	}

	reply := make(chan workerResult, len(inputs))
	index := make(map[string]int, len(inputs))
	pending := 0

	for i, in := range inputs {
		unit := NewCPUWorkUnit(jobID, task, in)
		unit.reply = reply
		index[unit.ID] = i
		if err := p.Submit(unit); err != nil {
			results[i] = WorkResult{WorkUnitID: unit.ID, Error: err}
			continue
		}
		pending++
	}

	p.logger.Debug("batch submitted", "job_id", jobID, "task", task, "units", len(inputs), "queued", pending)

	for pending > 0 {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		case <-p.done:
			return results, ErrPoolStopped
		case r := <-reply:
			results[index[r.Unit.ID]] = r.Result
			pending--
		}
	}
	return results, nil
}
