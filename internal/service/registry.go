// Package service exposes internal/convert over HTTP and gRPC: a caller
// runs a conversion, and Status and Cancel look a run up by its run id.
// The run id reaches the caller of Convert only in its response, after
// the conversion has ended. It also carries a cron-scheduled watch-and-convert loop for
// hosts that batch-convert a directory of drops.
package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/csv2sav/csv2sav/internal/convert"
)

// RunStatus is the lifecycle state of a tracked conversion.
type RunStatus int

const (
	StatusRunning RunStatus = iota
	StatusDone
	StatusError
	StatusCancelled
)

func (s RunStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RunState is a snapshot of one tracked conversion.
type RunState struct {
	RunID     uuid.UUID
	Status    RunStatus
	RowCount  int
	BytesRead int64
	FileSize  int64
	Result    convert.Result
	Err       error
}

type run struct {
	mu     sync.Mutex
	state  RunState
	cancel context.CancelFunc
}

// Registry tracks in-flight and completed conversions by run id, so the
// HTTP and gRPC surfaces can poll status or cancel a run that was started
// by either one (or by the scheduler).
type Registry struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*run
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[uuid.UUID]*run)}
}

// Begin registers a new run and returns a context whose cancellation is
// wired to Cancel(runID), along with a progress callback to pass as
// convert.Options.OnProgress.
func (reg *Registry) Begin(ctx context.Context, runID uuid.UUID) (context.Context, convert.ProgressFunc) {
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		state:  RunState{RunID: runID, Status: StatusRunning},
		cancel: cancel,
	}
	reg.mu.Lock()
	reg.runs[runID] = r
	reg.mu.Unlock()

	progress := func(rowCount int, bytesRead, fileSize int64) {
		r.mu.Lock()
		r.state.RowCount = rowCount
		r.state.BytesRead = bytesRead
		r.state.FileSize = fileSize
		r.mu.Unlock()
	}
	return runCtx, progress
}

// Finish records the terminal outcome of a run.
func (reg *Registry) Finish(runID uuid.UUID, result convert.Result, err error) {
	reg.mu.RLock()
	r, ok := reg.runs[runID]
	reg.mu.RUnlock()
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Result = result
	r.state.Err = err
	switch {
	case errors.Is(err, convert.ErrCancelled):
		r.state.Status = StatusCancelled
	case err != nil:
		r.state.Status = StatusError
	default:
		r.state.Status = StatusDone
		r.state.RowCount = result.RowsWritten
	}
}

// Status returns a snapshot of the run, or false if unknown.
func (reg *Registry) Status(runID uuid.UUID) (RunState, bool) {
	reg.mu.RLock()
	r, ok := reg.runs[runID]
	reg.mu.RUnlock()
	if !ok {
		return RunState{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, true
}

// Cancel requests cancellation of a running conversion. Returns false if
// the run id is unknown; cancelling an already-finished run is a no-op.
func (reg *Registry) Cancel(runID uuid.UUID) bool {
	reg.mu.RLock()
	r, ok := reg.runs[runID]
	reg.mu.RUnlock()
	if !ok {
		return false
	}
	r.cancel()
	return true
}
