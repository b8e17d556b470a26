package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/csv2sav/csv2sav/internal/convert"
)

// ConvertRequest is the transport-agnostic request both the HTTP and gRPC
// handlers decode into.
type ConvertRequest struct {
	Input      string `json:"input"`
	Output     string `json:"output"`
	Zsav       bool   `json:"zsav"`
	SampleRows int    `json:"sample_rows"`
}

// ConvertResponse is the transport-agnostic response both surfaces encode.
type ConvertResponse struct {
	RunID        string   `json:"run_id"`
	RowsWritten  int      `json:"rows_written"`
	Error        string   `json:"error,omitempty"`
	TruncatedCol []string `json:"truncated_cols,omitempty"`
}

// StatusResponse reports a run's last-known progress or terminal result.
type StatusResponse struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	RowCount  int    `json:"row_count"`
	BytesRead int64  `json:"bytes_read"`
	FileSize  int64  `json:"file_size"`
	Error     string `json:"error,omitempty"`
}

// CancelResponse reports whether a cancel request found a matching run.
type CancelResponse struct {
	RunID string `json:"run_id"`
	Found bool   `json:"found"`
}

// Server implements the conversion API shared by the HTTP and gRPC
// surfaces: both are thin transport adapters over these three methods.
type Server struct {
	registry *Registry
}

// NewServer wires a Server to a fresh Registry.
func NewServer() *Server {
	return &Server{registry: NewRegistry()}
}

// Convert runs one conversion synchronously (from this call's perspective)
// while publishing progress to the registry so a concurrent Status call
// can observe it. The run id is generated here and returned only in the
// response, once the conversion has ended.
func (s *Server) Convert(ctx context.Context, req ConvertRequest) ConvertResponse {
	runID := uuid.New()
	runCtx, onProgress := s.registry.Begin(ctx, runID)

	res, err := convert.Convert(runCtx, req.Input, req.Output, convert.Options{
		SampleRows: req.SampleRows,
		Zsav:       req.Zsav,
		RunID:      runID,
		OnProgress: onProgress,
	})
	s.registry.Finish(runID, res, err)

	resp := ConvertResponse{RunID: runID.String(), RowsWritten: res.RowsWritten}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	for col := range res.TruncatedCols {
		resp.TruncatedCol = append(resp.TruncatedCol, col)
	}
	return resp
}

// Status reports the last-known state of runID.
func (s *Server) Status(runID string) (StatusResponse, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("service: invalid run id %q: %w", runID, err)
	}
	state, ok := s.registry.Status(id)
	if !ok {
		return StatusResponse{}, fmt.Errorf("service: unknown run id %q", runID)
	}
	resp := StatusResponse{
		RunID:     runID,
		Status:    state.Status.String(),
		RowCount:  state.RowCount,
		BytesRead: state.BytesRead,
		FileSize:  state.FileSize,
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	return resp, nil
}

// Cancel requests cancellation of runID.
func (s *Server) Cancel(runID string) (CancelResponse, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return CancelResponse{}, fmt.Errorf("service: invalid run id %q: %w", runID, err)
	}
	return CancelResponse{RunID: runID, Found: s.registry.Cancel(id)}, nil
}
