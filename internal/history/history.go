// Package history records every applied SQL generation so operators can see
// what was generated, for which tenant, and from which files.
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/excelsql/internal/workflow"
)

// Run is one applied generation result.
type Run struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	TenantID       int64     `json:"tenant_id"`
	OperatedByUID  int64     `json:"operated_by_uid"`
	StartingUID    int64     `json:"starting_uid"`
	SkipValidation bool      `json:"skip_validation"`
	MasterFile     string    `json:"master_file"`
	EmployeeFile   string    `json:"employee_file"`
	Success        bool      `json:"success"`
	Message        string    `json:"message,omitempty"`
	TotalEmployees int       `json:"total_employees"`
	Processed      int       `json:"successfully_processed"`
	ErrorCount     int       `json:"errors"`
	Filename       string    `json:"filename,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewRun builds a Run from a workflow generation record.
func NewRun(sessionID string, rec workflow.GenerationRecord) Run {
	return Run{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		TenantID:       rec.Params.Config.TenantID,
		OperatedByUID:  rec.Params.Config.OperatedByUID,
		StartingUID:    rec.Params.Config.StartingUID,
		SkipValidation: rec.Params.SkipValidation,
		MasterFile:     rec.MasterFile,
		EmployeeFile:   rec.EmployeeFile,
		Success:        rec.Result.Success,
		Message:        rec.Result.Message,
		TotalEmployees: rec.Result.Stats.TotalEmployees,
		Processed:      rec.Result.Stats.SuccessfullyProcessed,
		ErrorCount:     rec.Result.Stats.Errors,
		Filename:       rec.Result.Filename,
		CreatedAt:      time.Now().UTC(),
	}
}

// Recorder stores runs.
type Recorder interface {
	Record(ctx context.Context, run Run) error
	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]Run, error)
}

// Hook returns a workflow.Options.OnGenerated callback that records runs for
// sessionID. Failures are logged and never reach the workflow.
func Hook(rec Recorder, sessionID string, timeout time.Duration) func(workflow.GenerationRecord) {
	return func(gr workflow.GenerationRecord) {
		run := NewRun(sessionID, gr)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := rec.Record(ctx, run); err != nil {
			slog.Warn("failed to record generation run",
				"session_id", sessionID,
				"run_id", run.ID,
				"error", err,
			)
			return
		}
		slog.Info("generation recorded",
			"session_id", sessionID,
			"run_id", run.ID,
			"success", run.Success,
			"filename", run.Filename,
		)
	}
}

// MemoryRecorder keeps the most recent runs in memory.
type MemoryRecorder struct {
	mu   sync.Mutex
	runs []Run
	next int
	full bool
}

// NewMemoryRecorder keeps at most capacity runs.
func NewMemoryRecorder(capacity int) *MemoryRecorder {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryRecorder{runs: make([]Run, capacity)}
}

func (m *MemoryRecorder) Record(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[m.next] = run
	m.next = (m.next + 1) % len(m.runs)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

func (m *MemoryRecorder) Recent(_ context.Context, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.full {
		n = len(m.runs)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Run, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.runs)) % len(m.runs)
		out = append(out, m.runs[idx])
	}
	return out, nil
}
