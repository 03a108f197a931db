package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/excelsql/internal/workflow"
)

func sampleRecord(filename string) workflow.GenerationRecord {
	return workflow.GenerationRecord{
		Token:        1,
		MasterFile:   "master.xlsx",
		EmployeeFile: "employees.xlsx",
		Params: workflow.GenerateParams{
			Config:         workflow.Configuration{TenantID: 4, OperatedByUID: 2, StartingUID: 1000},
			SkipValidation: true,
		},
		Result: workflow.GenerationResult{
			Success:  filename != "",
			Message:  "done",
			Stats:    workflow.GenerationStats{TotalEmployees: 50, SuccessfullyProcessed: 48, Errors: 2},
			Filename: filename,
		},
	}
}

func TestNewRun(t *testing.T) {
	r := NewRun("sess-1", sampleRecord("out.sql"))

	if r.ID == "" || r.CreatedAt.IsZero() {
		t.Errorf("missing id or timestamp: %+v", r)
	}
	if r.SessionID != "sess-1" || r.TenantID != 4 || r.OperatedByUID != 2 || r.StartingUID != 1000 || !r.SkipValidation {
		t.Errorf("params not copied: %+v", r)
	}
	if !r.Success || r.Filename != "out.sql" || r.TotalEmployees != 50 || r.Processed != 48 || r.ErrorCount != 2 {
		t.Errorf("result not copied: %+v", r)
	}
}

func TestMemoryRecorder_Recent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRecorder(3)

	if runs, _ := m.Recent(ctx, 10); len(runs) != 0 {
		t.Errorf("empty recorder returned %d runs", len(runs))
	}

	for i := 1; i <= 5; i++ {
		m.Record(ctx, Run{ID: fmt.Sprint(i)})
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{0, []string{"5", "4", "3"}},
		{2, []string{"5", "4"}},
		{10, []string{"5", "4", "3"}},
	}
	for _, tt := range tests {
		runs, err := m.Recent(ctx, tt.limit)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		var got []string
		for _, r := range runs {
			got = append(got, r.ID)
		}
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("Recent(%d) = %v, want %v", tt.limit, got, tt.want)
		}
	}
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) Record(context.Context, Run) error {
	f.calls++
	return errors.New("db down")
}

func (f *failingRecorder) Recent(context.Context, int) ([]Run, error) { return nil, nil }

func TestHook(t *testing.T) {
	m := NewMemoryRecorder(10)
	Hook(m, "sess-9", time.Second)(sampleRecord("out.sql"))

	runs, _ := m.Recent(context.Background(), 1)
	if len(runs) != 1 || runs[0].SessionID != "sess-9" {
		t.Fatalf("runs = %+v", runs)
	}

	// Failures are swallowed.
	f := &failingRecorder{}
	Hook(f, "sess-9", time.Second)(sampleRecord(""))
	if f.calls != 1 {
		t.Errorf("calls = %d", f.calls)
	}
}

func TestPostgresRecorder(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	p := NewPostgresRecorder(pool)
	if err := p.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	ok := NewRun("sess-pg", sampleRecord("out.sql"))
	failed := NewRun("sess-pg", sampleRecord(""))
	failed.CreatedAt = ok.CreatedAt.Add(time.Second)
	for _, r := range []Run{ok, failed} {
		if err := p.Record(ctx, r); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM generation_runs WHERE session_id = 'sess-pg'")
	})

	runs, err := p.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != failed.ID || runs[1].ID != ok.ID {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].Filename != "" || runs[1].Filename != "out.sql" {
		t.Errorf("filenames = %q, %q", runs[0].Filename, runs[1].Filename)
	}
}
