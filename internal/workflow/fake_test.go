package workflow

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"
)

// buildWorkbook returns real .xlsx bytes with one sheet per entry.
func buildWorkbook(t *testing.T, sheets map[string][]string) []byte {
	t.Helper()

	wb := excelize.NewFile()
	defer wb.Close()

	first := true
	for name, headers := range sheets {
		if first {
			wb.SetSheetName("Sheet1", name)
			first = false
		} else if _, err := wb.NewSheet(name); err != nil {
			t.Fatalf("new sheet %s: %v", name, err)
		}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			if err := wb.SetCellValue(name, cell, h); err != nil {
				t.Fatalf("set %s!%s: %v", name, cell, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func masterWorkbook(t *testing.T) []byte {
	return buildWorkbook(t, map[string][]string{
		"gblm_designation": {"designation_code", "designation_name"},
		"gblm_office":      {"office_code", "office_name"},
	})
}

func employeeWorkbook(t *testing.T) []byte {
	return buildWorkbook(t, map[string][]string{
		"Employee Details": {"Name", "Designation", "Office", "Email"},
	})
}

// call records one request made to fakeService.
type call struct {
	kind     Kind
	master   string
	employee string
	params   GenerateParams
	filename string
}

// fakeService answers from canned responses. When gate is set, every call
// blocks until a value is received on it, so tests control resolution order.
type fakeService struct {
	mu    sync.Mutex
	calls []call

	validate func(n int) (*ValidationReport, error)
	generate func(n int, p GenerateParams) (*GenerationResult, error)
	download func(name string) (io.ReadCloser, error)

	gate    chan struct{}
	started chan Kind
}

func (f *fakeService) record(c call) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	n := 0
	for _, prev := range f.calls {
		if prev.kind == c.kind {
			n++
		}
	}
	return n
}

func (f *fakeService) wait(ctx context.Context, k Kind) error {
	if f.started != nil {
		f.started <- k
	}
	if f.gate == nil {
		return nil
	}
	select {
	case <-f.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeService) Validate(ctx context.Context, master, employee UploadedFile) (*ValidationReport, error) {
	n := f.record(call{kind: KindValidate, master: master.Name, employee: employee.Name})
	if err := f.wait(ctx, KindValidate); err != nil {
		return nil, err
	}
	return f.validate(n)
}

func (f *fakeService) Generate(ctx context.Context, master, employee UploadedFile, p GenerateParams) (*GenerationResult, error) {
	n := f.record(call{kind: KindGenerate, master: master.Name, employee: employee.Name, params: p})
	if err := f.wait(ctx, KindGenerate); err != nil {
		return nil, err
	}
	return f.generate(n, p)
}

func (f *fakeService) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	f.record(call{kind: KindDownload, filename: name})
	if err := f.wait(ctx, KindDownload); err != nil {
		return nil, err
	}
	return f.download(name)
}

func (f *fakeService) count(k Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.kind == k {
			n++
		}
	}
	return n
}

func (f *fakeService) lastCall(k Kind) call {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].kind == k {
			return f.calls[i]
		}
	}
	return call{}
}

// serverError implements detailer like converter.APIError.
type serverError struct{ detail string }

func (e serverError) Error() string        { return "server: " + e.detail }
func (e serverError) ServerDetail() string { return e.detail }

// trackedBody records whether it was closed.
type trackedBody struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func (b *trackedBody) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *trackedBody) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func intPtr(i int) *int { return &i }

func cleanReport() *ValidationReport {
	return &ValidationReport{
		MasterDataValidation: MasterDataValidation{DesignationCount: 12, OfficeCount: 3, Errors: []Issue{}, Warnings: []Issue{}},
		EmployeeDataValidation: EmployeeDataValidation{
			Summary: EmployeeSummary{TotalRows: 50},
			Errors:  []Issue{},
		},
		CanProceed: true,
	}
}

func failingReport() *ValidationReport {
	return &ValidationReport{
		EmployeeDataValidation: EmployeeDataValidation{
			Summary: EmployeeSummary{TotalRows: 50, ErrorCount: 1},
			Errors:  []Issue{{Type: "MISSING_FIELD", Message: "uid required", Row: intPtr(5)}},
		},
		CanProceed: false,
	}
}

// readyWorkflow returns a workflow with both files admitted.
func readyWorkflow(t *testing.T, svc Service) *Workflow {
	t.Helper()
	w := New(Options{Service: svc})
	if err := w.SelectMaster("master.xlsx", masterWorkbook(t)); err != nil {
		t.Fatalf("SelectMaster: %v", err)
	}
	if err := w.SelectEmployee("employees.xlsx", employeeWorkbook(t)); err != nil {
		t.Fatalf("SelectEmployee: %v", err)
	}
	return w
}
