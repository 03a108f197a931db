package workflow

import (
	"fmt"
	"strings"
)

// Slot identifies which of the two required input files is being selected.
type Slot string

const (
	SlotMaster   Slot = "master"
	SlotEmployee Slot = "employee"
)

// UploadedFile is an admitted spreadsheet. Content is opaque to this package.
type UploadedFile struct {
	Name      string
	Extension string // "xlsx" or "xls"
	Content   []byte
}

// Size returns the content length in bytes.
func (f UploadedFile) Size() int64 {
	return int64(len(f.Content))
}

// admittedExtensions are matched as case-sensitive name suffixes, in order.
var admittedExtensions = []string{"xlsx", "xls"}

// NewUploadedFile admits a file by name suffix. No content sniffing happens:
// "report.XLSX" and "data.csv" are both rejected.
func NewUploadedFile(name string, content []byte) (UploadedFile, error) {
	for _, ext := range admittedExtensions {
		if strings.HasSuffix(name, "."+ext) {
			return UploadedFile{Name: name, Extension: ext, Content: content}, nil
		}
	}
	return UploadedFile{}, &InputError{Name: name, Err: ErrInvalidFileType}
}

// Configuration holds the operational parameters sent with a generation call.
type Configuration struct {
	TenantID      int64 `json:"tenant_id"`
	OperatedByUID int64 `json:"operated_by_uid"`
	StartingUID   int64 `json:"starting_uid"`
}

// DefaultConfiguration returns {1, 1, 1000}.
func DefaultConfiguration() Configuration {
	return Configuration{TenantID: 1, OperatedByUID: 1, StartingUID: 1000}
}

// Check rejects negative values.
func (c Configuration) Check() error {
	switch {
	case c.TenantID < 0:
		return fmt.Errorf("tenant_id must be non-negative, got %d", c.TenantID)
	case c.OperatedByUID < 0:
		return fmt.Errorf("operated_by_uid must be non-negative, got %d", c.OperatedByUID)
	case c.StartingUID < 0:
		return fmt.Errorf("starting_uid must be non-negative, got %d", c.StartingUID)
	}
	return nil
}

// Issue is a single server-reported validation error or warning.
// Row and Value are only present for employee data issues.
type Issue struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Row     *int   `json:"row,omitempty"`
	Value   any    `json:"value,omitempty"`
}

// MasterDataValidation covers the designation and office sheets.
type MasterDataValidation struct {
	DesignationCount int     `json:"designation_count"`
	OfficeCount      int     `json:"office_count"`
	Errors           []Issue `json:"errors"`
	Warnings         []Issue `json:"warnings"`
}

// EmployeeSummary counts rows in the employee details sheet.
type EmployeeSummary struct {
	TotalRows    int `json:"total_rows"`
	ErrorCount   int `json:"error_count"`
	WarningCount int `json:"warning_count"`
}

// EmployeeDataValidation covers the employee details sheet.
type EmployeeDataValidation struct {
	Summary  EmployeeSummary `json:"summary"`
	Errors   []Issue         `json:"errors"`
	Warnings []Issue         `json:"warnings"`
}

// ValidationReport is the structured result of a pre-check.
type ValidationReport struct {
	MasterDataValidation   MasterDataValidation   `json:"master_data_validation"`
	EmployeeDataValidation EmployeeDataValidation `json:"employee_data_validation"`
	CanProceed             bool                   `json:"can_proceed"`
}

// Proceedable reports whether neither section carries errors.
// Warnings never block.
func (r ValidationReport) Proceedable() bool {
	return len(r.MasterDataValidation.Errors) == 0 && len(r.EmployeeDataValidation.Errors) == 0
}

// Normalize forces CanProceed to agree with the error lists and reports
// whether the server-supplied flag had to be corrected.
func (r *ValidationReport) Normalize() (corrected bool) {
	want := r.Proceedable()
	corrected = r.CanProceed != want
	r.CanProceed = want
	return corrected
}

// GenerationStats summarizes a generation run.
type GenerationStats struct {
	TotalEmployees        int `json:"total_employees"`
	SuccessfullyProcessed int `json:"successfully_processed"`
	Errors                int `json:"errors"`
}

// GenerationResult is returned by the generation call. Filename is present
// exactly when Success is true; Message is always present on failure.
type GenerationResult struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Stats      GenerationStats   `json:"stats"`
	Errors     []string          `json:"errors"`
	SQLPreview string            `json:"sql_preview"`
	Filename   string            `json:"filename,omitempty"`
	Validation *ValidationReport `json:"validation,omitempty"`
}

// Normalize enforces the success/filename/message invariant. A failed
// result loses any filename and gains the fallback message when none was
// sent; a successful result without a filename is a protocol violation.
func (g *GenerationResult) Normalize() error {
	if g.Success {
		if g.Filename == "" {
			return fmt.Errorf("successful generation result has no filename")
		}
	} else {
		g.Filename = ""
		if g.Message == "" {
			g.Message = fallbackGenerate
		}
	}
	if g.Validation != nil {
		g.Validation.Normalize()
	}
	return nil
}

// GenerateParams is the full request payload of a generation call.
type GenerateParams struct {
	Config         Configuration
	SkipValidation bool
}
