// Package converter is the HTTP client for the remote spreadsheet-to-SQL
// conversion service.
//
// The service exposes three endpoints under one base URL:
//
//	POST /validate-data    multipart master_data, employee_data
//	POST /generate-sql     multipart master_data, employee_data, tenant_id,
//	                       operated_by_uid, starting_uid, skip_validation
//	GET  /download/{name}  raw artifact bytes
//
// Non-2xx responses carry {"detail": "..."}; the detail is exposed verbatim
// through [APIError]. Every call is a single attempt with no retry.
package converter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/excelsql/internal/workflow"
)

// Form field names expected by the conversion service.
const (
	FieldMaster         = "master_data"
	FieldEmployee       = "employee_data"
	FieldTenantID       = "tenant_id"
	FieldOperatedByUID  = "operated_by_uid"
	FieldStartingUID    = "starting_uid"
	FieldSkipValidation = "skip_validation"
)

// DefaultBaseURL is where the conversion service listens in development.
const DefaultBaseURL = "http://localhost:8000"

// Client talks to the conversion service. It satisfies workflow.Service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

var _ workflow.Service = (*Client)(nil)

// New returns a client for baseURL. A zero timeout means no client-side limit.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Validate uploads both files to /validate-data and decodes the report.
func (c *Client) Validate(ctx context.Context, master, employee workflow.UploadedFile) (*workflow.ValidationReport, error) {
	resp, err := c.postForm(ctx, "/validate-data", master, employee, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var report workflow.ValidationReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode validation report: %w", err)
	}
	return &report, nil
}

// Generate uploads both files plus the configuration to /generate-sql.
// skip_validation is always sent, as "true" or "false".
func (c *Client) Generate(ctx context.Context, master, employee workflow.UploadedFile, params workflow.GenerateParams) (*workflow.GenerationResult, error) {
	fields := [][2]string{
		{FieldTenantID, strconv.FormatInt(params.Config.TenantID, 10)},
		{FieldOperatedByUID, strconv.FormatInt(params.Config.OperatedByUID, 10)},
		{FieldStartingUID, strconv.FormatInt(params.Config.StartingUID, 10)},
		{FieldSkipValidation, strconv.FormatBool(params.SkipValidation)},
	}

	resp, err := c.postForm(ctx, "/generate-sql", master, employee, fields)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result workflow.GenerationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode generation result: %w", err)
	}
	return &result, nil
}

// Download fetches /download/{filename}. The caller must close the body.
// A 404 is reported as ErrArtifactNotFound wrapped in an APIError.
func (c *Client) Download(ctx context.Context, filename string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/download/"+url.PathEscape(filename), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", filename, err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// postForm streams a multipart body with both files first, then fields.
func (c *Client) postForm(ctx context.Context, path string, master, employee workflow.UploadedFile, fields [][2]string) (*http.Response, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(mw, master, employee, fields))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	return resp, nil
}

func writeForm(mw *multipart.Writer, master, employee workflow.UploadedFile, fields [][2]string) error {
	files := []struct {
		field string
		file  workflow.UploadedFile
	}{
		{FieldMaster, master},
		{FieldEmployee, employee},
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.file.Name)
		if err != nil {
			return err
		}
		if _, err := part.Write(f.file.Content); err != nil {
			return err
		}
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return mw.Close()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// checkStatus turns a non-2xx response into an *APIError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Detail = detailText(payload.Detail)
	}
	if resp.StatusCode == http.StatusNotFound {
		apiErr.Err = ErrArtifactNotFound
	}
	return apiErr
}

// detailText accepts a string detail. Structured details (FastAPI's
// validation arrays) are not a usable message and yield "".
func detailText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}

// ErrArtifactNotFound is wrapped by the APIError of a 404 response.
var ErrArtifactNotFound = errors.New("artifact not found")

// APIError is a non-2xx response from the conversion service.
type APIError struct {
	StatusCode int
	Detail     string // server-reported detail, "" when absent
	Err        error
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("conversion service: %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("conversion service: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ServerDetail lets the workflow surface the detail verbatim.
func (e *APIError) ServerDetail() string {
	return e.Detail
}
