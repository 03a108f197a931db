package workflow

// errors.go defines the workflow error taxonomy and maps every error to a
// user-facing message with a support code, the same way the upload UI does.
//
// # Input Errors (INP001-INP099)
//
//	INP001 - Invalid file type: selection does not end in .xlsx or .xls
//	INP002 - Incomplete input: validate/generate called without both files
//	INP003 - Invalid configuration: a numeric parameter is negative or not a number
//
// # Transport Errors (NET001-NET099)
//
//	NET001 - Server detail: non-2xx response carrying a detail string
//	NET002 - Transport failure: network error or response without usable detail
//
// # Artifact Errors (ART001-ART099)
//
//	ART001 - Invalid artifact reference: filename is not the last successful artifact
//
// # Workflow Errors (WF001-WF099)
//
//	WF001 - Busy: an operation of the same kind is already in flight
//	WF002 - Superseded: a newer request or file change replaced this result
//	WF003 - No embedded validation: nothing to show
//
// # Default Error (ERR000)

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFileType is wrapped by InputError when a selection is rejected.
	ErrInvalidFileType = errors.New("invalid file type")

	// ErrIncompleteInput is wrapped by InputError when a file is missing.
	ErrIncompleteInput = errors.New("incomplete input")

	// ErrInvalidConfiguration is wrapped by InputError for bad numeric input.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrBusy rejects a second call of a kind that is already in flight.
	ErrBusy = errors.New("operation already in progress")

	// ErrInvalidArtifactReference rejects downloads of anything other than
	// the current successful result's filename.
	ErrInvalidArtifactReference = errors.New("invalid artifact reference")

	// ErrSuperseded is the outcome error of a discarded result.
	ErrSuperseded = errors.New("result superseded by a newer request")

	// ErrNoEmbeddedValidation is returned by ShowValidationDetails when the
	// current result is not a failure carrying a validation report.
	ErrNoEmbeddedValidation = errors.New("no embedded validation report")
)

// Fallback messages for transport failures without a server detail.
const (
	fallbackValidate = "Failed to validate data"
	fallbackGenerate = "Failed to generate SQL"
	fallbackDownload = "Failed to download file"
)

// Fixed user messages for local input errors.
const (
	msgInvalidFileType   = "Please select a valid Excel file (.xlsx or .xls)"
	msgIncompleteInput   = "Please upload both Excel files"
	msgInvalidConfig     = "Configuration values must be non-negative whole numbers"
	msgInvalidArtifact   = "The requested file is not the latest generated artifact"
	msgBusy              = "That operation is already running"
	msgSuperseded        = "A newer request replaced this one"
	msgNoEmbeddedDetails = "There are no validation details to show"
)

// InputError is a locally detected selection or configuration problem.
// It never reaches the network.
type InputError struct {
	Slot Slot   // empty when not tied to a file slot
	Name string // rejected file name or field name
	Err  error
}

func (e *InputError) Error() string {
	switch {
	case e.Slot != "" && e.Name != "":
		return fmt.Sprintf("%s file %q: %v", e.Slot, e.Name, e.Err)
	case e.Name != "":
		return fmt.Sprintf("%q: %v", e.Name, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// detailer is satisfied by transport errors that carry a server detail.
type detailer interface {
	ServerDetail() string
}

// TransportError is a network failure or non-2xx response. Message is the
// server's detail verbatim when present, else the operation's fallback.
type TransportError struct {
	Op      Kind
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FromServer reports whether Message came from the server's detail.
func (e *TransportError) FromServer() bool {
	var d detailer
	return errors.As(e.Err, &d) && d.ServerDetail() != ""
}

// newTransportError wraps a service error for the given operation.
func newTransportError(op Kind, err error) *TransportError {
	msg := op.fallback()
	var d detailer
	if errors.As(err, &d) && d.ServerDetail() != "" {
		msg = d.ServerDetail()
	}
	return &TransportError{Op: op, Message: msg, Err: err}
}

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var errorCodes = []struct {
	target error
	msg    UserMessage
}{
	{ErrInvalidFileType, UserMessage{msgInvalidFileType, "Choose a spreadsheet saved as .xlsx or .xls", "INP001"}},
	{ErrIncompleteInput, UserMessage{msgIncompleteInput, "Select both the master data and employee files", "INP002"}},
	{ErrInvalidConfiguration, UserMessage{msgInvalidConfig, "Correct the advanced configuration values", "INP003"}},
	{ErrInvalidArtifactReference, UserMessage{msgInvalidArtifact, "Generate SQL again and download the new file", "ART001"}},
	{ErrBusy, UserMessage{msgBusy, "Wait for the current request to finish", "WF001"}},
	{ErrSuperseded, UserMessage{msgSuperseded, "No action needed", "WF002"}},
	{ErrNoEmbeddedValidation, UserMessage{msgNoEmbeddedDetails, "Run validation to see a report", "WF003"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-facing message. Transport errors
// keep their verbatim message; everything else is looked up by identity.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var te *TransportError
	if errors.As(err, &te) {
		if te.FromServer() {
			return UserMessage{Message: te.Message, Action: "Review the input files and try again", Code: "NET001"}
		}
		return UserMessage{Message: te.Message, Action: "Check that the conversion service is reachable and try again", Code: "NET002"}
	}

	for _, ec := range errorCodes {
		if errors.Is(err, ec.target) {
			return ec.msg
		}
	}
	return defaultMessage
}
