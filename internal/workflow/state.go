package workflow

import (
	"errors"
	"fmt"
)

// state.go holds the single WorkflowState aggregate and the reducer that
// applies every transition. All clearing rules live in reduce.

// State is the complete workflow state. Values are replaced, never mutated
// in place, so a copied State is a consistent snapshot.
type State struct {
	Master   *UploadedFile
	Employee *UploadedFile
	Config   Configuration

	Validation *ValidationReport
	Result     *GenerationResult
	Err        error

	Validating  bool
	Generating  bool
	Downloading bool
}

// NewState returns an empty state holding cfg.
func NewState(cfg Configuration) State {
	return State{Config: cfg}
}

// HasFiles reports whether both inputs are present.
func (s State) HasFiles() bool {
	return s.Master != nil && s.Employee != nil
}

// Busy reports whether an operation of kind k is in flight.
func (s State) Busy(k Kind) bool {
	switch k {
	case KindValidate:
		return s.Validating
	case KindGenerate:
		return s.Generating
	case KindDownload:
		return s.Downloading
	}
	return false
}

// Artifact returns the downloadable filename of the current result, or "".
func (s State) Artifact() string {
	if s.Result != nil && s.Result.Success {
		return s.Result.Filename
	}
	return ""
}

// EmbeddedValidation returns the validation report carried by a failed
// result, which is what "show validation details" re-displays.
func (s State) EmbeddedValidation() *ValidationReport {
	if s.Result != nil && !s.Result.Success && s.Result.Validation != nil {
		return s.Result.Validation
	}
	return nil
}

type action interface{ isAction() }

type (
	fileSelected struct {
		slot Slot
		file UploadedFile
	}
	fileRejected    struct{ err error }
	configChanged   struct{ cfg Configuration }
	configRejected  struct{ err error }
	opStarted       struct{ kind Kind }
	opFinished      struct{ kind Kind }
	opFailed        struct{ err error }
	validated       struct{ report ValidationReport }
	generated       struct {
		result GenerationResult
		params GenerateParams
	}
	detailsRevealed struct{}
)

func (fileSelected) isAction()    {}
func (fileRejected) isAction()    {}
func (configChanged) isAction()   {}
func (configRejected) isAction()  {}
func (opStarted) isAction()       {}
func (opFinished) isAction()      {}
func (opFailed) isAction()        {}
func (validated) isAction()       {}
func (generated) isAction()       {}
func (detailsRevealed) isAction() {}

// reduce returns the state after applying a.
func reduce(s State, a action) State {
	switch a := a.(type) {
	case fileSelected:
		f := a.file
		if a.slot == SlotMaster {
			s.Master = &f
		} else {
			s.Employee = &f
		}
		s.Err = nil
		s.Validation = nil
		s.Result = nil

	case fileRejected:
		s.Err = a.err

	case configChanged:
		s.Config = a.cfg
		if errors.Is(s.Err, ErrInvalidConfiguration) {
			s.Err = nil
		}

	case configRejected:
		s.Err = a.err

	case opStarted:
		s.Err = nil
		switch a.kind {
		case KindValidate:
			s.Validating = true
		case KindGenerate:
			s.Generating = true
			s.Result = nil
		case KindDownload:
			s.Downloading = true
		}

	case opFinished:
		switch a.kind {
		case KindValidate:
			s.Validating = false
		case KindGenerate:
			s.Generating = false
		case KindDownload:
			s.Downloading = false
		}

	case opFailed:
		s.Err = a.err

	case validated:
		r := a.report
		s.Validation = &r
		s.Result = nil
		s.Err = nil

	case generated:
		g := a.result
		s.Result = &g
		if g.Validation != nil {
			v := *g.Validation
			s.Validation = &v
		}
		s.Err = nil

	case detailsRevealed:
		if v := s.EmbeddedValidation(); v != nil {
			cp := *v
			s.Validation = &cp
			s.Result = nil
			s.Err = nil
		}
	}
	return s
}

// Mode is the single visible workflow mode derived from State.
type Mode int

const (
	ModeFilesIncomplete Mode = iota
	ModeIdle
	ModeErrorDisplayed
	ModeValidationDisplayed
	ModeGenerationSucceeded
	ModeGenerationFailed
)

var modeNames = [...]string{
	ModeFilesIncomplete:     "files_incomplete",
	ModeIdle:                "idle",
	ModeErrorDisplayed:      "error_displayed",
	ModeValidationDisplayed: "validation_displayed",
	ModeGenerationSucceeded: "generation_succeeded",
	ModeGenerationFailed:    "generation_failed",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name produced by MarshalText.
func (m *Mode) UnmarshalText(b []byte) error {
	for i, name := range modeNames {
		if name == string(b) {
			*m = Mode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", b)
}

// Interpret derives the visible mode. It is a pure function of s.
func Interpret(s State) Mode {
	switch {
	case !s.HasFiles():
		return ModeFilesIncomplete
	case s.Err != nil:
		return ModeErrorDisplayed
	case s.Result != nil && s.Result.Success:
		return ModeGenerationSucceeded
	case s.Result != nil:
		return ModeGenerationFailed
	case s.Validation != nil:
		return ModeValidationDisplayed
	default:
		return ModeIdle
	}
}

// View is a read-only projection of State for hosts.
type View struct {
	Mode         Mode              `json:"mode"`
	MasterFile   string            `json:"master_file,omitempty"`
	EmployeeFile string            `json:"employee_file,omitempty"`
	Config       Configuration     `json:"config"`
	Validation   *ValidationReport `json:"validation,omitempty"`
	Result       *GenerationResult `json:"result,omitempty"`

	Error       string `json:"error,omitempty"`
	ErrorAction string `json:"error_action,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`

	Validating  bool `json:"validating"`
	Generating  bool `json:"generating"`
	Downloading bool `json:"downloading"`

	// CanProceed is set while a validation report is displayed and it has
	// no errors; the host then offers "generate" instead of "fix errors".
	CanProceed bool `json:"can_proceed"`
	// CanShowDetails is set when a failed result embeds a validation report.
	CanShowDetails bool   `json:"can_show_details"`
	Artifact       string `json:"artifact,omitempty"`
}

// NewView projects s.
func NewView(s State) View {
	v := View{
		Mode:        Interpret(s),
		Config:      s.Config,
		Validation:  s.Validation,
		Result:      s.Result,
		Validating:  s.Validating,
		Generating:  s.Generating,
		Downloading: s.Downloading,
		Artifact:    s.Artifact(),
	}
	if s.Master != nil {
		v.MasterFile = s.Master.Name
	}
	if s.Employee != nil {
		v.EmployeeFile = s.Employee.Name
	}
	if s.Err != nil {
		msg := MapError(s.Err)
		v.Error, v.ErrorAction, v.ErrorCode = msg.Message, msg.Action, msg.Code
	}
	if v.Mode == ModeValidationDisplayed {
		v.CanProceed = s.Validation.Proceedable()
	}
	v.CanShowDetails = v.Mode == ModeGenerationFailed && s.EmbeddedValidation() != nil
	return v
}
