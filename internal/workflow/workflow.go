package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// Service is the remote conversion service.
type Service interface {
	Validate(ctx context.Context, master, employee UploadedFile) (*ValidationReport, error)
	Generate(ctx context.Context, master, employee UploadedFile, params GenerateParams) (*GenerationResult, error)
	Download(ctx context.Context, filename string) (io.ReadCloser, error)
}

// GenerationRecord describes an applied generation result.
type GenerationRecord struct {
	Token        uint64
	MasterFile   string
	EmployeeFile string
	Params       GenerateParams
	Result       GenerationResult
}

// Options configures a Workflow.
type Options struct {
	Service Service

	// Defaults is the initial configuration; nil means DefaultConfiguration.
	Defaults *Configuration

	Logger *slog.Logger

	// OnGenerated is called after a generation result has been applied.
	OnGenerated func(GenerationRecord)
}

// Workflow owns the state of one import session and gates its network
// operations. Local transitions are applied under a mutex, so they are
// atomic with respect to in-flight responses.
type Workflow struct {
	svc         Service
	log         *slog.Logger
	onGenerated func(GenerationRecord)

	mu    sync.Mutex
	state State

	// seq holds the latest dispatched token per kind. A response is applied
	// only if its token still equals seq for its kind.
	seq [numKinds]uint64
	// inflight holds the token that owns the busy flag, 0 when idle.
	inflight [numKinds]uint64

	listeners []chan View
	closed    bool
}

// New creates a Workflow.
func New(opts Options) *Workflow {
	cfg := DefaultConfiguration()
	if opts.Defaults != nil {
		cfg = *opts.Defaults
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		svc:         opts.Service,
		log:         logger,
		onGenerated: opts.OnGenerated,
		state:       NewState(cfg),
	}
}

// State returns a snapshot of the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// View returns the interpreted projection of the current state.
func (w *Workflow) View() View {
	return NewView(w.State())
}

// Mode returns the current workflow mode.
func (w *Workflow) Mode() Mode {
	return Interpret(w.State())
}

// SelectMaster admits the master data file.
func (w *Workflow) SelectMaster(name string, content []byte) error {
	return w.Select(SlotMaster, name, content)
}

// SelectEmployee admits the employee details file.
func (w *Workflow) SelectEmployee(name string, content []byte) error {
	return w.Select(SlotEmployee, name, content)
}

// Select admits a file into slot. Rejection leaves the previous file in
// place and sets the visible error. Admission clears the error, the
// validation report and the generation result, and invalidates every
// in-flight response.
func (w *Workflow) Select(slot Slot, name string, content []byte) error {
	f, err := NewUploadedFile(name, content)
	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		var ie *InputError
		if errors.As(err, &ie) {
			ie.Slot = slot
		}
		w.applyLocked(fileRejected{err: err})
		return err
	}

	for k := Kind(0); k < numKinds; k++ {
		w.seq[k]++
		if w.inflight[k] != 0 {
			w.inflight[k] = 0
			w.applyLocked(opFinished{kind: k})
		}
	}
	w.applyLocked(fileSelected{slot: slot, file: f})
	w.log.Debug("file selected", "slot", slot, "name", name, "bytes", f.Size())
	return nil
}

// SetConfig replaces the configuration. It never touches results: values
// are read by value when a generation is dispatched.
func (w *Workflow) SetConfig(cfg Configuration) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := cfg.Check(); err != nil {
		ie := &InputError{Err: fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)}
		w.applyLocked(configRejected{err: ie})
		return ie
	}
	w.applyLocked(configChanged{cfg: cfg})
	return nil
}

// SetConfigText parses the three numeric parameters from text fields and
// applies them. Surrounding whitespace is ignored.
func (w *Workflow) SetConfigText(tenantID, operatedByUID, startingUID string) error {
	fields := []struct {
		name string
		raw  string
		dst  *int64
	}{
		{"tenant_id", tenantID, new(int64)},
		{"operated_by_uid", operatedByUID, new(int64)},
		{"starting_uid", startingUID, new(int64)},
	}
	for _, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f.raw), 10, 64)
		if err != nil {
			ie := &InputError{Name: f.name, Err: fmt.Errorf("%w: %q is not a whole number", ErrInvalidConfiguration, f.raw)}
			w.mu.Lock()
			w.applyLocked(configRejected{err: ie})
			w.mu.Unlock()
			return ie
		}
		*f.dst = v
	}
	return w.SetConfig(Configuration{
		TenantID:      *fields[0].dst,
		OperatedByUID: *fields[1].dst,
		StartingUID:   *fields[2].dst,
	})
}

// StartValidate dispatches a pre-check of both files.
func (w *Workflow) StartValidate(ctx context.Context) (*Task, error) {
	return w.dispatch(ctx, KindValidate, nil, func(ctx context.Context, s State) (action, error) {
		report, err := w.svc.Validate(ctx, *s.Master, *s.Employee)
		if err != nil {
			return nil, err
		}
		if report == nil {
			return nil, fmt.Errorf("empty validation response")
		}
		if report.Normalize() {
			w.log.Warn("server can_proceed disagreed with error lists", "can_proceed", report.CanProceed)
		}
		return validated{report: *report}, nil
	})
}

// Validate runs StartValidate and waits for the outcome.
func (w *Workflow) Validate(ctx context.Context) error {
	return wait(w.StartValidate(ctx))
}

// StartGenerate dispatches SQL generation with the configuration current
// at dispatch time.
func (w *Workflow) StartGenerate(ctx context.Context, skipValidation bool) (*Task, error) {
	return w.dispatch(ctx, KindGenerate, nil, func(ctx context.Context, s State) (action, error) {
		params := GenerateParams{Config: s.Config, SkipValidation: skipValidation}
		result, err := w.svc.Generate(ctx, *s.Master, *s.Employee, params)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, fmt.Errorf("empty generation response")
		}
		if err := result.Normalize(); err != nil {
			return nil, err
		}
		return generated{result: *result, params: params}, nil
	}, func(t *Task, s State, a action) {
		if w.onGenerated == nil {
			return
		}
		g := a.(generated)
		w.onGenerated(GenerationRecord{
			Token:        t.token,
			MasterFile:   s.Master.Name,
			EmployeeFile: s.Employee.Name,
			Params:       g.params,
			Result:       g.result,
		})
	})
}

// Generate runs StartGenerate and waits for the outcome.
func (w *Workflow) Generate(ctx context.Context, skipValidation bool) error {
	return wait(w.StartGenerate(ctx, skipValidation))
}

// StartDownload fetches the artifact named filename and hands it to sink.
// filename must equal the current successful result's filename. The
// response body is closed on every path.
func (w *Workflow) StartDownload(ctx context.Context, filename string, sink Sink) (*Task, error) {
	precheck := func(s State) error {
		if filename == "" || filename != s.Artifact() {
			return fmt.Errorf("%w: %q", ErrInvalidArtifactReference, filename)
		}
		return nil
	}

	return w.dispatch(ctx, KindDownload, precheck, func(ctx context.Context, s State) (action, error) {
		body, err := w.svc.Download(ctx, filename)
		if err != nil {
			return nil, err
		}
		defer body.Close()

		if err := sink.Save(ctx, filename, body); err != nil {
			return nil, fmt.Errorf("save %s: %w", filename, err)
		}
		return nil, nil
	})
}

// Download runs StartDownload and waits for the outcome.
func (w *Workflow) Download(ctx context.Context, filename string, sink Sink) error {
	return wait(w.StartDownload(ctx, filename, sink))
}

// ShowValidationDetails re-displays the validation report embedded in a
// failed generation result. No request is made.
func (w *Workflow) ShowValidationDetails() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.EmbeddedValidation() == nil {
		return ErrNoEmbeddedValidation
	}
	w.applyLocked(detailsRevealed{})
	return nil
}

// Subscribe returns a channel that receives a View after every state
// change, starting with the current one. Slow receivers miss updates
// rather than block the workflow.
func (w *Workflow) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 16)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	w.listeners = append(w.listeners, ch)
	ch <- NewView(w.state)
	w.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			for i, l := range w.listeners {
				if l == ch {
					w.listeners = append(w.listeners[:i], w.listeners[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}
}

// Close closes every subscriber channel. In-flight tasks still resolve.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for _, ch := range w.listeners {
		close(ch)
	}
	w.listeners = nil
}

type runFunc func(ctx context.Context, s State) (action, error)

type appliedFunc func(t *Task, s State, a action)

// dispatch checks preconditions, takes the busy flag and a token, and runs
// fn in its own goroutine against the state captured at dispatch. A
// precheck failure is returned without touching the state.
func (w *Workflow) dispatch(ctx context.Context, kind Kind, precheck func(State) error, fn runFunc, onApplied ...appliedFunc) (*Task, error) {
	w.mu.Lock()
	if precheck != nil {
		if err := precheck(w.state); err != nil {
			w.mu.Unlock()
			return nil, err
		}
	}
	if !w.state.HasFiles() {
		err := &InputError{Err: ErrIncompleteInput}
		w.applyLocked(opFailed{err: err})
		w.mu.Unlock()
		return nil, err
	}
	if w.inflight[kind] != 0 {
		w.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", kind, ErrBusy)
	}

	w.seq[kind]++
	token := w.seq[kind]
	w.inflight[kind] = token
	w.applyLocked(opStarted{kind: kind})
	snapshot := w.state
	w.mu.Unlock()

	task, tctx := newTask(ctx, kind, token)
	logger := w.log.With("op", kind.String(), "token", token)
	logger.Debug("request dispatched")

	go func() {
		a, err := fn(tctx, snapshot)
		w.finish(task, logger, a, err, onApplied)
	}()
	return task, nil
}

// finish releases the busy flag and applies the response if its token is
// still the latest of its kind.
func (w *Workflow) finish(t *Task, logger *slog.Logger, a action, err error, onApplied []appliedFunc) {
	w.mu.Lock()
	if w.inflight[t.kind] == t.token {
		w.inflight[t.kind] = 0
		w.applyLocked(opFinished{kind: t.kind})
	}

	if w.seq[t.kind] != t.token {
		w.mu.Unlock()
		logger.Info("response discarded", "latest", w.latest(t.kind), "error", err)
		t.resolve(OutcomeSuperseded, ErrSuperseded)
		return
	}

	if err != nil {
		failure := newTransportError(t.kind, err)
		w.applyLocked(opFailed{err: failure})
		w.mu.Unlock()
		logger.Warn("request failed", "error", err)
		t.resolve(OutcomeFailed, failure)
		return
	}

	if a != nil {
		w.applyLocked(a)
	}
	applied := w.state
	w.mu.Unlock()

	logger.Debug("request succeeded")
	for _, fn := range onApplied {
		fn(t, applied, a)
	}
	t.resolve(OutcomeSucceeded, nil)
}

func (w *Workflow) latest(k Kind) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq[k]
}

// applyLocked reduces each action into the state and notifies listeners.
// The caller holds w.mu.
func (w *Workflow) applyLocked(actions ...action) {
	for _, a := range actions {
		w.state = reduce(w.state, a)
	}
	if len(actions) == 0 || len(w.listeners) == 0 {
		return
	}
	v := NewView(w.state)
	for _, ch := range w.listeners {
		select {
		case ch <- v:
		default:
		}
	}
}

func wait(t *Task, err error) error {
	if err != nil {
		return err
	}
	return t.Wait().Err
}
