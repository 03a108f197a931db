package workflow

import (
	"context"
	"sync"
)

// Kind identifies one of the three network operations. Each kind has its
// own busy flag and its own token sequence.
type Kind int

const (
	KindValidate Kind = iota
	KindGenerate
	KindDownload
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindValidate:
		return "validate"
	case KindGenerate:
		return "generate"
	case KindDownload:
		return "download"
	}
	return "unknown"
}

func (k Kind) fallback() string {
	switch k {
	case KindValidate:
		return fallbackValidate
	case KindGenerate:
		return fallbackGenerate
	default:
		return fallbackDownload
	}
}

// OutcomeStatus is how a task resolved.
type OutcomeStatus int

const (
	// OutcomeSucceeded means the result was applied to the state.
	OutcomeSucceeded OutcomeStatus = iota
	// OutcomeFailed means the error was applied to the state.
	OutcomeFailed
	// OutcomeSuperseded means the response arrived after a newer request
	// or a file change and was discarded without touching the state.
	OutcomeSuperseded
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeSuperseded:
		return "superseded"
	}
	return "unknown"
}

// Outcome is the resolution of a Task. Err is nil only on success.
type Outcome struct {
	Kind   Kind
	Token  uint64
	Status OutcomeStatus
	Err    error
}

// Task is one dispatched network operation. It resolves exactly once.
type Task struct {
	kind   Kind
	token  uint64
	cancel context.CancelFunc

	done    chan struct{}
	once    sync.Once
	outcome Outcome
}

func newTask(ctx context.Context, kind Kind, token uint64) (*Task, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &Task{
		kind:   kind,
		token:  token,
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

// Kind returns the operation kind.
func (t *Task) Kind() Kind { return t.kind }

// Token returns the dispatch token.
func (t *Task) Token() uint64 { return t.token }

// Done is closed when the task resolves.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel aborts the request. The task still resolves, as a failure if it
// was the latest of its kind or superseded otherwise.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the task resolves and returns its outcome.
func (t *Task) Wait() Outcome {
	<-t.done
	return t.outcome
}

// Outcome returns the outcome and whether the task has resolved.
func (t *Task) Outcome() (Outcome, bool) {
	select {
	case <-t.done:
		return t.outcome, true
	default:
		return Outcome{}, false
	}
}

func (t *Task) resolve(status OutcomeStatus, err error) {
	t.once.Do(func() {
		t.outcome = Outcome{Kind: t.kind, Token: t.token, Status: status, Err: err}
		t.cancel()
		close(t.done)
	})
}
