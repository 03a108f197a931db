package converter

// limiter.go bounds how many calls every session together may have in
// flight against the conversion service.
//
// Each Validate, Generate or Download waits up to maxWait for a slot and
// fails with ErrServiceBusy when none frees up. A download holds its slot
// until the caller closes the body.

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/JonMunkholm/excelsql/internal/workflow"
)

// ErrServiceBusy is returned when every slot stays occupied for the whole
// wait. The workflow surfaces it like any other transport failure.
var ErrServiceBusy = errors.New("conversion service is busy, please try again later")

// DefaultMaxConcurrent is the default number of parallel service calls.
const DefaultMaxConcurrent = 8

// DefaultMaxWait is how long a call queues for a slot before failing.
const DefaultMaxWait = 30 * time.Second

// Limiter wraps a workflow.Service with a shared semaphore.
type Limiter struct {
	next      workflow.Service
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

var _ workflow.Service = (*Limiter)(nil)

// NewLimiter allows at most maxConcurrent simultaneous calls to next.
func NewLimiter(next workflow.Service, maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Limiter{
		next:      next,
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

func (l *Limiter) acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-timer.C:
		return ErrServiceBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.semaphore
}

// Validate forwards to the wrapped service once a slot is free.
func (l *Limiter) Validate(ctx context.Context, master, employee workflow.UploadedFile) (*workflow.ValidationReport, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.next.Validate(ctx, master, employee)
}

// Generate forwards to the wrapped service once a slot is free.
func (l *Limiter) Generate(ctx context.Context, master, employee workflow.UploadedFile, params workflow.GenerateParams) (*workflow.GenerationResult, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.next.Generate(ctx, master, employee, params)
}

// Download keeps its slot until the returned body is closed.
func (l *Limiter) Download(ctx context.Context, filename string) (io.ReadCloser, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	body, err := l.next.Download(ctx, filename)
	if err != nil {
		l.release()
		return nil, err
	}
	return &releasingBody{ReadCloser: body, release: l.release}, nil
}

type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}

// ActiveCount returns the number of calls currently holding a slot.
func (l *Limiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// LimiterStatus is a snapshot of the limiter for the status endpoint.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *Limiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}

// WaitForDrain blocks until no call holds a slot or ctx is done.
// Used during shutdown so in-flight generations can finish.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
