package audit

import (
	"context"
	"errors"
)

// defaultQueueSize is the AsyncRecorder buffer when none is given.
const defaultQueueSize = 256

// ErrQueueFull is returned by AsyncRecorder.Create when the entry was
// dropped.
var ErrQueueFull = errors.New("audit: queue full")

// Logger is the logging interface used by AsyncRecorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AsyncRecorder queues entries and writes them serially from Run, so
// request handlers never wait on the database. Entries beyond the buffer
// are dropped.
type AsyncRecorder struct {
	repo   Repository
	ch     chan *Entry
	logger Logger
}

// NewAsyncRecorder creates a recorder writing to repo.
func NewAsyncRecorder(repo Repository, size int) *AsyncRecorder {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &AsyncRecorder{repo: repo, ch: make(chan *Entry, size), logger: noopLogger{}}
}

// SetLogger sets the logger for write failures and drops.
func (a *AsyncRecorder) SetLogger(logger Logger) {
	if logger != nil {
		a.logger = logger
	}
}

// Create enqueues a copy of e. It never blocks.
func (a *AsyncRecorder) Create(_ context.Context, e *Entry) error {
	entry := *e
	select {
	case a.ch <- &entry:
		return nil
	default:
		a.logger.Warn("audit queue full, dropping entry", "action", e.Action, "owner", e.Owner)
		return ErrQueueFull
	}
}

// Run writes queued entries until ctx is done, then drains what is left.
func (a *AsyncRecorder) Run(ctx context.Context) {
	for {
		select {
		case e := <-a.ch:
			a.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-a.ch:
					a.write(e)
				default:
					return
				}
			}
		}
	}
}

func (a *AsyncRecorder) write(e *Entry) {
	// The request that produced e may be gone; the write must not inherit
	// its cancellation.
	if err := a.repo.Create(context.Background(), e); err != nil {
		a.logger.Error("audit write failed", "action", e.Action, "owner", e.Owner, "error", err)
	}
}
