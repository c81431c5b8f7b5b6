// Package periodic runs a function on a fixed interval until it is stopped,
// a tick budget is spent, or a stop condition holds.
package periodic

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"payagent/internal/logging"
)

// ErrStop can be returned by a tick function to end the task cleanly.
var ErrStop = stderrors.New("periodic: stop")

// TickFunc is one unit of periodic work. Ticks never overlap.
type TickFunc func(ctx context.Context) error

// Options controls a Task.
type Options struct {
	Name     string
	Interval time.Duration

	// Immediate runs the first tick on Start instead of after one interval.
	Immediate bool

	// MaxTicks ends the task after that many ticks. Zero means unbounded.
	MaxTicks int

	// Until is checked after every tick; returning true ends the task.
	Until func() bool

	// OnError receives tick errors other than ErrStop. Errors never end the
	// task on their own.
	OnError func(err error)
}

// Task owns one goroutine driving a TickFunc.
type Task struct {
	opts   Options
	fn     TickFunc
	logger *logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	ticks   int
}

// New creates a stopped task
func New(opts Options, fn TickFunc) *Task {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	name := opts.Name
	if name == "" {
		name = "task"
	}
	return &Task{
		opts:   opts,
		fn:     fn,
		logger: logging.NewDefaultLogger("periodic").WithPrefix(name),
	}
}

// Start launches the task. Starting a running task is a no-op and returns
// false.
func (t *Task) Start(parent context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running = true
	t.ticks = 0

	go t.loop(ctx, t.done)
	t.logger.Debug("Started (interval %s)", t.opts.Interval)
	return true
}

// Stop cancels the task and waits for an in-progress tick to return. After
// Stop returns no further tick runs.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Cancel signals the task to end without waiting for it. It is safe to call
// from inside a tick.
func (t *Task) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Running reports whether the task goroutine is alive
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Ticks returns how many ticks ran since the last Start
func (t *Task) Ticks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks
}

// Done is closed when the current run ends. It is nil before the first Start.
func (t *Task) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *Task) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		close(done)
	}()

	if t.opts.Immediate {
		if !t.tick(ctx) {
			return
		}
	}

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.tick(ctx) {
				return
			}
		}
	}
}

// tick runs fn once and reports whether the loop should continue.
func (t *Task) tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	err := t.fn(ctx)

	t.mu.Lock()
	t.ticks++
	ticks := t.ticks
	t.mu.Unlock()

	switch {
	case stderrors.Is(err, ErrStop):
		t.logger.Debug("Stopped by tick after %d ticks", ticks)
		return false
	case err != nil && ctx.Err() == nil:
		if t.opts.OnError != nil {
			t.opts.OnError(err)
		} else {
			t.logger.Warn("Tick failed: %v", err)
		}
	}

	if ctx.Err() != nil {
		return false
	}
	if t.opts.MaxTicks > 0 && ticks >= t.opts.MaxTicks {
		t.logger.Debug("Tick budget of %d spent", t.opts.MaxTicks)
		return false
	}
	if t.opts.Until != nil && t.opts.Until() {
		return false
	}
	return true
}
