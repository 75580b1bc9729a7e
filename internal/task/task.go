// Package task runs work on a fixed period until it is cancelled.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrAlreadyRunning = errors.New("task: already running")
	ErrStopped        = errors.New("task: stopped tasks cannot be restarted")
	ErrInvalidPeriod  = errors.New("task: period must not be negative")

	// ErrFinished is returned by a Func that has no more work. The task ends
	// without reporting an error.
	ErrFinished = errors.New("task: finished")
)

// State is the lifecycle position of a periodic task.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Func is one unit of periodic work. Returning an error stops the task.
type Func func(ctx context.Context) error

// Periodic calls its Func, suspends for the period, and repeats. A zero
// period runs back to back. Cancellation is checked at every suspension.
type Periodic struct {
	name   string
	period time.Duration
	fn     Func
	log    *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

type Option func(*Periodic)

func WithLogger(l *zap.Logger) Option {
	return func(p *Periodic) {
		if l != nil {
			p.log = l
		}
	}
}

func New(name string, period time.Duration, fn Func, opts ...Option) (*Periodic, error) {
	if period < 0 {
		return nil, fmt.Errorf("%w: %s has period %v", ErrInvalidPeriod, name, period)
	}
	if fn == nil {
		return nil, fmt.Errorf("task: %s has no work function", name)
	}
	p := &Periodic{
		name:   name,
		period: period,
		fn:     fn,
		log:    zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Periodic) Name() string          { return p.name }
func (p *Periodic) Period() time.Duration { return p.period }

func (p *Periodic) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start launches the task in its own goroutine. The task ends when ctx is
// cancelled, Stop is called, or the work returns an error.
func (p *Periodic) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case Running:
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, p.name)
	case Stopped:
		return fmt.Errorf("%w: %s", ErrStopped, p.name)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state = Running

	p.log.Info("task started", zap.String("task", p.name), zap.Duration("period", p.period))
	go p.loop(ctx)
	return nil
}

// Stop cancels the task and waits for it to exit. It returns the error the
// work failed with, if any. Stopping an idle task marks it stopped.
func (p *Periodic) Stop() error {
	p.mu.Lock()
	switch p.state {
	case Idle:
		p.state = Stopped
		close(p.done)
		p.mu.Unlock()
		return nil
	case Running:
		p.cancel()
	}
	p.mu.Unlock()

	<-p.done
	return p.Err()
}

// Run starts the task and blocks until it ends. Cancellation of ctx is a
// normal exit and returns nil.
func (p *Periodic) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-p.done
	return p.Err()
}

// Done is closed once the task has exited.
func (p *Periodic) Done() <-chan struct{} { return p.done }

func (p *Periodic) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Periodic) loop(ctx context.Context) {
	var err error
	defer func() {
		if err != nil {
			p.log.Error("task failed", zap.String("task", p.name), zap.Error(err))
		} else {
			p.log.Info("task stopped", zap.String("task", p.name))
		}

		p.mu.Lock()
		p.err = err
		p.state = Stopped
		p.cancel()
		close(p.done)
		p.mu.Unlock()
	}()

	var timer *time.Timer
	if p.period > 0 {
		timer = time.NewTimer(p.period)
		defer timer.Stop()
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if err = p.fn(ctx); err != nil {
			if errors.Is(err, ErrFinished) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
				err = nil
			}
			return
		}

		if timer == nil {
			continue
		}

		timer.Reset(p.period)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}
