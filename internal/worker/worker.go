// Package worker runs blocking operations on one dedicated goroutine per
// façade and reports each outcome as an event on a channel.
package worker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/logger"
)

// Tickets are unique across every façade in the process, so a consumer
// selecting over several event channels can never confuse two outcomes.
var tickets atomic.Uint64

func nextTicket() uint64 {
	return tickets.Add(1)
}

type Request struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) (any, error)
}

type Event interface {
	Ticket() uint64
	Operation() string
}

type OperationSucceeded struct {
	Seq     uint64
	Name    string
	Payload any
}

func (e OperationSucceeded) Ticket() uint64    { return e.Seq }
func (e OperationSucceeded) Operation() string { return e.Name }

type OperationFailed struct {
	Seq    uint64
	Name   string
	Reason error
}

func (e OperationFailed) Ticket() uint64    { return e.Seq }
func (e OperationFailed) Operation() string { return e.Name }

type job struct {
	seq uint64
	req Request
}

type Facade struct {
	name           string
	defaultTimeout time.Duration

	mu     sync.Mutex
	queue  []job
	closed bool
	wake   chan struct{}

	events chan Event
	base   context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Facade)

// WithEventBuffer sets how many outcomes may be pending before the worker
// waits for the consumer.
func WithEventBuffer(n int) Option {
	return func(f *Facade) {
		f.events = make(chan Event, n)
	}
}

// WithDefaultTimeout applies to requests that carry no timeout of their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(f *Facade) {
		f.defaultTimeout = d
	}
}

// New starts the worker goroutine. It lives until Close is called or ctx is
// cancelled.
func New(ctx context.Context, name string, opts ...Option) *Facade {
	base, cancel := context.WithCancel(logger.With(ctx, "worker", name))
	f := &Facade{
		name:   name,
		wake:   make(chan struct{}, 1),
		events: make(chan Event, 64),
		base:   base,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}

	go f.loop()
	return f
}

func (f *Facade) Name() string {
	return f.name
}

// Events delivers exactly one outcome per accepted request, in submission
// order. It is closed when the worker exits.
func (f *Facade) Events() <-chan Event {
	return f.events
}

// Submit queues req and returns its ticket without waiting. It returns 0 once
// the façade is closed.
func (f *Facade) Submit(req Request) uint64 {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		logger.Warn(f.base, "request rejected, worker closed", "op", req.Name)
		return 0
	}
	seq := nextTicket()
	f.queue = append(f.queue, job{seq: seq, req: req})
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
	return seq
}

// Pending reports how many requests are queued behind the one running.
func (f *Facade) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Close stops accepting requests, lets the running one finish and drops the
// rest, failing each with ErrWorkerClosed. If the worker has not exited
// within timeout its context is cancelled, aborting subprocesses and HTTP
// calls, and ErrWorkerForceStopped is returned.
func (f *Facade) Close(timeout time.Duration) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		select {
		case f.wake <- struct{}{}:
		default:
		}
	}
	f.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		f.cancel()
		return nil
	case <-timer.C:
		f.cancel()
		logger.Warn(f.base, "worker did not stop in time, aborting", "timeout", timeout)
		return errors.ErrWorkerForceStopped.WithContext("worker", f.name)
	}
}

func (f *Facade) loop() {
	defer close(f.done)
	defer close(f.events)

	for {
		j, ok := f.next()
		if !ok {
			f.drain()
			return
		}
		ev := f.execute(j)
		if !f.emit(ev) {
			return
		}
	}
}

// next blocks until a job is available. It returns false once the façade is
// closed or its context is cancelled.
func (f *Facade) next() (job, bool) {
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return job{}, false
		}
		if len(f.queue) > 0 {
			j := f.queue[0]
			f.queue[0] = job{}
			f.queue = f.queue[1:]
			f.mu.Unlock()
			return j, true
		}
		f.mu.Unlock()

		select {
		case <-f.wake:
		case <-f.base.Done():
			f.mu.Lock()
			f.closed = true
			f.mu.Unlock()
			return job{}, false
		}
	}
}

func (f *Facade) drain() {
	f.mu.Lock()
	dropped := f.queue
	f.queue = nil
	f.mu.Unlock()

	for _, j := range dropped {
		ev := OperationFailed{Seq: j.seq, Name: j.req.Name, Reason: errors.ErrWorkerClosed.WithContext("op", j.req.Name)}
		if !f.emit(ev) {
			return
		}
	}
}

func (f *Facade) emit(ev Event) bool {
	select {
	case f.events <- ev:
		return true
	case <-f.base.Done():
		return false
	}
}

func (f *Facade) execute(j job) (ev Event) {
	ctx := logger.With(f.base, "op", j.req.Name, "seq", j.seq)
	start := time.Now()

	timeout := j.req.Timeout
	if timeout <= 0 {
		timeout = f.defaultTimeout
	}
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "operation panicked", nil, "panic", r)
			ev = OperationFailed{
				Seq:    j.seq,
				Name:   j.req.Name,
				Reason: errors.ErrWorkerPanic.WithContext("op", j.req.Name).WithError(fmt.Errorf("%v", r)),
			}
		}
	}()

	logger.Debug(ctx, "operation started")
	payload, err := j.req.Run(ctx)
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = errors.ErrOperationTimeout.WithError(err).
				WithContext("op", j.req.Name).
				WithContext("timeout", timeout.String())
		}
		logger.Info(ctx, "operation failed", "error", err, "duration", time.Since(start))
		return OperationFailed{Seq: j.seq, Name: j.req.Name, Reason: err}
	}

	logger.Debug(ctx, "operation succeeded", "duration", time.Since(start))
	return OperationSucceeded{Seq: j.seq, Name: j.req.Name, Payload: payload}
}

// Await reads events until the outcome for ticket arrives. Other events are
// discarded, so it is only meant for callers that own the façade exclusively,
// like a single CLI command.
func Await(ctx context.Context, events <-chan Event, ticket uint64) (any, error) {
	if ticket == 0 {
		return nil, errors.ErrWorkerClosed
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil, errors.ErrWorkerClosed
			}
			if ev.Ticket() != ticket {
				continue
			}
			switch e := ev.(type) {
			case OperationSucceeded:
				return e.Payload, nil
			case OperationFailed:
				return nil, e.Reason
			}
		}
	}
}

// AwaitAs is Await with the payload asserted to T.
func AwaitAs[T any](ctx context.Context, events <-chan Event, ticket uint64) (T, error) {
	var zero T
	payload, err := Await(ctx, events, ticket)
	if err != nil {
		return zero, err
	}
	v, ok := payload.(T)
	if !ok {
		return zero, errors.ErrUnexpectedPayload.WithContext("type", fmt.Sprintf("%T", payload))
	}
	return v, nil
}
