package saga

import (
	"context"

	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/models"
	"github.com/thomas-vilte/materelease/internal/worker"
)

// PublishRequest carries everything a run needs by value.
type PublishRequest struct {
	Draft    models.ReleaseDraft
	Handle   models.RepositoryHandle
	Settings Settings
}

type publishCall struct {
	req   PublishRequest
	reply chan publishReply
}

type publishReply struct {
	runID string
	err   error
}

// Coordinator owns a Saga on one goroutine. Worker events and user requests
// reach the saga only through Run's select loop.
type Coordinator struct {
	saga    *Saga
	sources []<-chan worker.Event
	publish chan publishCall
	cancel  chan chan bool
	idle    chan chan bool
}

// NewCoordinator wires saga to the event streams of its façades. Nil
// streams are ignored.
func NewCoordinator(saga *Saga, events ...<-chan worker.Event) *Coordinator {
	sources := make([]<-chan worker.Event, 0, len(events))
	for _, ev := range events {
		if ev != nil {
			sources = append(sources, ev)
		}
	}
	return &Coordinator{
		saga:    saga,
		sources: sources,
		publish: make(chan publishCall),
		cancel:  make(chan chan bool),
		idle:    make(chan chan bool),
	}
}

// Run processes events and requests until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	merged := make(chan worker.Event)
	for _, src := range c.sources {
		go forward(ctx, src, merged)
	}

	for {
		select {
		case <-ctx.Done():
			if c.saga.Active() {
				logger.Warn(ctx, "coordinator stopped with a publish in progress", "step", c.saga.Step())
			}
			return ctx.Err()
		case ev := <-merged:
			c.saga.Handle(ctx, ev)
		case call := <-c.publish:
			id, err := c.saga.Begin(ctx, call.req.Draft, call.req.Handle, call.req.Settings)
			call.reply <- publishReply{runID: id, err: err}
		case reply := <-c.cancel:
			reply <- c.saga.Cancel(ctx)
		case reply := <-c.idle:
			reply <- !c.saga.Active()
		}
	}
}

// forward copies one façade's events into the coordinator's loop, keeping
// their order. It stops when the stream closes or ctx is done.
func forward(ctx context.Context, src <-chan worker.Event, dst chan<- worker.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src:
			if !ok {
				return
			}
			select {
			case dst <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Publish starts a run and returns its id. It fails with
// ErrPublishInProgress while a run or its rollback is active.
func (c *Coordinator) Publish(ctx context.Context, req PublishRequest) (string, error) {
	reply := make(chan publishReply, 1)
	select {
	case c.publish <- publishCall{req: req, reply: reply}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-reply:
		return r.runID, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Cancel asks the active run to roll back after its current step.
func (c *Coordinator) Cancel(ctx context.Context) bool {
	return c.ask(ctx, c.cancel)
}

// Idle reports whether no run or rollback is active.
func (c *Coordinator) Idle(ctx context.Context) bool {
	return c.ask(ctx, c.idle)
}

func (c *Coordinator) ask(ctx context.Context, ch chan chan bool) bool {
	reply := make(chan bool, 1)
	select {
	case ch <- reply:
	case <-ctx.Done():
		return false
	}
	select {
	case v := <-reply:
		return v
	case <-ctx.Done():
		return false
	}
}
