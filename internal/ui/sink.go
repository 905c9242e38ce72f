package ui

import (
	"sync"

	"github.com/thomas-vilte/materelease/internal/saga"
)

// StepMsg, FinishedMsg and SettledMsg are what EventSink emits. They double as
// bubbletea messages for the progress view.
type StepMsg struct {
	RunID string
	Step  saga.Step
	Text  string
}

type FinishedMsg saga.Notification

type SettledMsg saga.Report

const sinkBuffer = 128

// EventSink queues saga callbacks on a channel so the coordinator never waits
// on rendering. The consumer drains until a SettledMsg arrives and calls
// Close when it stops reading; later callbacks are dropped.
type EventSink struct {
	events chan any
	done   chan struct{}
	once   sync.Once
}

func NewEventSink() *EventSink {
	return &EventSink{
		events: make(chan any, sinkBuffer),
		done:   make(chan struct{}),
	}
}

func (s *EventSink) Events() <-chan any {
	return s.events
}

// Close detaches the consumer. It is safe to call more than once.
func (s *EventSink) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *EventSink) send(msg any) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- msg:
	case <-s.done:
	}
}

func (s *EventSink) StepChanged(runID string, step saga.Step, text string) {
	s.send(StepMsg{RunID: runID, Step: step, Text: text})
}

func (s *EventSink) Finished(n saga.Notification) {
	s.send(FinishedMsg(n))
}

func (s *EventSink) Settled(r saga.Report) {
	s.send(SettledMsg(r))
}

// Tee fans every callback out to several sinks, in order.
type Tee []saga.Sink

func (t Tee) StepChanged(runID string, step saga.Step, text string) {
	for _, s := range t {
		s.StepChanged(runID, step, text)
	}
}

func (t Tee) Finished(n saga.Notification) {
	for _, s := range t {
		s.Finished(n)
	}
}

func (t Tee) Settled(r saga.Report) {
	for _, s := range t {
		s.Settled(r)
	}
}
