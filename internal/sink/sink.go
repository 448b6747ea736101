// Package sink provides Reporter implementations the engine pushes its
// trade and acknowledgment events into.
package sink

import (
	"errors"

	"skoll/internal/common"
)

// Event is one entry of a reporter's output stream; exactly one field is set.
type Event struct {
	Trade *common.Trade
	Ack   *common.OrderAck
}

// ChannelReporter buffers events for an in-process consumer. It backs tests
// and any component that wants to drain the event stream itself.
type ChannelReporter struct {
	events chan Event
}

func NewChannelReporter(buffer int) *ChannelReporter {
	return &ChannelReporter{
		events: make(chan Event, buffer),
	}
}

func (r *ChannelReporter) ReportTrade(trade common.Trade) error {
	r.events <- Event{Trade: &trade}
	return nil
}

func (r *ChannelReporter) ReportAck(ack common.OrderAck) error {
	r.events <- Event{Ack: &ack}
	return nil
}

// Events exposes the ordered event stream.
func (r *ChannelReporter) Events() <-chan Event {
	return r.events
}

// MultiReporter fans every event out to all wrapped reporters. A failing
// reporter does not stop delivery to the others.
type MultiReporter struct {
	reporters []Reporter
}

// Reporter mirrors engine.Reporter; redeclared here so the sink package
// does not import the engine it feeds.
type Reporter interface {
	ReportTrade(trade common.Trade) error
	ReportAck(ack common.OrderAck) error
}

func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

func (m *MultiReporter) ReportTrade(trade common.Trade) error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.ReportTrade(trade); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiReporter) ReportAck(ack common.OrderAck) error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.ReportAck(ack); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
