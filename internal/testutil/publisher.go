package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/deprovisioner/internal/events"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/samber/lo"
)

// RecordingPublisher implements events.Publisher in memory. Err, when set,
// is returned from every Publish call.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
}

var _ events.Publisher = (*RecordingPublisher)(nil)

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// ByName returns the published events named name.
func (p *RecordingPublisher) ByName(name types.EventName) []events.Event {
	return lo.Filter(p.Events(), func(e events.Event, _ int) bool {
		return e.EventName() == name
	})
}

func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
