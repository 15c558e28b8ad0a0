package events

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/conductor/internal/domain"
)

// Noop discards events. Used when NATS_URL is not configured.
type Noop struct{}

func (Noop) PublishTurnCompleted(context.Context, domain.TurnCompleted) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []domain.TurnCompleted
	Err    error
}

func (r *Recorder) PublishTurnCompleted(_ context.Context, e domain.TurnCompleted) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Events = append(r.Events, e)
	return nil
}

// Published returns a copy of the recorded events.
func (r *Recorder) Published() []domain.TurnCompleted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TurnCompleted(nil), r.Events...)
}

var (
	_ domain.EventPublisher = Noop{}
	_ domain.EventPublisher = (*Recorder)(nil)
)
