package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConversationSession is the durable per-conversation state. The only field
// the pipeline mutates is AccomplishedGuidelineIDs, and it only ever grows.
type ConversationSession struct {
	ID                       uuid.UUID      `json:"id"`
	AccomplishedGuidelineIDs []string       `json:"accomplished_guideline_ids"`
	State                    map[string]any `json:"state,omitempty"`
	// Version is bumped on every successful update and used for
	// compare-and-swap writes.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccomplishedSet returns the accomplished ids as a lookup set.
func (s *ConversationSession) AccomplishedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.AccomplishedGuidelineIDs))
	for _, id := range s.AccomplishedGuidelineIDs {
		set[id] = struct{}{}
	}
	return set
}

// Clone returns a deep copy safe to hand to callers of a shared cache.
func (s *ConversationSession) Clone() *ConversationSession {
	c := *s
	c.AccomplishedGuidelineIDs = append([]string(nil), s.AccomplishedGuidelineIDs...)
	if s.State != nil {
		c.State = make(map[string]any, len(s.State))
		for k, v := range s.State {
			c.State[k] = v
		}
	}
	return &c
}
