package domain

import "strings"

// Message roles accepted in a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidRole checks if the role is one the engine understands.
func ValidRole(r string) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// LastUserMessage returns the content of the most recent user message.
func LastUserMessage(messages []Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser && strings.TrimSpace(messages[i].Content) != "" {
			return messages[i].Content, true
		}
	}
	return "", false
}

// SupervisionMode selects how drafts are checked against active guidelines.
type SupervisionMode string

const (
	// SupervisionRewrite streams the supervisor's (possibly rewritten) text
	// instead of the draft.
	SupervisionRewrite SupervisionMode = "rewrite"
	// SupervisionValidate streams the draft and reports per-guideline
	// compliance without altering it.
	SupervisionValidate SupervisionMode = "validate"
)

// IsValid checks if the supervision mode is valid.
func (m SupervisionMode) IsValid() bool {
	switch m {
	case SupervisionRewrite, SupervisionValidate:
		return true
	default:
		return false
	}
}

// TurnMetadata is the terminal diagnostic frame of a turn.
type TurnMetadata struct {
	ActiveGuidelines         []Guideline        `json:"activeGuidelines"`
	GuidelineMatchingResults []MatchResult      `json:"guidelineMatchingResults"`
	ValidationResults        []ValidationResult `json:"validationResults,omitempty"`
	AccomplishedGuidelines   []string           `json:"accomplishedGuidelines"`
	SupervisionMode          SupervisionMode    `json:"supervisionMode"`
}

// TurnEventType identifies the kind of frame emitted during a turn.
type TurnEventType string

const (
	EventSession  TurnEventType = "session"
	EventContent  TurnEventType = "content"
	EventMetadata TurnEventType = "metadata"
	EventError    TurnEventType = "error"
)

// TurnEvent is one frame of the turn's output stream. Exactly one of the
// payload fields is set, matching Type.
type TurnEvent struct {
	Type      TurnEventType
	SessionID string
	Content   string
	Metadata  *TurnMetadata
	Err       error
}

// StreamChunk is one increment of generated text. A chunk with a non-nil Err
// terminates the stream.
type StreamChunk struct {
	Delta string
	Err   error
}
