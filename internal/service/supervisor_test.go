package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/Harshitk-cp/conductor/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	chunks []string
}

func (e *emitted) emit(s string) error {
	e.chunks = append(e.chunks, s)
	return nil
}

func (e *emitted) text() string {
	return strings.Join(e.chunks, "")
}

const trickyDraft = "Hello, Ana!  Your order #42 ships tomorrow 🚚.\n\n  Anything else?  "

func TestSupervisor_RewriteStreamsSupervisorText(t *testing.T) {
	mock := llm.NewMockClient()
	mock.StreamResponses = []llm.MockStream{{Chunks: []string{"Hi Ana, ", "your order ships ", "tomorrow."}}}
	s := NewSupervisor(mock, testLogger())
	out := &emitted{}

	res, err := s.Rewrite(context.Background(), "draft text", guidelines("greet"), out.emit)

	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Kind)
	assert.False(t, res.FellBack)
	assert.Equal(t, []string{"Hi Ana, ", "your order ships ", "tomorrow."}, out.chunks)
	assert.Equal(t, out.text(), res.Final)

	require.Len(t, mock.StreamCalls, 1)
	prompt := mock.StreamCalls[0].Messages[0].Content
	assert.Contains(t, prompt, "draft text")
	assert.Contains(t, prompt, "1. action greet")
}

func TestSupervisor_RewriteFailureEmitsDraftByteIdentical(t *testing.T) {
	cases := map[string]llm.MockStream{
		"call fails":               {Err: errors.New("503 from provider")},
		"stream fails before text": {MidErr: errors.New("connection reset")},
		"empty rewrite":            {Chunks: []string{}},
	}

	for name, stream := range cases {
		t.Run(name, func(t *testing.T) {
			mock := llm.NewMockClient()
			mock.StreamResponses = []llm.MockStream{stream}
			s := NewSupervisor(mock, testLogger())
			out := &emitted{}

			res, err := s.Rewrite(context.Background(), trickyDraft, guidelines("greet"), out.emit)

			require.NoError(t, err)
			assert.True(t, res.FellBack)
			assert.NotEqual(t, OutcomeOK, res.Kind)
			assert.Equal(t, trickyDraft, out.text())
			assert.Equal(t, trickyDraft, res.Final)
		})
	}
}

func TestSupervisor_RewriteMidStreamFailureKeepsEmittedText(t *testing.T) {
	mock := llm.NewMockClient()
	mock.StreamResponses = []llm.MockStream{{Chunks: []string{"Hi Ana, "}, MidErr: errors.New("connection reset")}}
	s := NewSupervisor(mock, testLogger())
	out := &emitted{}

	res, err := s.Rewrite(context.Background(), trickyDraft, guidelines("greet"), out.emit)

	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Kind)
	assert.False(t, res.FellBack)
	assert.Equal(t, "Hi Ana, ", out.text())
	assert.Equal(t, "Hi Ana, ", res.Final)
}

func TestSupervisor_RewriteNoActiveIsNoop(t *testing.T) {
	mock := llm.NewMockClient()
	s := NewSupervisor(mock, testLogger())
	out := &emitted{}

	res, err := s.Rewrite(context.Background(), trickyDraft, nil, out.emit)

	require.NoError(t, err)
	assert.Equal(t, trickyDraft, res.Final)
	assert.Equal(t, trickyDraft, out.text())
	assert.Empty(t, mock.StreamCalls)
}

func TestSupervisor_RewriteEmitErrorStops(t *testing.T) {
	mock := llm.NewMockClient()
	mock.StreamResponses = []llm.MockStream{{Chunks: []string{"a", "b"}}}
	s := NewSupervisor(mock, testLogger())
	gone := errors.New("client gone")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := s.Rewrite(ctx, "draft", guidelines("g"), func(string) error { return gone })

	assert.ErrorIs(t, err, gone)
}

func TestSupervisor_ValidateParsesResults(t *testing.T) {
	mock := llm.NewMockClient()
	mock.CompleteResponses = []llm.MockResponse{{Text: `{"validations":[
		{"guideline_id":"b","followed":false,"reason":"no greeting"},
		{"guideline_id":"a","followed":true,"reason":"asked for id"}
	]}`}}
	s := NewSupervisor(mock, testLogger())

	out := s.Validate(context.Background(), "reply", guidelines("a", "b", "c"))

	require.Equal(t, OutcomeOK, out.Kind)
	assert.Equal(t, []domain.ValidationResult{
		{GuidelineID: "a", Followed: true, Reason: "asked for id"},
		{GuidelineID: "b", Followed: false, Reason: "no greeting"},
		{GuidelineID: "c", Followed: false, Reason: ReasonNotAssessed},
	}, out.Results)
	require.Len(t, mock.CompleteCalls, 1)
	assert.True(t, mock.CompleteCalls[0].JSON)
}

func TestSupervisor_ValidateFailureMarksAllUnfollowed(t *testing.T) {
	cases := map[string]llm.MockResponse{
		"call fails": {Err: errors.New("timeout")},
		"malformed":  {Text: "all good!"},
	}

	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			mock := llm.NewMockClient()
			mock.CompleteResponses = []llm.MockResponse{resp}
			s := NewSupervisor(mock, testLogger())

			out := s.Validate(context.Background(), "reply", guidelines("a", "b"))

			assert.NotEqual(t, OutcomeOK, out.Kind)
			require.Len(t, out.Results, 2)
			for i, id := range []string{"a", "b"} {
				assert.Equal(t, id, out.Results[i].GuidelineID)
				assert.False(t, out.Results[i].Followed)
				assert.Equal(t, ReasonValidationUnavailable, out.Results[i].Reason)
			}
		})
	}
}

func TestSupervisor_ValidateNoActiveIsNoop(t *testing.T) {
	mock := llm.NewMockClient()
	s := NewSupervisor(mock, testLogger())

	out := s.Validate(context.Background(), "reply", nil)

	assert.Equal(t, OutcomeOK, out.Kind)
	assert.Empty(t, out.Results)
	assert.Empty(t, mock.CompleteCalls)
}
