package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrEmbedding     = errors.New("message embedding failed")
	ErrNoUserMessage = errors.New("conversation has no user message")
	ErrInvalidMode   = errors.New("invalid supervision mode")
)

var tracer = otel.Tracer("github.com/Harshitk-cp/conductor/internal/service")

// TurnRequest is one user turn.
type TurnRequest struct {
	Messages  []domain.Message
	SessionID string
	// Mode overrides the engine's default supervision mode when set.
	Mode domain.SupervisionMode
}

// EmitFunc receives the turn's frames in order. Returning an error stops
// the turn without persisting anything further.
type EmitFunc func(domain.TurnEvent) error

// Engine runs the matching and supervision pipeline for a single turn.
type Engine struct {
	embedder    domain.EmbeddingClient
	retriever   *Retriever
	classifier  *Classifier
	generator   *Generator
	supervisor  *Supervisor
	sessions    *SessionService
	publisher   domain.EventPublisher
	defaultMode domain.SupervisionMode
	logger      *zap.Logger
}

func NewEngine(
	embedder domain.EmbeddingClient,
	retriever *Retriever,
	classifier *Classifier,
	generator *Generator,
	supervisor *Supervisor,
	sessions *SessionService,
	defaultMode domain.SupervisionMode,
	logger *zap.Logger,
) *Engine {
	if !defaultMode.IsValid() {
		defaultMode = domain.SupervisionRewrite
	}
	return &Engine{
		embedder:    embedder,
		retriever:   retriever,
		classifier:  classifier,
		generator:   generator,
		supervisor:  supervisor,
		sessions:    sessions,
		defaultMode: defaultMode,
		logger:      logger,
	}
}

// SetPublisher enables turn.completed events.
func (e *Engine) SetPublisher(p domain.EventPublisher) {
	e.publisher = p
}

// RunTurn executes one turn, sending the session frame, content frames and
// the metadata frame through emit. An error returned after the session frame
// should be reported to the client as an error frame. If ctx is cancelled
// the session is left untouched.
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest, emit EmitFunc) error {
	mode := req.Mode
	if mode == "" {
		mode = e.defaultMode
	}
	if !mode.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	userMessage, ok := domain.LastUserMessage(req.Messages)
	if !ok {
		return ErrNoUserMessage
	}

	ctx, span := tracer.Start(ctx, "conductor.turn", trace.WithAttributes(
		attribute.String("supervision.mode", string(mode)),
		attribute.Int("messages", len(req.Messages)),
	))
	defer span.End()

	// Stops stream producers if the turn returns early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := e.runTurn(ctx, req, mode, userMessage, emit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (e *Engine) runTurn(ctx context.Context, req TurnRequest, mode domain.SupervisionMode, userMessage string, emit EmitFunc) error {
	// The session frame goes out before the store is touched so a client
	// always learns its id, even when loading the session fails.
	sessionID := e.sessions.ResolveID(req.SessionID).String()
	log := e.logger.With(zap.String("session_id", sessionID))
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("session.id", sessionID))

	if err := emit(domain.TurnEvent{Type: domain.EventSession, SessionID: sessionID}); err != nil {
		return err
	}

	sess, err := e.sessions.LoadOrCreate(ctx, sessionID)
	if err != nil {
		log.Error("session load failed", zap.Error(err))
		return err
	}

	embedding, err := e.embed(ctx, userMessage)
	if err != nil {
		log.Error("embedding failed", zap.Error(err))
		return err
	}

	candidates, err := e.retrieve(ctx, embedding, sess.AccomplishedGuidelineIDs)
	if err != nil {
		log.Error("retrieval failed", zap.Error(err))
		return err
	}

	outcome := e.classify(ctx, candidates, userMessage, req.Messages)
	active := outcome.Active(candidates)
	instructions := AssembleInstructions(active)

	log.Debug("guidelines matched",
		zap.Int("candidates", len(candidates)),
		zap.Int("active", len(active)),
		zap.String("classifier_outcome", outcome.Kind.String()),
	)

	emitContent := func(delta string) error {
		return emit(domain.TurnEvent{Type: domain.EventContent, Content: delta})
	}

	// With rewrite supervision the draft is held back and only the
	// supervisor's text reaches the client.
	holdDraft := mode == domain.SupervisionRewrite && len(active) > 0

	draft, err := e.generate(ctx, instructions, req.Messages, holdDraft, emitContent)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("generation failed", zap.Error(err))
		}
		return err
	}

	var validations []domain.ValidationResult
	if len(active) > 0 {
		switch mode {
		case domain.SupervisionRewrite:
			if err := e.rewrite(ctx, draft, active, emitContent); err != nil {
				return err
			}
		case domain.SupervisionValidate:
			validations = e.validate(ctx, draft, active)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	added, err := e.sessions.MarkAccomplished(ctx, sess, active, validations)
	if err != nil {
		log.Error("failed to persist session state", zap.Error(err))
		return err
	}

	e.publish(ctx, log, domain.TurnCompleted{
		SessionID:            sess.ID,
		ActiveGuidelineIDs:   domain.GuidelineIDs(active),
		NewlyAccomplishedIDs: nonNil(added),
		Mode:                 mode,
		OccurredAt:           time.Now().UTC(),
	})

	meta := &domain.TurnMetadata{
		ActiveGuidelines:         nonNilGuidelines(active),
		GuidelineMatchingResults: nonNilResults(outcome.Results),
		ValidationResults:        validations,
		AccomplishedGuidelines:   nonNil(sess.AccomplishedGuidelineIDs),
		SupervisionMode:          mode,
	}
	return emit(domain.TurnEvent{Type: domain.EventMetadata, Metadata: meta})
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "conductor.embed")
	defer span.End()

	embedding, err := e.embedder.Embed(ctx, text)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrEmbedding)
	}
	return embedding, nil
}

func (e *Engine) retrieve(ctx context.Context, embedding []float32, accomplished []string) ([]domain.MatchCandidate, error) {
	ctx, span := tracer.Start(ctx, "conductor.retrieve")
	defer span.End()

	candidates, err := e.retriever.Retrieve(ctx, embedding, accomplished)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	return candidates, nil
}

func (e *Engine) classify(ctx context.Context, candidates []domain.MatchCandidate, userMessage string, history []domain.Message) ClassifyOutcome {
	ctx, span := tracer.Start(ctx, "conductor.classify")
	defer span.End()

	outcome := e.classifier.Classify(ctx, candidates, userMessage, history)
	span.SetAttributes(attribute.String("outcome", outcome.Kind.String()))
	return outcome
}

// generate drains the draft stream, forwarding increments unless hold is set.
func (e *Engine) generate(ctx context.Context, instructions string, history []domain.Message, hold bool, emit func(string) error) (string, error) {
	ctx, span := tracer.Start(ctx, "conductor.generate")
	defer span.End()

	ch, err := e.generator.Generate(ctx, instructions, history)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	var draft strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			span.RecordError(chunk.Err)
			return "", fmt.Errorf("%w: %v", ErrGeneration, chunk.Err)
		}
		if chunk.Delta == "" {
			continue
		}
		draft.WriteString(chunk.Delta)
		if hold {
			continue
		}
		if err := emit(chunk.Delta); err != nil {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	span.SetAttributes(attribute.Int("draft.bytes", draft.Len()))
	return draft.String(), nil
}

func (e *Engine) rewrite(ctx context.Context, draft string, active []domain.Guideline, emit func(string) error) error {
	ctx, span := tracer.Start(ctx, "conductor.supervise.rewrite")
	defer span.End()

	outcome, err := e.supervisor.Rewrite(ctx, draft, active, emit)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("outcome", outcome.Kind.String()),
		attribute.Bool("fell_back", outcome.FellBack),
	)
	return nil
}

func (e *Engine) validate(ctx context.Context, draft string, active []domain.Guideline) []domain.ValidationResult {
	ctx, span := tracer.Start(ctx, "conductor.supervise.validate")
	defer span.End()

	outcome := e.supervisor.Validate(ctx, draft, active)
	span.SetAttributes(attribute.String("outcome", outcome.Kind.String()))
	return outcome.Results
}

func (e *Engine) publish(ctx context.Context, log *zap.Logger, evt domain.TurnCompleted) {
	if e.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := e.publisher.PublishTurnCompleted(ctx, evt); err != nil {
		log.Warn("failed to publish turn event", zap.Error(err))
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func nonNilGuidelines(g []domain.Guideline) []domain.Guideline {
	if g == nil {
		return []domain.Guideline{}
	}
	return g
}

func nonNilResults(r []domain.MatchResult) []domain.MatchResult {
	if r == nil {
		return []domain.MatchResult{}
	}
	return r
}
