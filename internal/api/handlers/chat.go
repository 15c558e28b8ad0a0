package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/conductor/internal/api/middleware"
	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/Harshitk-cp/conductor/internal/service"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// streamDone terminates every event stream.
const streamDone = "[DONE]"

type ChatHandler struct {
	engine   *service.Engine
	validate *validator.Validate
	logger   *zap.Logger
}

func NewChatHandler(engine *service.Engine, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		engine:   engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type chatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required"`
}

type chatRequest struct {
	Messages        []chatMessage `json:"messages" validate:"required,min=1,dive"`
	SessionID       string        `json:"sessionId" validate:"omitempty,max=64"`
	SupervisionMode string        `json:"supervisionMode" validate:"omitempty,oneof=rewrite validate"`
}

// Chat runs one turn and streams it as server-sent events:
// a session frame, content frames, a metadata frame, then [DONE].
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	messages := make([]domain.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = domain.Message{Role: m.Role, Content: m.Content}
	}
	if _, ok := domain.LastUserMessage(messages); !ok {
		writeError(w, http.StatusBadRequest, "messages must include a user message")
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sse := &sseWriter{w: w, rc: rc}
	ctx := r.Context()
	log := h.logger.With(
		zap.String("request_id", middleware.RequestIDFromContext(ctx)),
		zap.String("client", middleware.ClientFromContext(ctx)),
	)

	err := h.engine.RunTurn(ctx, service.TurnRequest{
		Messages:  messages,
		SessionID: req.SessionID,
		Mode:      domain.SupervisionMode(req.SupervisionMode),
	}, sse.emit)

	if err != nil {
		if ctx.Err() != nil {
			log.Info("client disconnected, turn abandoned")
			return
		}
		log.Warn("turn failed", zap.Error(err))
		if werr := sse.frame(map[string]string{"error": publicError(err)}); werr != nil {
			return
		}
	}
	_ = sse.data(streamDone)
}

type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (s *sseWriter) emit(e domain.TurnEvent) error {
	switch e.Type {
	case domain.EventSession:
		return s.frame(map[string]string{"sessionId": e.SessionID})
	case domain.EventContent:
		return s.frame(map[string]string{"content": e.Content})
	case domain.EventMetadata:
		return s.frame(e.Metadata)
	case domain.EventError:
		return s.frame(map[string]string{"error": publicError(e.Err)})
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
}

func (s *sseWriter) frame(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.data(string(payload))
}

func (s *sseWriter) data(payload string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// publicError maps pipeline errors to client-facing messages.
func publicError(err error) string {
	switch {
	case errors.Is(err, service.ErrEmbedding):
		return "failed to embed message"
	case errors.Is(err, service.ErrRetrieval):
		return "failed to retrieve guidelines"
	case errors.Is(err, service.ErrGeneration):
		return "failed to generate response"
	case errors.Is(err, service.ErrNoUserMessage):
		return "messages must include a user message"
	case errors.Is(err, service.ErrInvalidMode):
		return "invalid supervision mode"
	default:
		return "internal error"
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
