package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Harshitk-cp/conductor/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	StreamName          = "CONDUCTOR_EVENTS"
	SubjectTurnComplete = "events.turn.completed"
)

// NATSPublisher publishes pipeline events to a JetStream stream.
type NATSPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewNATSPublisher connects to url and makes sure the events stream exists.
// A stream setup failure is logged, not returned, since the stream may
// already be managed elsewhere.
func NewNATSPublisher(url string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("conductor"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		logger.Warn("failed to ensure events stream", zap.String("stream", StreamName), zap.Error(err))
	}

	return &NATSPublisher{nc: nc, js: js}, nil
}

func (p *NATSPublisher) PublishTurnCompleted(ctx context.Context, e domain.TurnCompleted) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal turn event: %w", err)
	}

	if _, err := p.js.Publish(ctx, SubjectTurnComplete, data); err != nil {
		return fmt.Errorf("publish to %s: %w", SubjectTurnComplete, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

var _ domain.EventPublisher = (*NATSPublisher)(nil)
