package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/lens-sync/pkg/logger"
	"github.com/carverauto/lens-sync/pkg/models"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// EventTypeDevicesRefreshed is the CloudEvent type emitted after each full pass over the fleet.
	EventTypeDevicesRefreshed = "com.carverauto.lens.devices.refreshed"

	eventSource = "lens-sync/poller"
)

// Publisher is the subset of jetstream.JetStream used to emit events.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// EventPublisher publishes CloudEvents to NATS JetStream. It implements
// poller.CycleObserver.
type EventPublisher struct {
	js      Publisher
	subject string
	logger  logger.Logger
	now     func() time.Time
}

// NewEventPublisher creates a new EventPublisher for the given subject.
func NewEventPublisher(js Publisher, subject string, log logger.Logger) *EventPublisher {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &EventPublisher{
		js:      js,
		subject: subject,
		logger:  log,
		now:     time.Now,
	}
}

// PublishDevicesRefreshed publishes a devices.refreshed event carrying the cycle report.
func (p *EventPublisher) PublishDevicesRefreshed(ctx context.Context, report models.CycleReport) error {
	now := p.now().UTC()

	event := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            EventTypeDevicesRefreshed,
		DataContentType: "application/json",
		Subject:         p.subject,
		Time:            &now,
		Data:            report,
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal devices refreshed event: %w", err)
	}

	ack, err := p.js.Publish(ctx, p.subject, eventBytes)
	if err != nil {
		return fmt.Errorf("failed to publish devices refreshed event: %w", err)
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Str("subject", p.subject).
		Uint64("seq", ack.Sequence).
		Msg("Published devices refreshed event")

	return nil
}

// CycleCompleted publishes the report. Failures are logged and never reach the poller.
func (p *EventPublisher) CycleCompleted(ctx context.Context, report models.CycleReport) {
	if err := p.PublishDevicesRefreshed(ctx, report); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to publish cycle event")
	}
}

// Connect dials NATS, makes sure streamName captures subject and returns a
// publisher bound to it. The caller owns the returned connection.
func Connect(ctx context.Context, natsURL, streamName, subject string, log logger.Logger, extraOpts ...nats.Option) (*EventPublisher, *nats.Conn, error) {
	if log == nil {
		log = logger.NewTestLogger()
	}

	opts := []nats.Option{
		nats.Name("lens-sync"),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, streamName, subject, log); err != nil {
		nc.Close()
		return nil, nil, err
	}

	log.Info().Str("url", nc.ConnectedUrl()).Str("stream", streamName).Msg("Connected to NATS")

	return NewEventPublisher(js, subject, log), nc, nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, streamName, subject string, log logger.Logger) error {
	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		if !isStreamMissingErr(err) {
			return fmt.Errorf("failed to get stream %s: %w", streamName, err)
		}

		if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     streamName,
			Subjects: []string{subject},
		}); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}

		log.Info().Str("stream", streamName).Msg("Created NATS JetStream stream")

		return nil
	}

	cfg := stream.CachedInfo().Config
	subjects := ensureSubjectList(append([]string(nil), cfg.Subjects...), subject)

	if len(subjects) == len(cfg.Subjects) {
		return nil
	}

	cfg.Subjects = subjects

	if _, err := js.UpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to add subject %s to stream %s: %w", subject, streamName, err)
	}

	return nil
}

func ensureSubjectList(subjects []string, subject string) []string {
	for _, s := range subjects {
		if matchesSubject(s, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject reports whether subject falls under the NATS pattern.
func matchesSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, tok := range pt {
		if tok == ">" {
			return len(st) > i
		}

		if i >= len(st) {
			return false
		}

		if tok != "*" && tok != st[i] {
			return false
		}
	}

	return len(pt) == len(st)
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}
