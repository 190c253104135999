package derivation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/previewflow/pkg/kafka"
)

// Listener consumes storage-created notifications from Kafka, drives the
// pipeline, and publishes a terminal result event per source object.
type Listener struct {
	consumer *kafka.Consumer
	producer *kafka.Producer
	pipeline *Pipeline
	logger   *zap.Logger
}

type ListenerParams struct {
	Consumer *kafka.Consumer
	Producer *kafka.Producer
	Pipeline *Pipeline
	Logger   *zap.Logger
}

func NewListener(p ListenerParams) *Listener {
	return &Listener{
		consumer: p.Consumer,
		producer: p.Producer,
		pipeline: p.Pipeline,
		logger:   p.Logger,
	}
}

// Run blocks fetching messages until the context is cancelled. Pipeline
// failures are committed regardless: retries belong to the invoking queue,
// not this core.
func (l *Listener) Run(ctx context.Context) error {
	for {
		msg, err := l.consumer.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		l.handle(ctx, msg.Value)

		if err := l.consumer.Commit(ctx, msg); err != nil {
			l.logger.Error("commit message", zap.Error(err))
		}
	}
}

func (l *Listener) handle(ctx context.Context, payload []byte) {
	events, err := ParseNotification(payload)
	if err != nil {
		l.logger.Warn("discarding malformed notification", zap.Error(err))
		return
	}

	for _, event := range events {
		result, perr := l.pipeline.Process(ctx, event)

		res := ResultEvent{
			ID:          uuid.NewString(),
			Bucket:      event.Bucket,
			SourceKey:   event.Key,
			StatusCode:  StatusCode(perr),
			CompletedAt: time.Now().UTC(),
		}
		eventType := "derivation.completed"
		if perr != nil {
			res.Error = perr.Error()
			eventType = "derivation.failed"
		} else {
			res.VideoReplaced = result.VideoReplaced
			res.VideoKey = result.VideoKey
			res.AnimatedPreviewKey = result.AnimatedPreviewKey
			res.StillPreviewKey = result.StillPreviewKey
		}

		if perr != nil && res.StatusCode >= http.StatusInternalServerError {
			l.logger.Error("derivation failed", zap.String("key", event.Key), zap.Error(perr))
		}

		body, err := json.Marshal(res)
		if err != nil {
			l.logger.Error("marshal result event", zap.Error(err))
			continue
		}

		headers := map[string]string{
			"event_type": eventType,
		}
		if err := l.producer.Publish(ctx, []byte(event.Key), body, headers); err != nil {
			l.logger.Error("publish result event", zap.String("key", event.Key), zap.Error(err))
		}
	}
}

// Close releases the consumer.
func (l *Listener) Close() error {
	return l.consumer.Close()
}
