package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
)

// RefreshHandlers apply refresh events.  A nil handler ignores that type.
type RefreshHandlers struct {
	OnRules      func(ctx context.Context, evt *RefreshEvent) error
	OnSnapshot   func(ctx context.Context, evt *RefreshEvent) error
	OnEmbeddings func(ctx context.Context, evt *RefreshEvent) error
}

// RefreshHandler turns RefreshHandlers into a consumer Handler.  Malformed
// events are permanent failures; unknown types are logged and skipped.
func RefreshHandler(h RefreshHandlers, log logging.Logger) Handler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	log = log.Named("refresh")
	return func(ctx context.Context, msg kafka.Message) error {
		evt, err := DecodeRefreshEvent(msg.Value)
		if err != nil {
			return Permanent(err)
		}

		var fn func(context.Context, *RefreshEvent) error
		switch evt.EventType {
		case EventRulesPublished:
			fn = h.OnRules
		case EventSnapshotPublished:
			fn = h.OnSnapshot
		case EventEmbeddingsRotated:
			fn = h.OnEmbeddings
		default:
			log.Warn("Skipping unknown refresh event", logging.String("event_type", evt.EventType), logging.String("event_id", evt.EventID))
			return nil
		}
		if fn == nil {
			log.Debug("No handler for refresh event", logging.String("event_type", evt.EventType))
			return nil
		}

		log.Info("Applying refresh event",
			logging.String("event_type", evt.EventType),
			logging.String("event_id", evt.EventID),
			logging.String("version", evt.Version),
			logging.String("object_key", evt.ObjectKey))
		return fn(ctx, evt)
	}
}
