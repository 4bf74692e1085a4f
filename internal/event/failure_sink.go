package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/listing-search/internal/engine"
	pkgkafka "github.com/utafrali/listing-search/pkg/kafka"
	"github.com/utafrali/listing-search/pkg/logger"
)

// EventIndexFailed is the type of events published for rejected documents.
const EventIndexFailed = "search.index_failed"

// TopicIndexFailures receives one message per document the index rejected.
var TopicIndexFailures = pkgkafka.DLQTopic("search.index")

// Publisher sends an event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// IndexFailureData is the payload of an index failure event.
type IndexFailureData struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// FailureSink publishes rejected documents to the dead-letter topic.
type FailureSink struct {
	publisher Publisher
	source    string
	logger    *slog.Logger
}

// NewFailureSink creates a sink publishing through publisher.
func NewFailureSink(publisher Publisher, source string, logger *slog.Logger) *FailureSink {
	return &FailureSink{
		publisher: publisher,
		source:    source,
		logger:    logger,
	}
}

// IndexFailed publishes every failure, returning the joined publish errors.
func (s *FailureSink) IndexFailed(ctx context.Context, failures []engine.BulkFailure) error {
	var errs []error
	for _, f := range failures {
		evt, err := pkgkafka.NewEvent(EventIndexFailed, f.ID, "listing", s.source, IndexFailureData{
			ID:     f.ID,
			Reason: f.Reason,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("build failure event for %s: %w", f.ID, err))
			continue
		}
		evt.WithCorrelationID(logger.CorrelationIDFromContext(ctx))
		if err := s.publisher.Publish(ctx, TopicIndexFailures, evt); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.WarnContext(ctx, "index failure forwarded to dead-letter topic",
			slog.String("listing_id", f.ID),
			slog.String("reason", f.Reason),
		)
	}
	return errors.Join(errs...)
}
