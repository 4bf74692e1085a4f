package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	pkgkafka "github.com/utafrali/listing-search/pkg/kafka"
)

// Listing lifecycle topics consumed by the indexer.
var (
	TopicListingCreated     = pkgkafka.Topic("listing", "created")
	TopicListingUpdated     = pkgkafka.Topic("listing", "updated")
	TopicListingPublished   = pkgkafka.Topic("listing", "published")
	TopicListingUnpublished = pkgkafka.Topic("listing", "unpublished")
	TopicListingDeleted     = pkgkafka.Topic("listing", "deleted")
)

// Topics lists every topic the consumer subscribes to.
func Topics() []string {
	return []string{
		TopicListingCreated,
		TopicListingUpdated,
		TopicListingPublished,
		TopicListingUnpublished,
		TopicListingDeleted,
	}
}

// ErrInvalidEvent is returned for events that do not carry a usable listing id.
var ErrInvalidEvent = errors.New("invalid listing event")

// ListingEventData is the payload shared by all listing lifecycle events.
type ListingEventData struct {
	ID string `json:"id"`
}

// ListingIndexer is the part of the indexer driven by events.
type ListingIndexer interface {
	IndexOne(ctx context.Context, id string) error
	RemoveOne(ctx context.Context, id string) error
}

// Consumer applies listing lifecycle events to the search index.
type Consumer struct {
	indexer ListingIndexer
	logger  *slog.Logger
}

// NewConsumer creates a listing event consumer.
func NewConsumer(indexer ListingIndexer, logger *slog.Logger) *Consumer {
	return &Consumer{
		indexer: indexer,
		logger:  logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicListingCreated, TopicListingUpdated, TopicListingPublished:
		id, err := listingID(event)
		if err != nil {
			return err
		}
		if err := c.indexer.IndexOne(ctx, id); err != nil {
			return fmt.Errorf("index listing %s from %s: %w", id, event.EventType, err)
		}
		c.logger.InfoContext(ctx, "indexed listing from event",
			slog.String("listing_id", id),
			slog.String("event_type", event.EventType),
		)
		return nil
	case TopicListingUnpublished, TopicListingDeleted:
		id, err := listingID(event)
		if err != nil {
			return err
		}
		if err := c.indexer.RemoveOne(ctx, id); err != nil {
			return fmt.Errorf("remove listing %s from %s: %w", id, event.EventType, err)
		}
		c.logger.InfoContext(ctx, "removed listing from event",
			slog.String("listing_id", id),
			slog.String("event_type", event.EventType),
		)
		return nil
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// listingID reads the id from the payload, falling back to the aggregate id.
func listingID(event *pkgkafka.Event) (string, error) {
	var data ListingEventData
	if len(event.Data) > 0 {
		if err := event.UnmarshalData(&data); err != nil {
			return "", fmt.Errorf("%w: unmarshal %s data: %w", ErrInvalidEvent, event.EventType, err)
		}
	}
	id := data.ID
	if id == "" {
		id = event.AggregateID
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: listing id %q", ErrInvalidEvent, id)
	}
	return id, nil
}
