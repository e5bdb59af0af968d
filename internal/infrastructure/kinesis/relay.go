package kinesis

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/bank-es/internal/infrastructure/store"
)

// Publisher receives events decoded from the stream.
type Publisher interface {
	Publish(ctx context.Context, event store.Event) error
}

// Relay forwards event-log inserts from the DynamoDB stream to a publisher.
// Failed records are reported individually so Lambda retries only those.
type Relay struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewRelay(publisher Publisher, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{publisher: publisher, logger: logger.With("component", "relay")}
}

func (r *Relay) Handle(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	var failures []events.KinesisBatchItemFailure
	fail := func(record events.KinesisEventRecord) {
		failures = append(failures, events.KinesisBatchItemFailure{
			ItemIdentifier: record.Kinesis.SequenceNumber,
		})
	}

	for _, record := range batch.Records {
		event, err := ConvertFromKinesisRecord(record)
		if err != nil {
			r.logger.Error("failed to convert record", "record", record.EventID, "error", err)
			fail(record)
			continue
		}
		if event == nil {
			continue
		}

		if err := r.publisher.Publish(ctx, *event); err != nil {
			r.logger.Error("failed to publish event",
				"event_id", event.ID,
				"event_type", event.EventType,
				"aggregate_id", event.AggregateID,
				"error", err,
			)
			fail(record)
			continue
		}
	}

	r.logger.Info("batch relayed",
		"records", len(batch.Records),
		"failed", len(failures),
	)

	return events.KinesisEventResponse{BatchItemFailures: failures}, nil
}
