package kinesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/bank-es/internal/infrastructure/store"
)

var ErrIncompleteImage = errors.New("stream image is missing required attributes")

// ConvertFromKinesisRecord decodes a DynamoDB stream record delivered through
// Kinesis Data Streams. Only INSERTs carry new events; other change types
// return nil without error.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var streamRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &streamRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}
	return ConvertFromDynamoDBStreamRecord(streamRecord)
}

// ConvertFromDynamoDBStreamRecord decodes a record read directly from DynamoDB Streams.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if events.DynamoDBOperationType(record.EventName) != events.DynamoDBOperationTypeInsert {
		return nil, nil
	}
	return eventFromImage(record.Change.NewImage)
}

// eventFromImage mirrors the item layout written by store.DynamoEventStore.
func eventFromImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("%w: image is nil", ErrIncompleteImage)
	}

	str := func(name string) string {
		if v, ok := image[name]; ok && v.DataType() == events.DataTypeString {
			return v.String()
		}
		return ""
	}

	event := &store.Event{
		ID:            str("id"),
		AggregateID:   str("aggregate_id"),
		AggregateType: str("aggregate_type"),
		EventType:     str("event_type"),
		Data:          json.RawMessage(str("data")),
	}
	if event.ID == "" || event.AggregateID == "" || event.EventType == "" {
		return nil, fmt.Errorf("%w: id=%q aggregate_id=%q event_type=%q",
			ErrIncompleteImage, event.ID, event.AggregateID, event.EventType)
	}

	v, ok := image["version"]
	if !ok || v.DataType() != events.DataTypeNumber {
		return nil, fmt.Errorf("%w: version", ErrIncompleteImage)
	}
	version, err := v.Integer()
	if err != nil {
		return nil, fmt.Errorf("failed to parse version: %w", err)
	}
	event.Version = int(version)

	if createdAt := str("created_at"); createdAt != "" {
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		event.Timestamp = t
	}

	return event, nil
}
