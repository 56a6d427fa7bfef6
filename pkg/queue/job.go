package queue

import (
	"context"
	"encoding/json"
)

// Job defines a queue job handler.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Type returns the type of message that the job handles.
	Type() string

	// Handle processes one message payload. A returned error schedules a retry.
	Handle(ctx context.Context, payload json.RawMessage) error
}
