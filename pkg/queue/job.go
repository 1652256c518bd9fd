package queue

import "context"

// Job handles one message type.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type the job consumes.
	Type() string

	// Handle processes a payload. A returned error schedules a retry until
	// the retry limit is reached.
	Handle(ctx context.Context, payload interface{}) error
}
