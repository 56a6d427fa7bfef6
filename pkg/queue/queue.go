package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher is the producing side of a queue.
type Publisher interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers    int           // number of workers
	RetryLimit int           // retries before a message goes to the dead letter list
	RetryDelay time.Duration // time delay between retries
	PopTimeout time.Duration // how long a worker blocks on BRPOP
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage wraps payload in an envelope. Byte slices and raw JSON are
// stored as-is; anything else is marshalled.
func NewMessage(msgType string, payload interface{}) (Message, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = json.RawMessage(p)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return Message{}, fmt.Errorf("marshal payload: %w", err)
		}
		raw = b
	}
	if !json.Valid(raw) {
		return Message{}, fmt.Errorf("payload for %s is not valid json", msgType)
	}

	now := time.Now().UTC()
	return Message{
		ID:        fmt.Sprintf("%d", now.UnixNano()),
		Type:      msgType,
		Payload:   raw,
		Timestamp: now,
	}, nil
}
