package outbox

import "time"

// Outbox row persisted alongside the settlement record.
// The worker relay reads pending rows and publishes them to the event bus.
type Message struct {
	ID          string
	EventType   string
	Payload     []byte
	Status      string // pending, published
	CreatedAt   time.Time
	PublishedAt *time.Time
}

const (
	StatusPending   = "pending"
	StatusPublished = "published"
)
