package bus

import "time"

// Event kinds published by the store and its supervisors.
const (
	ContactChanged = "contact.changed"
	GroupChanged   = "group.changed"
	MessageChanged = "message.changed"
	MessageNew     = "message.new"
	TypingStarted  = "typing.started"
	TypingStopped  = "typing.stopped"

	LifecycleChanged = "store.lifecycle_changed"
	QueueSwept       = "store.queue_swept"

	// IngestBatch carries a batch to be imported; ImportCompleted reports it.
	IngestBatch     = "ingest.batch"
	ImportCompleted = "import.completed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
