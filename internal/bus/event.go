package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Namespaces, for use as Subscribe prefixes.
const (
	NamespaceSync         = "sync."
	NamespaceConnectivity = "connectivity."
	NamespaceQueue        = "queue."
)

// Event kinds.
const (
	SyncCompleted       = "sync.completed"
	NoteSynced          = "sync.note_synced"
	PhotoSynced         = "sync.photo_synced"
	CheckSynced         = "sync.check_synced"
	QuoteSynced         = "sync.quote_synced"
	ConnectivityChanged = "connectivity.changed"
	QueueEnqueued       = "queue.enqueued"
)
