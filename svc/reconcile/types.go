package reconcile

import (
	"context"
	"time"
)

// EventRecord is one row of the write-once webhook event log. ID is the
// dedup key; ProcessedAt is set exactly once, on successful application.
type EventRecord struct {
	ID          string
	EventType   string
	RawPayload  []byte
	ProcessedAt *time.Time
	// ClaimedAt marks the event as held by an in-flight delivery; stale
	// claims are treated as abandoned.
	ClaimedAt *time.Time
	// Error holds the most recent processing failure for operator follow-up;
	// cleared implicitly by a later successful processing.
	Error      *string
	ReceivedAt time.Time
}

// Storage is the write-once event log.
type Storage interface {
	// LogEvent stores the event if its id is new and returns the stored row.
	// When the id was seen before, the existing row is returned unchanged;
	// the raw payload is never overwritten.
	LogEvent(ctx context.Context, rec EventRecord) (EventRecord, error)

	// ClaimEvent marks the event as held by this delivery. It reports false
	// when the event is already processed or another delivery's claim is
	// younger than ttl; a stale claim is taken over.
	ClaimEvent(ctx context.Context, id string, at time.Time, ttl time.Duration) (bool, error)

	// ReleaseEvent clears the claim after a failed application so a
	// redelivery can retry without waiting out the claim ttl.
	ReleaseEvent(ctx context.Context, id string) error

	// MarkProcessed sets processed_at if it is still unset and clears the
	// claim. Reports whether this call won the commit; false means a
	// concurrent delivery already applied the event.
	MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error)

	// RecordError stores the processing failure, leaving processed_at unset
	// so a redelivery can retry the event.
	RecordError(ctx context.Context, id, message string) error

	// Event returns the logged event by id, or ErrEventNotFound.
	Event(ctx context.Context, id string) (EventRecord, error)
}
