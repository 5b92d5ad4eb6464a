package storage

import (
	"fmt"
	"time"

	"github.com/sundew-sh/sundew/internal/models"
)

// Bucket names.
const (
	EventsBucket       = "events"         // composite time key -> RequestEvent
	EventsByIDBucket   = "events_by_id"   // event id -> composite time key
	SessionsBucket     = "sessions"       // composite time key -> Session
	SessionsByIDBucket = "sessions_by_id" // session id -> composite time key
	MetaBucket         = "meta"
)

// Schema versioning.
const (
	CurrentSchemaVersion uint64 = 1
	SchemaVersionKey            = "schema_version"
)

// EventFilter narrows event reads. Zero values match everything.
type EventFilter struct {
	SourceIP       string
	SessionID      string
	Classification models.Classification
	TrapType       models.TrapType
	Since          time.Time
	Until          time.Time
}

// Validate checks filter fields that have closed domains.
func (f *EventFilter) Validate() error {
	if f.Classification != "" && !f.Classification.Valid() {
		return fmt.Errorf("invalid classification filter: %q", f.Classification)
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return fmt.Errorf("filter until %v precedes since %v", f.Until, f.Since)
	}
	return nil
}

// Matches reports whether an event passes the filter.
func (f *EventFilter) Matches(e *models.RequestEvent) bool {
	if f.SourceIP != "" && e.SourceIP != f.SourceIP {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Classification != "" && e.Classification != f.Classification {
		return false
	}
	if f.TrapType != "" && e.TrapType != f.TrapType {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}
