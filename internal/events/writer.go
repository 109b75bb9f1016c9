// Package events maintains the bounded event log carried inside job records.
package events

import (
	"time"

	"inkline/internal/domain"
)

// MaxEvents caps a job's event log; older entries are dropped first.
const MaxEvents = 200

type Writer struct {
	Now func() time.Time
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Append adds one event and enforces the cap. It returns the new slice, so
// callers assign the result back to the record.
func (w Writer) Append(events []domain.JobEvent, kind, message string, extra map[string]any) []domain.JobEvent {
	events = append(events, domain.JobEvent{
		TS:      w.now().UTC().Format(time.RFC3339),
		Kind:    kind,
		Message: message,
		Extra:   extra,
	})
	if len(events) > MaxEvents {
		events = events[len(events)-MaxEvents:]
	}
	return events
}
