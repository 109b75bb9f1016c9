package events

import (
	"fmt"
	"testing"
	"time"

	"inkline/internal/domain"
)

func TestAppendStampsAndCaps(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w := Writer{Now: func() time.Time { return fixed }}

	var events []domain.JobEvent
	for i := 0; i < MaxEvents+25; i++ {
		events = w.Append(events, "progress", fmt.Sprintf("step %d", i), nil)
	}
	if len(events) != MaxEvents {
		t.Fatalf("log has %d events, want cap %d", len(events), MaxEvents)
	}
	if events[0].Message != "step 25" {
		t.Fatalf("oldest surviving event = %q, want step 25", events[0].Message)
	}
	if events[0].TS != "2026-03-01T10:00:00Z" {
		t.Fatalf("timestamp = %q", events[0].TS)
	}
}
