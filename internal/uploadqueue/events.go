package uploadqueue

import (
	"fmt"

	"github.com/dharsanguruparan/snapdrop/internal/model"
)

// EventKind identifies what changed in the queue.
type EventKind string

const (
	EventJobAdded      EventKind = "job_added"
	EventJobRemoved    EventKind = "job_removed"
	EventJobUpdated    EventKind = "job_updated"
	EventStats         EventKind = "stats"
	EventSummary       EventKind = "summary"
	EventInputDisabled EventKind = "input_disabled"
	EventInputEnabled  EventKind = "input_enabled"
	EventQueueReset    EventKind = "queue_reset"
	EventNavigate      EventKind = "navigate"
)

// Event is a pure data notification about queue state. Presentation layers
// subscribe and render; the controller never renders anything itself.
type Event struct {
	Kind    EventKind
	Job     model.UploadJob
	Stats   model.QueueStats
	Summary model.Summary
	// Identifier is set on EventNavigate.
	Identifier string
}

// Listener receives queue events. Calls happen outside the controller lock,
// in the order the changes were made.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) HandleEvent(e Event) { f(e) }

// StatsLine formats the aggregate progress line.
func StatsLine(s model.QueueStats) string {
	return fmt.Sprintf("%d/%d files uploaded (%d failed)", s.Completed, s.Total, s.Failed)
}
