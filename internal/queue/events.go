package queue

import (
	"context"
	"time"
)

// Domain event names. The cache invalidation rule table and the metrics
// collector key off these, so they are part of the package contract.
const (
	EventEntryAdded    = "queue.entry_added"
	EventCalled        = "queue.called"
	EventServed        = "queue.served"
	EventCancelled     = "queue.cancelled"
	EventNoShow        = "queue.no_show"
	EventQRValidated   = "queue.qr_validated"
	EventStatusChanged = "queue.status_changed"
)

// Event is one coordinator mutation, carrying the affected entry snapshot and,
// when the mutation touched the aggregate, the refreshed status.
type Event struct {
	Name         string
	Entry        *QueueEntry
	Status       *QueueStatus
	TimerStarted bool
	OccurredAt   time.Time
}

// Notifier receives coordinator events. Implementations drive push
// notifications, UI refresh, cache invalidation, and metrics; they must not
// block for long, and their errors are logged rather than propagated.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event Event) {
	f(ctx, event)
}

// FanoutNotifier delivers each event to every registered notifier in order.
type FanoutNotifier struct {
	notifiers []Notifier
}

// NewFanoutNotifier combines notifiers; nil entries are skipped.
func NewFanoutNotifier(notifiers ...Notifier) *FanoutNotifier {
	fanout := &FanoutNotifier{}
	for _, notifier := range notifiers {
		if notifier != nil {
			fanout.notifiers = append(fanout.notifiers, notifier)
		}
	}
	return fanout
}

// Notify implements Notifier.
func (f *FanoutNotifier) Notify(ctx context.Context, event Event) {
	for _, notifier := range f.notifiers {
		notifier.Notify(ctx, event)
	}
}

// eventForStatus maps a committed transition to its event name.
func eventForStatus(status Status) string {
	switch status {
	case StatusCalled:
		return EventCalled
	case StatusServed:
		return EventServed
	case StatusCancelled:
		return EventCancelled
	case StatusNoShow:
		return EventNoShow
	default:
		return EventStatusChanged
	}
}
