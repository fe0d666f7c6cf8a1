package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/workshop-queue/internal/persistence"
)

// Poller synthesizes domain events by periodically diffing the active entry
// set against its previous snapshot. It is the poll-based alternative to the
// coordinator's push-based emission, for deployments where subscribers cannot
// be wired into the write path.
type Poller struct {
	store    persistence.QueueRepository
	notifier Notifier
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	known map[string]Status
}

// NewPoller wires a diff-based event source. A non-positive interval falls
// back to 5 seconds.
func NewPoller(store persistence.QueueRepository, notifier Notifier, interval time.Duration, now func() time.Time, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Poller{
		store:    store,
		notifier: notifier,
		interval: interval,
		now:      now,
		logger:   defaultLogger(logger),
	}
}

// Run polls until the context is cancelled. The first poll seeds the snapshot
// without emitting, so a restart does not replay the whole queue as new.
func (p *Poller) Run(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("Poller is nil")
	}

	if err := p.Poll(ctx); err != nil {
		p.logger.WarnContext(ctx, "initial poll failed", "error", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				p.logger.WarnContext(ctx, "poll failed", "error", err)
			}
		}
	}
}

// Poll performs one diff pass: new ids emit entry_added, status changes emit
// their transition event, and disappeared ids emit status_changed (the poller
// cannot know which terminal state they reached). Exposed so tests can drive
// passes synchronously.
func (p *Poller) Poll(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("Poller is nil")
	}

	records, err := p.store.QueryActive(ctx)
	if err != nil {
		return fmt.Errorf("poll active entries: %w", err)
	}

	seeding := p.known == nil
	current := make(map[string]Status, len(records))

	for _, record := range records {
		entry := entryFromRecord(record)
		current[entry.ID] = entry.Status
		if seeding {
			continue
		}

		previous, existed := p.known[entry.ID]
		switch {
		case !existed:
			p.notify(ctx, Event{Name: EventEntryAdded, Entry: &entry, OccurredAt: p.now()})
		case previous != entry.Status:
			p.notify(ctx, Event{Name: eventForStatus(entry.Status), Entry: &entry, OccurredAt: p.now()})
		}
	}

	if !seeding {
		departed := 0
		for id := range p.known {
			if _, still := current[id]; !still {
				departed++
			}
		}
		if departed > 0 {
			p.notify(ctx, Event{Name: EventStatusChanged, OccurredAt: p.now()})
		}
	}

	p.known = current
	return nil
}

func (p *Poller) notify(ctx context.Context, event Event) {
	if p.notifier != nil {
		p.notifier.Notify(ctx, event)
	}
}
