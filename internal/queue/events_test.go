package queue

import (
	"context"
	"testing"
)

func TestFanoutNotifier_SkipsNilAndPreservesOrder(t *testing.T) {
	t.Parallel()

	var order []string
	first := NotifierFunc(func(context.Context, Event) { order = append(order, "first") })
	second := NotifierFunc(func(context.Context, Event) { order = append(order, "second") })

	fanout := NewFanoutNotifier(first, nil, second)
	fanout.Notify(context.Background(), Event{Name: EventEntryAdded})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected ordered delivery to both notifiers, got %v", order)
	}
}

func TestEventForStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status Status
		want   string
	}{
		{status: StatusCalled, want: EventCalled},
		{status: StatusServed, want: EventServed},
		{status: StatusCancelled, want: EventCancelled},
		{status: StatusNoShow, want: EventNoShow},
		{status: StatusInService, want: EventStatusChanged},
		{status: StatusWaiting, want: EventStatusChanged},
	}

	for _, tc := range cases {
		if got := eventForStatus(tc.status); got != tc.want {
			t.Errorf("eventForStatus(%s) = %s, want %s", tc.status, got, tc.want)
		}
	}
}
