package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/workshop-queue/internal/queue"
)

func scrape(t *testing.T, collector *Collector) string {
	t.Helper()
	recorder := httptest.NewRecorder()
	collector.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	return recorder.Body.String()
}

func TestCollector_CountsQueueEvents(t *testing.T) {
	t.Parallel()

	collector := NewCollector()
	ctx := context.Background()

	collector.Notify(ctx, queue.Event{Name: queue.EventEntryAdded, Status: &queue.QueueStatus{CurrentCount: 1}})
	collector.Notify(ctx, queue.Event{Name: queue.EventEntryAdded, Status: &queue.QueueStatus{CurrentCount: 2}})
	collector.Notify(ctx, queue.Event{Name: queue.EventCalled, Status: &queue.QueueStatus{CurrentCount: 2}})
	collector.Notify(ctx, queue.Event{Name: queue.EventQRValidated, TimerStarted: true, Status: &queue.QueueStatus{CurrentCount: 1}})
	collector.Notify(ctx, queue.Event{Name: queue.EventServed, Status: &queue.QueueStatus{CurrentCount: 1}})
	collector.Notify(ctx, queue.Event{Name: queue.EventCancelled, Status: &queue.QueueStatus{CurrentCount: 0}})
	collector.Notify(ctx, queue.Event{Name: queue.EventNoShow, Status: &queue.QueueStatus{CurrentCount: 0}})

	body := scrape(t, collector)
	assert.Contains(t, body, "queue_entries_added_total 2")
	assert.Contains(t, body, "queue_entries_called_total 1")
	assert.Contains(t, body, `queue_transitions_total{status="waiting"} 2`)
	assert.Contains(t, body, `queue_transitions_total{status="called"} 1`)
	assert.Contains(t, body, `queue_transitions_total{status="in_service"} 1`)
	assert.Contains(t, body, `queue_transitions_total{status="served"} 1`)
	assert.Contains(t, body, `queue_transitions_total{status="cancelled"} 1`)
	assert.Contains(t, body, `queue_transitions_total{status="no_show"} 1`)
	assert.Contains(t, body, `queue_qr_validations_total{result="validated"} 1`)
	assert.Contains(t, body, "queue_active_entries 0")
}

func TestCollector_GaugeTracksLatestStatus(t *testing.T) {
	t.Parallel()

	collector := NewCollector()
	ctx := context.Background()

	collector.Notify(ctx, queue.Event{Name: queue.EventEntryAdded, Status: &queue.QueueStatus{CurrentCount: 3}})
	assert.Contains(t, scrape(t, collector), "queue_active_entries 3")

	collector.Notify(ctx, queue.Event{Name: queue.EventCancelled, Status: &queue.QueueStatus{CurrentCount: 2}})
	assert.Contains(t, scrape(t, collector), "queue_active_entries 2")

	// Events carrying no status snapshot leave the gauge untouched.
	collector.Notify(ctx, queue.Event{Name: queue.EventEntryAdded})
	assert.Contains(t, scrape(t, collector), "queue_active_entries 2")
}

func TestCollector_ValidationFailures(t *testing.T) {
	t.Parallel()

	collector := NewCollector()
	collector.RecordValidationFailure("code_expired")
	collector.RecordValidationFailure("code_expired")
	collector.RecordValidationFailure("invalid_state")

	body := scrape(t, collector)
	assert.Contains(t, body, `queue_qr_validations_total{result="code_expired"} 2`)
	assert.Contains(t, body, `queue_qr_validations_total{result="invalid_state"} 1`)
}

func TestCollector_CacheAndRetryObservers(t *testing.T) {
	t.Parallel()

	collector := NewCollector()
	collector.CacheHit("memory")
	collector.CacheHit("memory")
	collector.CacheHit("durable")
	collector.CacheMiss()
	collector.CacheEviction()
	collector.RetryAttempt(1)
	collector.RetryAttempt(2)
	collector.CallNextClaimAttempts(1)
	collector.CallNextClaimAttempts(2)

	body := scrape(t, collector)
	assert.Contains(t, body, `queue_cache_hits_total{tier="memory"} 2`)
	assert.Contains(t, body, `queue_cache_hits_total{tier="durable"} 1`)
	assert.Contains(t, body, "queue_cache_misses_total 1")
	assert.Contains(t, body, "queue_cache_evictions_total 1")
	assert.Contains(t, body, "queue_store_retry_attempts_total 2")
	assert.Contains(t, body, "queue_call_next_claim_attempts_count 2")
	assert.Contains(t, body, "queue_call_next_claim_attempts_sum 3")
}
