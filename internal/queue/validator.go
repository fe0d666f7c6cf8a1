package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// QRPayloadType is the payload type a queue-entry QR must assert.
const QRPayloadType = "queue-entry"

// ServiceTimerStarter starts the external work timer once a customer's code
// has been validated. It returns an opaque timer handle.
type ServiceTimerStarter interface {
	Start(ctx context.Context, workOrderID, technicianID string) (string, error)
}

// QRPayload is the decoded content of a scanned queue-entry QR.
type QRPayload struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// QRValidation is the outcome of a successful scan.
type QRValidation struct {
	Entry        QueueEntry
	TimerStarted bool
	TimerHandle  string
}

// Validator checks a scanned code or QR against the live entry and drives the
// called → in_service transition. Every rejection is a typed error the caller
// can render; the validator never panics on malformed input.
type Validator struct {
	coordinator *Coordinator
	timers      ServiceTimerStarter
	now         func() time.Time
	logger      *slog.Logger
}

// NewValidator wires dependencies for QR validation. A nil timer starter
// skips the timer side effect and reports TimerStarted=false.
func NewValidator(coordinator *Coordinator, timers ServiceTimerStarter, now func() time.Time, logger *slog.Logger) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{
		coordinator: coordinator,
		timers:      timers,
		now:         now,
		logger:      logger,
	}
}

// ValidateQR runs the full validation flow for a scanned payload: parse,
// type check, entry lookup, state and expiry checks, timer start, and the
// transition to in_service. The timer side effect happens before the
// transition; if it fails the entry stays called so a retry scan can succeed.
// Scanning an already-in_service entry's stale QR reports InvalidState and
// never starts a second timer.
func (v *Validator) ValidateQR(ctx context.Context, payload []byte) (QRValidation, error) {
	if v == nil || v.coordinator == nil {
		return QRValidation{}, fmt.Errorf("Validator is not configured")
	}
	logger := serviceLogger(ctx, v.logger, "validator", "validate_qr")

	var decoded QRPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return QRValidation{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(decoded.ID) == "" {
		return QRValidation{}, ErrInvalidPayload
	}
	if decoded.Type != QRPayloadType {
		return QRValidation{}, ErrWrongQRType
	}

	entry, err := v.coordinator.GetEntry(ctx, decoded.ID)
	if err != nil {
		return QRValidation{}, err
	}

	if err := v.CanValidate(entry); err != nil {
		return QRValidation{}, err
	}

	timerStarted := false
	timerHandle := ""
	if v.timers != nil {
		timerHandle, err = v.timers.Start(ctx, entry.WorkOrderID, entry.AssignedTo)
		if err != nil {
			logger.WarnContext(ctx, "timer start failed, entry left called", "entry_id", entry.ID, "error", err)
			return QRValidation{}, fmt.Errorf("%w: %v", ErrTimerStartFailed, err)
		}
		timerStarted = true
	}

	updated, err := v.coordinator.UpdateStatus(ctx, UpdateStatusParams{
		EntryID:   entry.ID,
		NewStatus: StatusInService,
	})
	if err != nil {
		return QRValidation{}, err
	}

	logger.InfoContext(ctx, "qr validated", "entry_id", updated.ID, "timer_started", timerStarted)
	v.coordinator.emitEntryEvent(ctx, EventQRValidated, updated, timerStarted)
	return QRValidation{Entry: updated, TimerStarted: timerStarted, TimerHandle: timerHandle}, nil
}

// CanValidate is the read-only pre-flight for a scan attempt: it checks the
// state and expiry preconditions without side effects. A nil return means a
// scan would proceed.
func (v *Validator) CanValidate(entry QueueEntry) error {
	if entry.Status != StatusCalled {
		return &InvalidStateError{Actual: entry.Status}
	}
	if entry.CodeExpired(v.now()) {
		return ErrCodeExpired
	}
	return nil
}
