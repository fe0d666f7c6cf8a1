package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/workshop-queue/internal/persistence"
)

var entryCounter uint64

var referenceTime = time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// It falls on a Monday morning, inside the default operating hours.
func ReferenceTime() time.Time {
	return referenceTime
}

// EntryFixture represents a deterministic queue entry record for persistence
// and coordinator tests.
type EntryFixture struct {
	ID                   string
	CustomerID           string
	ServiceType          string
	Status               string
	Position             int
	JoinedAt             time.Time
	EstimatedWaitMinutes int
	VerificationCode     string
	ExpiresAt            time.Time
	AssignedTo           *string
	WorkOrderID          *string
	Notes                *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// EntryOption configures the generated entry fixture.
type EntryOption func(*EntryFixture)

// NewEntryFixture returns a deterministic waiting entry with optional
// overrides. Positions and codes follow the fixture counter so successive
// fixtures never collide.
func NewEntryFixture(opts ...EntryOption) EntryFixture {
	idx := atomic.AddUint64(&entryCounter, 1)
	joined := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := EntryFixture{
		ID:                   fmt.Sprintf("entry-%03d", idx),
		CustomerID:           fmt.Sprintf("customer-%03d", idx),
		ServiceType:          "appointment",
		Status:               "waiting",
		Position:             int(idx),
		JoinedAt:             joined,
		EstimatedWaitMinutes: int(idx) * 15,
		VerificationCode:     fmt.Sprintf("%04d", idx%10000),
		ExpiresAt:            joined.Add(15 * time.Minute),
		CreatedAt:            joined,
		UpdatedAt:            joined,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEntryID overrides the generated entry ID.
func WithEntryID(id string) EntryOption {
	return func(f *EntryFixture) { f.ID = id }
}

// WithEntryStatus overrides the entry status.
func WithEntryStatus(status string) EntryOption {
	return func(f *EntryFixture) { f.Status = status }
}

// WithEntryPosition overrides the assigned position.
func WithEntryPosition(position int) EntryOption {
	return func(f *EntryFixture) { f.Position = position }
}

// WithEntryCode overrides the verification code.
func WithEntryCode(code string) EntryOption {
	return func(f *EntryFixture) { f.VerificationCode = code }
}

// WithEntryExpiry overrides the code validity deadline.
func WithEntryExpiry(expiresAt time.Time) EntryOption {
	return func(f *EntryFixture) { f.ExpiresAt = expiresAt }
}

// WithEntryAssignee sets the technician and, implicitly, fits a called entry.
func WithEntryAssignee(technicianID string) EntryOption {
	return func(f *EntryFixture) { f.AssignedTo = &technicianID }
}

// WithEntryWorkOrder links a work order id.
func WithEntryWorkOrder(workOrderID string) EntryOption {
	return func(f *EntryFixture) { f.WorkOrderID = &workOrderID }
}

// Record materialises the fixture as a persistence model.
func (f EntryFixture) Record() persistence.QueueEntry {
	return persistence.QueueEntry{
		ID:                   f.ID,
		CustomerID:           f.CustomerID,
		ServiceType:          f.ServiceType,
		Status:               f.Status,
		Position:             f.Position,
		JoinedAt:             f.JoinedAt,
		EstimatedWaitMinutes: f.EstimatedWaitMinutes,
		VerificationCode:     f.VerificationCode,
		ExpiresAt:            f.ExpiresAt,
		AssignedTo:           f.AssignedTo,
		WorkOrderID:          f.WorkOrderID,
		Notes:                f.Notes,
		CreatedAt:            f.CreatedAt,
		UpdatedAt:            f.UpdatedAt,
	}
}
