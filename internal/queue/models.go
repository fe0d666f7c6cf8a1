// Package queue implements the walk-in queue coordination engine: position
// assignment, the entry state machine, verification-code lifecycle, and the
// QR validation flow. All writes go through the backing repository inside
// transactions; the cache layer holds read-through projections only.
package queue

import (
	"time"

	"github.com/example/workshop-queue/internal/persistence"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCalled    Status = "called"
	StatusInService Status = "in_service"
	StatusServed    Status = "served"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// transitions is the state graph. Terminal states have no outgoing edges.
var transitions = map[Status][]Status{
	StatusWaiting:   {StatusCalled, StatusCancelled},
	StatusCalled:    {StatusInService, StatusCancelled, StatusNoShow},
	StatusInService: {StatusServed},
}

// ValidStatus reports whether the value names a known status.
func ValidStatus(status Status) bool {
	switch status {
	case StatusWaiting, StatusCalled, StatusInService, StatusServed, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// CanTransition reports whether the state graph permits from → to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Active reports whether the status counts toward queue membership.
func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusCalled
}

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0 && ValidStatus(s)
}

// ServiceType classifies why the customer joined the queue.
type ServiceType string

const (
	ServiceTypeAppointment     ServiceType = "appointment"
	ServiceTypeDirectWorkOrder ServiceType = "direct_work_order"
	ServiceTypeEmergency       ServiceType = "emergency"
)

// ValidServiceType reports whether the value names a known service type.
func ValidServiceType(serviceType ServiceType) bool {
	switch serviceType {
	case ServiceTypeAppointment, ServiceTypeDirectWorkOrder, ServiceTypeEmergency:
		return true
	}
	return false
}

// QueueEntry is one customer's place in line.
type QueueEntry struct {
	ID                   string
	CustomerID           string
	ServiceType          ServiceType
	Status               Status
	Position             int
	JoinedAt             time.Time
	EstimatedWaitMinutes int
	VerificationCode     string
	ExpiresAt            time.Time
	AssignedTo           string
	WorkOrderID          string
	Notes                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CodeExpired reports whether the entry's verification code has lapsed.
func (e QueueEntry) CodeExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Override forces the open flag regardless of the weekly schedule.
type Override string

const (
	OverrideNone   Override = ""
	OverrideOpen   Override = "open"
	OverrideClosed Override = "closed"
)

// ValidOverride reports whether the value names a known override.
func ValidOverride(override Override) bool {
	switch override {
	case OverrideNone, OverrideOpen, OverrideClosed:
		return true
	}
	return false
}

// QueueStatus is the singleton aggregate describing the queue as a whole.
// CurrentCount and LastPosition are maintained by the repository; the
// average wait is recomputed by the coordinator on every read.
type QueueStatus struct {
	IsOpen             bool
	CurrentCount       int
	AverageWaitMinutes int
	LastPosition       int
	OperatingHours     WeeklyHours
	ManualOverride     Override
	LastUpdated        time.Time
}

// AddEntryParams carries the input for joining the queue.
type AddEntryParams struct {
	CustomerID  string
	ServiceType ServiceType
	Notes       string
}

// UpdateStatusParams carries the input for a status transition.
type UpdateStatusParams struct {
	EntryID     string
	NewStatus   Status
	AssignedTo  string
	WorkOrderID string
}

func entryFromRecord(record persistence.QueueEntry) QueueEntry {
	entry := QueueEntry{
		ID:                   record.ID,
		CustomerID:           record.CustomerID,
		ServiceType:          ServiceType(record.ServiceType),
		Status:               Status(record.Status),
		Position:             record.Position,
		JoinedAt:             record.JoinedAt,
		EstimatedWaitMinutes: record.EstimatedWaitMinutes,
		VerificationCode:     record.VerificationCode,
		ExpiresAt:            record.ExpiresAt,
		CreatedAt:            record.CreatedAt,
		UpdatedAt:            record.UpdatedAt,
	}
	if record.AssignedTo != nil {
		entry.AssignedTo = *record.AssignedTo
	}
	if record.WorkOrderID != nil {
		entry.WorkOrderID = *record.WorkOrderID
	}
	if record.Notes != nil {
		entry.Notes = *record.Notes
	}
	return entry
}

func entryToRecord(entry QueueEntry) persistence.QueueEntry {
	record := persistence.QueueEntry{
		ID:                   entry.ID,
		CustomerID:           entry.CustomerID,
		ServiceType:          string(entry.ServiceType),
		Status:               string(entry.Status),
		Position:             entry.Position,
		JoinedAt:             entry.JoinedAt,
		EstimatedWaitMinutes: entry.EstimatedWaitMinutes,
		VerificationCode:     entry.VerificationCode,
		ExpiresAt:            entry.ExpiresAt,
		CreatedAt:            entry.CreatedAt,
		UpdatedAt:            entry.UpdatedAt,
	}
	if entry.AssignedTo != "" {
		assignedTo := entry.AssignedTo
		record.AssignedTo = &assignedTo
	}
	if entry.WorkOrderID != "" {
		workOrderID := entry.WorkOrderID
		record.WorkOrderID = &workOrderID
	}
	if entry.Notes != "" {
		notes := entry.Notes
		record.Notes = &notes
	}
	return record
}
