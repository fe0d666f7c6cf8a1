package persistence

import "time"

// QueueEntry represents one customer's place in line as stored.
type QueueEntry struct {
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

// QueueStatus is the singleton aggregate describing the queue as a whole.
// CurrentCount and LastPosition are maintained by the repository inside the
// same transaction as the entry mutation they reflect.
type QueueStatus struct {
	IsOpen             bool
	CurrentCount       int
	LastPosition       int
	ManualOverride     string
	OperatingHoursJSON string
	LastUpdated        time.Time
}

// CacheRecord is a durable cache entry. Records are derived state and may be
// dropped at any time without correctness loss.
type CacheRecord struct {
	KeyHash      string
	Key          string
	Value        []byte
	SemanticKey  *string
	Context      *string
	Tags         []string
	Priority     string
	Version      *string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	AccessCount  int64
	LastAccessed time.Time
}
