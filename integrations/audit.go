package integrations

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one stored audit trail event.
type AuditEntry struct {
	AuditID   string                 `json:"audit_id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	Details   map[string]interface{} `json:"details"`
	ActorID   string                 `json:"actor_id"`
}

// MemoryAuditStore keeps the audit trail in memory, in insertion order.
// It is safe for concurrent use.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []AuditEntry
}

// NewMemoryAuditStore creates an empty audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Record stores an audit event and returns its assigned ID.
func (s *MemoryAuditStore) Record(ctx context.Context, eventType string, details map[string]interface{}, actorID string) (AuditRecord, error) {
	select {
	case <-ctx.Done():
		return AuditRecord{}, ctx.Err()
	default:
	}

	entry := AuditEntry{
		AuditID:   "audit-" + uuid.New().String(),
		Timestamp: time.Now(),
		EventType: eventType,
		Details:   details,
		ActorID:   actorID,
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	return AuditRecord{AuditID: entry.AuditID, Timestamp: entry.Timestamp}, nil
}

// Entries returns a copy of the stored audit trail.
func (s *MemoryAuditStore) Entries() []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
