package main

import (
	"context"
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// KeySecurityEvents is the store slice holding the security event log.
const KeySecurityEvents = "security_events"

// EventType classifies security events.
type EventType string

const (
	EventBackupCreated    EventType = "backup_created"
	EventBackupRestored   EventType = "backup_restored"
	EventBackupDeleted    EventType = "backup_deleted"
	EventChecksumMismatch EventType = "checksum_mismatch"
	EventRestoreRejected  EventType = "restore_rejected"
	EventDecryptFailed    EventType = "decrypt_failed"
)

// Severity grades how urgent an event is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SecurityEvent is an append-only record. After creation only the
// resolution fields may change.
type SecurityEvent struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"type"`
	Severity   Severity          `json:"severity"`
	Source     string            `json:"source"`
	Details    string            `json:"details"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Resolved   bool              `json:"resolved"`
	ResolvedAt *time.Time        `json:"resolvedAt,omitempty"`
	ResolvedBy string            `json:"resolvedBy,omitempty"`
	Notes      string            `json:"notes,omitempty"`
}

// AuditLog is the capped, time-retained security event log. Failing to
// persist an event never fails the operation that produced it.
type AuditLog struct {
	store         Store
	log           Logger
	maxLogs       int
	retentionDays int

	mu sync.Mutex
}

func NewAuditLog(store Store, log Logger, cfg SecurityConfig) *AuditLog {
	return &AuditLog{
		store:         store,
		log:           log,
		maxLogs:       cfg.MaxLogs,
		retentionDays: cfg.RetentionDays,
	}
}

func (a *AuditLog) load(ctx context.Context) []SecurityEvent {
	raw, err := a.store.Get(ctx, KeySecurityEvents)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			a.log.Warnf("failed to read security events: %v", err)
		}
		return nil
	}
	var events []SecurityEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		a.log.Warnf("security event log is corrupt, starting fresh: %v", err)
		return nil
	}
	return events
}

func (a *AuditLog) save(ctx context.Context, events []SecurityEvent) {
	raw, err := json.Marshal(events)
	if err != nil {
		a.log.Warnf("failed to serialize security events: %v", err)
		return
	}
	if err := a.store.Put(ctx, KeySecurityEvents, raw); err != nil {
		a.log.Warnf("failed to persist security events: %v", err)
	}
}

// prune drops events past the retention window, then the oldest events
// past the size cap.
func (a *AuditLog) prune(events []SecurityEvent) []SecurityEvent {
	if a.retentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -a.retentionDays)
		kept := events[:0]
		for _, e := range events {
			if e.Timestamp.After(cutoff) {
				kept = append(kept, e)
			}
		}
		events = kept
	}
	if a.maxLogs > 0 && len(events) > a.maxLogs {
		events = events[len(events)-a.maxLogs:]
	}
	return events
}

// Record appends a new event. Create-once: the returned event is already
// persisted and must not be modified except through Resolve.
func (a *AuditLog) Record(t EventType, sev Severity, source, details string) SecurityEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	event := SecurityEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      t,
		Severity:  sev,
		Source:    source,
		Details:   details,
	}

	ctx := context.Background()
	events := append(a.load(ctx), event)
	a.save(ctx, a.prune(events))
	return event
}

// Resolve marks an event handled. Only the resolution fields change.
func (a *AuditLog) Resolve(id, resolvedBy, notes string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx := context.Background()
	events := a.load(ctx)
	for i := range events {
		if events[i].ID == id {
			now := time.Now().UTC()
			events[i].Resolved = true
			events[i].ResolvedAt = &now
			events[i].ResolvedBy = resolvedBy
			events[i].Notes = notes
			a.save(ctx, events)
			return nil
		}
	}
	return errors.New("security event not found: " + id)
}

// Events returns the current log, optionally filtered by severity.
func (a *AuditLog) Events(severity Severity) []SecurityEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	events := a.load(context.Background())
	if severity == "" {
		return events
	}
	var out []SecurityEvent
	for _, e := range events {
		if e.Severity == severity {
			out = append(out, e)
		}
	}
	return out
}
