// audit.go: Audit hooks for key ring, provider and configuration operations.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// AuditLogger receives one call per security-relevant operation.
// metadata never carries key, password or plaintext bytes.
type AuditLogger interface {
	Log(action string, success bool, metadata map[string]interface{}) error
}

// NoOpAuditLogger discards every event. It is the default everywhere.
type NoOpAuditLogger struct{}

// Log implements AuditLogger.
func (NoOpAuditLogger) Log(string, bool, map[string]interface{}) error { return nil }

// AuditEvent is one recorded audit call.
type AuditEvent struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action"`
	Success   bool                   `json:"success"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func newAuditEvent(action string, success bool, metadata map[string]interface{}) AuditEvent {
	return AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: timecache.CachedTime().UTC(),
		Action:    action,
		Success:   success,
		Metadata:  metadata,
	}
}

// MemoryAuditLogger keeps events in memory.
type MemoryAuditLogger struct {
	mu     sync.Mutex
	events []AuditEvent
}

// Log implements AuditLogger.
func (m *MemoryAuditLogger) Log(action string, success bool, metadata map[string]interface{}) error {
	m.mu.Lock()
	m.events = append(m.events, newAuditEvent(action, success, metadata))
	m.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events in order.
func (m *MemoryAuditLogger) Events() []AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEvent, len(m.events))
	copy(out, m.events)
	return out
}

// JSONAuditLogger writes one JSON object per event to w.
type JSONAuditLogger struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONAuditLogger returns a logger writing JSON lines to w.
func NewJSONAuditLogger(w io.Writer) *JSONAuditLogger {
	return &JSONAuditLogger{enc: json.NewEncoder(w)}
}

// Log implements AuditLogger.
func (j *JSONAuditLogger) Log(action string, success bool, metadata map[string]interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(newAuditEvent(action, success, metadata))
}

func auditOrNoOp(l AuditLogger) AuditLogger {
	if l == nil {
		return NoOpAuditLogger{}
	}
	return l
}
