// Package queue defines message payloads exchanged over the message broker.
package queue

// SecurityQueueName is the durable queue carrying audit events to
// operational monitoring.
const SecurityQueueName = "security.audit"

// SecurityEvent mirrors one audit log entry for downstream consumers
// (alerting, log shipping) that should not query the primary database.
// DeliveryFailed is set when the entry could not be written to the
// audit_logs table; the event is then the only durable trace.
type SecurityEvent struct {
    EventID        string  `json:"event_id"`
    AuditID        uint64  `json:"audit_id,omitempty"`
    UserID         *uint64 `json:"user_id,omitempty"`
    Action         string  `json:"action"`
    ResourceType   string  `json:"resource_type,omitempty"`
    ResourceID     *uint64 `json:"resource_id,omitempty"`
    IPAddress      string  `json:"ip_address"`
    UserAgent      string  `json:"user_agent"`
    OccurredAt     string  `json:"occurred_at"`
    DeliveryFailed bool    `json:"delivery_failed,omitempty"`
}
