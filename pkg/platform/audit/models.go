package audit

import (
	"time"

	"gatehouse/pkg/domain"
)

// EventCategory classifies audit events by purpose so sinks can route and
// retain them differently.
type EventCategory string

const (
	// CategoryGate covers visitor state changes at the gate. These form the
	// society's permanent access record.
	CategoryGate EventCategory = "gate"
	// CategorySecurity covers authentication outcomes and denied actions.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It stays
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category   EventCategory
	Timestamp  time.Time
	Action     string
	ActorID    domain.AccountID
	SocietyID  domain.SocietyID
	VisitorID  domain.VisitorID
	FlatNo     string
	FromStatus string
	ToStatus   string
	Reason     string
	ClientIP   string
	Device     string
	RequestID  string
}

type AuditEvent string

const (
	// Gate-pass events
	EventVisitorCreated    AuditEvent = "visitor_created"
	EventVisitorApproved   AuditEvent = "visitor_approved"
	EventVisitorRejected   AuditEvent = "visitor_rejected"
	EventVisitorEntered    AuditEvent = "visitor_entered"
	EventVisitorExited     AuditEvent = "visitor_exited"
	EventGuestPassIssued   AuditEvent = "guest_pass_issued"
	EventGuestPassVerified AuditEvent = "guest_pass_verified"
	EventGuestPassExpired  AuditEvent = "guest_pass_expired"
	EventGuestEntered      AuditEvent = "guest_entered"

	// Directory events
	EventTenantRemoved AuditEvent = "tenant_removed"

	// Auth events
	EventLoginCodeSent  AuditEvent = "login_code_sent"
	EventLoginSucceeded AuditEvent = "login_succeeded"
	EventLoginFailed    AuditEvent = "login_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventVisitorCreated:    CategoryGate,
	EventVisitorApproved:   CategoryGate,
	EventVisitorRejected:   CategoryGate,
	EventVisitorEntered:    CategoryGate,
	EventVisitorExited:     CategoryGate,
	EventGuestPassIssued:   CategoryGate,
	EventGuestPassVerified: CategoryGate,
	EventGuestPassExpired:  CategoryGate,
	EventGuestEntered:      CategoryGate,

	EventTenantRemoved: CategorySecurity,
	EventLoginFailed:   CategorySecurity,

	EventLoginCodeSent:  CategoryOperations,
	EventLoginSucceeded: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
