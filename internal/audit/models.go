package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block money flows on audit failures.
//
// Storage: table audit_events, INSERT-only.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	// Target of the action, e.g. ("order", order_id) or ("wallet", client_id).
	TargetType string `json:"target_type,omitempty" db:"target_type"`
	TargetID   string `json:"target_id,omitempty" db:"target_id"`
	ClientID   string `json:"client_id,omitempty" db:"client_id"`

	// Message is a short description, usually the action name.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeAdminAction EventType = "admin_action"
	EventTypeOrder       EventType = "order"
	EventTypeWallet      EventType = "wallet"
	EventTypeReferral    EventType = "referral"
	EventTypeSettings    EventType = "settings"
	EventTypeWebhook     EventType = "webhook"
)
