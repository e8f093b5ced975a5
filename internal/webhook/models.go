package webhook

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Event names a client can subscribe to.
const (
	EventOrderCreated   = "order.created"
	EventOrderConfirmed = "order.confirmed"
	EventOrderRejected  = "order.rejected"
	EventOrderCancelled = "order.cancelled"
	EventReferralValid  = "referral.valid"
	EventWalletAdjusted = "wallet.adjusted"
)

var knownEvents = map[string]struct{}{
	EventOrderCreated:   {},
	EventOrderConfirmed: {},
	EventOrderRejected:  {},
	EventOrderCancelled: {},
	EventReferralValid:  {},
	EventWalletAdjusted: {},
}

func KnownEvent(e string) bool {
	_, ok := knownEvents[e]
	return ok
}

// Webhook is a client's registered endpoint.
//
// A webhook whose FailureCount reaches the threshold after a delivery's final
// attempt is deactivated and stays off until an admin reactivates it.
type Webhook struct {
	ID              string     `json:"webhook_id" db:"webhook_id"`
	OwnerID         string     `json:"client_id" db:"owner_id"`
	URL             string     `json:"webhook_url" db:"url"`
	SigningSecret   string     `json:"-" db:"signing_secret"`
	Events          EventList  `json:"subscribed_events" db:"subscribed_events"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	FailureCount    int        `json:"failure_count" db:"failure_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

func (w Webhook) Subscribed(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// EventList is stored as a comma separated text column.
type EventList []string

func (l EventList) Value() (driver.Value, error) {
	return strings.Join(l, ","), nil
}

func (l *EventList) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("webhook: cannot scan %T into EventList", src)
	}
	if s == "" {
		*l = nil
		return nil
	}
	*l = strings.Split(s, ",")
	return nil
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryRetrying  DeliveryStatus = "retrying"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) Final() bool { return s == DeliveryDelivered || s == DeliveryFailed }

// Delivery is one event sent to one webhook. ID doubles as the receiver's
// dedup token. AttemptCount never exceeds the retry ceiling.
type Delivery struct {
	ID           string         `json:"delivery_id" db:"delivery_id"`
	WebhookID    string         `json:"webhook_id" db:"webhook_id"`
	EventType    string         `json:"event_type" db:"event_type"`
	Payload      string         `json:"payload" db:"payload"`
	Status       DeliveryStatus `json:"status" db:"status"`
	AttemptCount int            `json:"attempt_count" db:"attempt_count"`
	NextRetryAt  *time.Time     `json:"next_retry_at,omitempty" db:"next_retry_at"`

	ResponseStatus int        `json:"response_status,omitempty" db:"response_status"`
	ResponseBody   string     `json:"response_body,omitempty" db:"response_body"`
	LastError      string     `json:"last_error,omitempty" db:"last_error"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
