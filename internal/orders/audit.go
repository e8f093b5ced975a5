package orders

import (
	"context"

	"gamecredit-platform/pkg/logger"
)

type AuditAction string

const (
	ActionEdited    AuditAction = "order.amount_edited"
	ActionConfirmed AuditAction = "order.confirmed"
	ActionRejected  AuditAction = "order.rejected"
)

type AuditEvent struct {
	Action   AuditAction
	OrderID  string
	ClientID string
	ActorID  string
	Metadata map[string]string
}

// AuditLogger records admin actions on orders. Best-effort: failures are logged,
// never returned to the caller.
type AuditLogger interface {
	LogOrderAction(ctx context.Context, e AuditEvent) error
}

func (s *Service) logAudit(ctx context.Context, e AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogOrderAction(ctx, e); err != nil {
		logger.From(ctx).Warn("order audit failed", "order_id", e.OrderID, "action", e.Action, "err", err)
	}
}
