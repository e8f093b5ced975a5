package orders

import (
	"context"
	"encoding/json"

	"gamecredit-platform/internal/audit"
)

// AuditAdapter bridges the orders audit hook to the shared audit.Service.
type AuditAdapter struct {
	Audit *audit.Service
}

func (a AuditAdapter) LogOrderAction(ctx context.Context, e AuditEvent) error {
	if a.Audit == nil {
		return nil
	}
	var meta string
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	return a.Audit.Append(ctx, audit.Event{
		Type:        audit.EventTypeOrder,
		ActorUserID: e.ActorID,
		TargetType:  "order",
		TargetID:    e.OrderID,
		ClientID:    e.ClientID,
		Message:     string(e.Action),
		Metadata:    meta,
	})
}
