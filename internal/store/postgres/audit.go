package postgres

import (
	"context"

	"gamecredit-platform/internal/audit"
)

func (s *Store) AppendEvent(ctx context.Context, e audit.Event) error {
	_, err := s.named(ctx, `
		INSERT INTO audit_events (id, type, actor_user_id, actor_role, ip_address, target_type, target_id,
			client_id, message, metadata, created_at)
		VALUES (:id, :type, :actor_user_id, :actor_role, :ip_address, :target_type, :target_id,
			:client_id, :message, :metadata, :created_at)`, e)
	return classify(err, "audit event "+e.ID)
}
