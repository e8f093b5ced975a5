package audit

import (
	"context"
	"errors"
	"time"

	"gamecredit-platform/internal/auth"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	AppendEvent(ctx context.Context, e Event) error
}

// Service records admin actions: order edits and decisions, wallet adjustments,
// referral status corrections, settings changes and webhook reactivation.
//
// Audit is internal-only. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Append stores e. Actor and IP default to the identity carried by ctx.
func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" || e.Message == "" {
		return ErrInvalidEvent
	}

	if e.ActorUserID == "" {
		e.ActorUserID, _ = auth.UserID(ctx)
	}
	if e.ActorRole == "" {
		e.ActorRole, _ = auth.Role(ctx)
	}
	if e.IPAddress == "" {
		e.IPAddress = auth.ClientIP(ctx)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.AppendEvent(ctx, e)
}

// LogAdminAction records an admin action against one target.
func (s *Service) LogAdminAction(ctx context.Context, typ EventType, targetType, targetID, clientID, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:       typ,
		TargetType: targetType,
		TargetID:   targetID,
		ClientID:   clientID,
		Message:    message,
		Metadata:   metadata,
	})
}
