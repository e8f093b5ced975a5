package settings

import (
	"context"
	"errors"
)

// SharedInvalidator drops a cache shared between instances (Redis).
type SharedInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Service is the admin write path: validate, persist, invalidate.
type Service struct {
	store  Store
	cache  Provider
	shared SharedInvalidator
}

func NewService(store Store, cache Provider, shared SharedInvalidator) *Service {
	return &Service{store: store, cache: cache, shared: shared}
}

func (s *Service) Get(ctx context.Context) (Settings, error) {
	return s.cache.Get(ctx)
}

func (s *Service) Update(ctx context.Context, next Settings) (Settings, error) {
	if s.store == nil {
		return Settings{}, errors.New("settings: store not configured")
	}
	next.Normalize()
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.store.SaveSettings(ctx, next); err != nil {
		return Settings{}, err
	}
	if s.shared != nil {
		if err := s.shared.Invalidate(ctx); err != nil {
			return Settings{}, err
		}
	}
	s.cache.Invalidate()
	return next, nil
}
