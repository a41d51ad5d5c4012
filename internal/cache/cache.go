package cache

import (
	"context"
	"time"

	"lojapet/backend/internal/domain"
)

type AlertCache interface {
	Get(ctx context.Context, key string) (*domain.StockAlertResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.StockAlertResponse, ttl time.Duration) error
}

type NoopAlertCache struct{}

func (NoopAlertCache) Get(_ context.Context, _ string) (*domain.StockAlertResponse, bool, error) {
	return nil, false, nil
}

func (NoopAlertCache) Set(_ context.Context, _ string, _ *domain.StockAlertResponse, _ time.Duration) error {
	return nil
}
