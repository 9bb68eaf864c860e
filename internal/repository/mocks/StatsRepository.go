package mocks

import (
	"context"
	"time"

	"collaborative-canvas/internal/domain"

	"github.com/stretchr/testify/mock"
)

// StatsRepository 是 repository.StatsRepository 的 testify mock。
type StatsRepository struct {
	mock.Mock
}

func (m *StatsRepository) SaveSessionStats(ctx context.Context, stats []domain.SessionStats, ttl time.Duration) error {
	args := m.Called(ctx, stats, ttl)
	return args.Error(0)
}
