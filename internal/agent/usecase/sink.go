package usecase

import (
	"context"

	"mailagent-backend/internal/agent/domain"
	"mailagent-backend/internal/agent/repository"
)

// RepositorySink implements LogSink on top of the log and activity repositories
type RepositorySink struct {
	logs       repository.EmailLogRepository
	activities repository.ActivityRepository
}

func NewRepositorySink(logs repository.EmailLogRepository, activities repository.ActivityRepository) *RepositorySink {
	return &RepositorySink{logs: logs, activities: activities}
}

func (s *RepositorySink) AppendLog(ctx context.Context, entry *domain.EmailLog) (*domain.EmailLog, error) {
	return s.logs.AppendLog(ctx, entry)
}

func (s *RepositorySink) ListLogs(ctx context.Context, userID string, limit int) ([]*domain.EmailLog, error) {
	return s.logs.ListLogs(ctx, userID, limit)
}

func (s *RepositorySink) LatestByMessage(ctx context.Context, userID string) (map[string]*domain.EmailLog, error) {
	return s.logs.LatestByMessage(ctx, userID)
}

func (s *RepositorySink) AppendActivity(ctx context.Context, activity *domain.Activity) (*domain.Activity, error) {
	return s.activities.AppendActivity(ctx, activity)
}
