package repository

import (
	"context"
	"time"

	"mailagent-backend/internal/agent/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// emailLogRepository implements EmailLogRepository interface
type emailLogRepository struct {
	db *gorm.DB
}

// NewEmailLogRepository creates a new instance of emailLogRepository
func NewEmailLogRepository(db *gorm.DB) EmailLogRepository {
	return &emailLogRepository{db: db}
}

func (r *emailLogRepository) AppendLog(ctx context.Context, entry *domain.EmailLog) (*domain.EmailLog, error) {
	row := *entry
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if row.Status == "" {
		row.Status = domain.LogStatusPending
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *emailLogRepository) ListLogs(ctx context.Context, userID string, limit int) ([]*domain.EmailLog, error) {
	var logs []*domain.EmailLog
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *emailLogRepository) LatestByMessage(ctx context.Context, userID string) (map[string]*domain.EmailLog, error) {
	logs, err := r.ListLogs(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	return domain.CurrentStatus(logs), nil
}
