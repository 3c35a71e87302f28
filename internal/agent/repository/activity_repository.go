package repository

import (
	"context"
	"time"

	"mailagent-backend/internal/agent/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type activityRepository struct {
	db *gorm.DB
}

// NewActivityRepository creates a new instance of activityRepository
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) AppendActivity(ctx context.Context, activity *domain.Activity) (*domain.Activity, error) {
	row := *activity
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if row.Metadata == nil {
		row.Metadata = domain.JSONMap{}
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *activityRepository) ListActivities(ctx context.Context, userID string, limit int) ([]*domain.Activity, error) {
	var activities []*domain.Activity
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&activities).Error; err != nil {
		return nil, err
	}
	return activities, nil
}
