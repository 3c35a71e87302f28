package repository

import (
	"context"

	"mailagent-backend/internal/agent/domain"
)

// CredentialRepository defines the interface for agent credential storage
type CredentialRepository interface {
	// Get returns the credential for a user, or nil when none is stored
	Get(ctx context.Context, userID string) (*domain.Credential, error)
	// Upsert applies a partial update, creating the record if needed
	Upsert(ctx context.Context, userID string, update domain.CredentialUpdate) (*domain.Credential, error)
	// FindByEmail maps a mailbox address back to its owner
	FindByEmail(ctx context.Context, email string) (*domain.Credential, error)
	// ListActive returns every credential with AgentActive set
	ListActive(ctx context.Context) ([]*domain.Credential, error)
}

// EmailLogRepository defines the interface for the append-only email log
type EmailLogRepository interface {
	AppendLog(ctx context.Context, entry *domain.EmailLog) (*domain.EmailLog, error)
	// ListLogs returns the newest rows first; limit <= 0 returns all rows
	ListLogs(ctx context.Context, userID string, limit int) ([]*domain.EmailLog, error)
	// LatestByMessage folds the log into the current row per message
	LatestByMessage(ctx context.Context, userID string) (map[string]*domain.EmailLog, error)
}

// ActivityRepository defines the interface for the activity feed
type ActivityRepository interface {
	AppendActivity(ctx context.Context, activity *domain.Activity) (*domain.Activity, error)
	ListActivities(ctx context.Context, userID string, limit int) ([]*domain.Activity, error)
}

// DeviceTokenRepository defines the interface for FCM token operations
type DeviceTokenRepository interface {
	SaveToken(ctx context.Context, userID, token, deviceInfo string) error
	GetTokensByUserID(ctx context.Context, userID string) ([]domain.DeviceToken, error)
	DeleteToken(ctx context.Context, token string) error
}
