package domain

import "time"

// LogStatus is the processing status recorded on an email log row
type LogStatus string

const (
	LogStatusPending LogStatus = "pending"
	LogStatusSent    LogStatus = "sent"
	LogStatusFailed  LogStatus = "failed"
)

// EmailLog records one processing outcome for one inbound message.
// Rows are append-only: a terminal outcome is a new row, never an update.
type EmailLog struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	UserID       string    `json:"user_id" gorm:"index:idx_email_logs_user_message;not null"`
	MessageID    string    `json:"message_id" gorm:"index:idx_email_logs_user_message;not null"`
	FromEmail    string    `json:"from_email"`
	Subject      string    `json:"subject"`
	Action       Action    `json:"action" gorm:"not null"`
	ResponseText string    `json:"response_text,omitempty" gorm:"type:text"`
	Status       LogStatus `json:"status" gorm:"not null;default:pending"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for GORM
func (EmailLog) TableName() string {
	return "email_logs"
}

// IsStalePending reports whether a pending row for a dispatching action was
// never followed by a terminal row within the given window.
// Pending rows for ignore are terminal on their own.
func (l *EmailLog) IsStalePending(now time.Time, after time.Duration) bool {
	if after <= 0 || l.Status != LogStatusPending || l.Action == ActionIgnore {
		return false
	}
	return now.Sub(l.CreatedAt) >= after
}

// CurrentStatus folds a message's rows into its latest row.
// Rows may be in any order; ties on CreatedAt prefer terminal statuses.
func CurrentStatus(rows []*EmailLog) map[string]*EmailLog {
	latest := make(map[string]*EmailLog, len(rows))
	for _, row := range rows {
		cur, ok := latest[row.MessageID]
		if !ok || row.CreatedAt.After(cur.CreatedAt) ||
			(row.CreatedAt.Equal(cur.CreatedAt) && cur.Status == LogStatusPending && row.Status != LogStatusPending) {
			latest[row.MessageID] = row
		}
	}
	return latest
}
