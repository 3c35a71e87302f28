package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ActivityType tags an activity feed entry
type ActivityType string

const (
	ActivityEmailReply  ActivityType = "email_reply"
	ActivityEmailStar   ActivityType = "email_star"
	ActivityEmailIgnore ActivityType = "email_ignore"
)

// JSONMap stores structured activity metadata as a JSON column
type JSONMap map[string]interface{}

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// Activity is a user-facing audit item summarizing one processing decision
type Activity struct {
	ID          string       `json:"id" gorm:"primaryKey"`
	UserID      string       `json:"user_id" gorm:"index;not null"`
	Type        ActivityType `json:"type" gorm:"not null"`
	Description string       `json:"description"`
	Metadata    JSONMap      `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt   time.Time    `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for GORM
func (Activity) TableName() string {
	return "activities"
}
