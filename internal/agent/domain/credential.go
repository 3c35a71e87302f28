package domain

import "time"

// Credential holds everything the agent needs to act on a user's mailbox.
// AgentActive is the persisted source of truth for whether monitoring should run.
type Credential struct {
	UserID              string    `json:"user_id" gorm:"primaryKey"`
	Email               string    `json:"email" gorm:"index"`
	AgentActive         bool      `json:"agent_active" gorm:"index;default:false"`
	AccessToken         string    `json:"-" gorm:"type:text"` // encrypted at rest
	RefreshToken        string    `json:"-" gorm:"type:text"` // encrypted at rest
	TokenExpiry         time.Time `json:"-"`
	ClassifierKey       string    `json:"-" gorm:"type:text"` // encrypted at rest
	PersonalDescription string    `json:"personal_description" gorm:"type:text"`
	ResumeLink          string    `json:"resume_link"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Credential) TableName() string {
	return "agent_credentials"
}

// MailConnected reports whether the record carries usable mail tokens
func (c *Credential) MailConnected() bool {
	return c != nil && (c.AccessToken != "" || c.RefreshToken != "")
}

// CredentialUpdate is a partial update; nil fields are left untouched
type CredentialUpdate struct {
	Email               *string
	AgentActive         *bool
	AccessToken         *string
	RefreshToken        *string
	TokenExpiry         *time.Time
	ClassifierKey       *string
	PersonalDescription *string
	ResumeLink          *string
}

// Apply copies the non-nil fields onto c
func (u CredentialUpdate) Apply(c *Credential) {
	if u.Email != nil {
		c.Email = *u.Email
	}
	if u.AgentActive != nil {
		c.AgentActive = *u.AgentActive
	}
	if u.AccessToken != nil {
		c.AccessToken = *u.AccessToken
	}
	if u.RefreshToken != nil {
		c.RefreshToken = *u.RefreshToken
	}
	if u.TokenExpiry != nil {
		c.TokenExpiry = *u.TokenExpiry
	}
	if u.ClassifierKey != nil {
		c.ClassifierKey = *u.ClassifierKey
	}
	if u.PersonalDescription != nil {
		c.PersonalDescription = *u.PersonalDescription
	}
	if u.ResumeLink != nil {
		c.ResumeLink = *u.ResumeLink
	}
}
