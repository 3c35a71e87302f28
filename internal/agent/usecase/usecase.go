package usecase

import (
	"context"

	"mailagent-backend/internal/agent/domain"

	gmailapi "google.golang.org/api/gmail/v1"
)

// CredentialStore loads and updates a user's agent credentials
type CredentialStore interface {
	// Get returns nil, nil when the user has no record
	Get(ctx context.Context, userID string) (*domain.Credential, error)
	Upsert(ctx context.Context, userID string, update domain.CredentialUpdate) (*domain.Credential, error)
}

// RawMessage is a listed mailbox message before extraction
type RawMessage struct {
	ID       string
	ThreadID string
	Starred  bool
	Payload  *gmailapi.Message
}

// ExtractedEmail is the part of a message the agent reasons about
type ExtractedEmail struct {
	ID           string
	ThreadID     string
	From         string
	FromName     string
	Subject      string
	Body         string
	RFCMessageID string // Message-ID header, used for threading replies
	References   string
}

// OutgoingReply is a reply to send on the user's behalf
type OutgoingReply struct {
	To         string
	Subject    string
	Body       string
	ThreadID   string
	InReplyTo  string
	References string
}

// MailClient is the per-user authenticated mailbox
type MailClient interface {
	ListUnseen(ctx context.Context, userID, query string, maxResults int) ([]*RawMessage, error)
	Extract(msg *RawMessage) (*ExtractedEmail, error)
	Send(ctx context.Context, userID string, reply OutgoingReply) error
	Flag(ctx context.Context, userID, messageID string) error
}

// ReplyDraftRequest is the context a reply is drafted from
type ReplyDraftRequest struct {
	FromEmail           string
	FromName            string
	Subject             string
	Body                string
	PersonalDescription string
	ResumeLink          string
}

// Classifier decides what to do with an email and drafts replies
type Classifier interface {
	Classify(ctx context.Context, userID, body string) (*domain.Classification, error)
	DraftReply(ctx context.Context, userID string, req ReplyDraftRequest) (string, error)
}

// LogSink persists processing outcomes and the activity feed
type LogSink interface {
	AppendLog(ctx context.Context, entry *domain.EmailLog) (*domain.EmailLog, error)
	// ListLogs returns the newest rows first; limit <= 0 returns all rows
	ListLogs(ctx context.Context, userID string, limit int) ([]*domain.EmailLog, error)
	// LatestByMessage returns the current row per message ID
	LatestByMessage(ctx context.Context, userID string) (map[string]*domain.EmailLog, error)
	AppendActivity(ctx context.Context, activity *domain.Activity) (*domain.Activity, error)
}
