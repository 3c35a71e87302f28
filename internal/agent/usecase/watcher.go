package usecase

import (
	"context"

	"mailagent-backend/pkg/gmail"
)

// GmailWatchAPI registers a mailbox for Gmail push notifications
type GmailWatchAPI interface {
	Watch(ctx context.Context, tokens gmail.Tokens, topicName string, onTokenRefresh gmail.TokenUpdateFunc) error
	Stop(ctx context.Context, tokens gmail.Tokens, onTokenRefresh gmail.TokenUpdateFunc) error
}

// MailboxWatcher points a user's Gmail push notifications at the agent's Pub/Sub topic
type MailboxWatcher struct {
	tokens *gmailMailClient
	api    GmailWatchAPI
	topic  string
}

// NewMailboxWatcher takes the fully qualified topic, e.g. projects/p/topics/gmail-push
func NewMailboxWatcher(api GmailWatchAPI, creds CredentialStore, encryptionKey, topic string) *MailboxWatcher {
	return &MailboxWatcher{
		tokens: &gmailMailClient{creds: creds, encryptionKey: encryptionKey},
		api:    api,
		topic:  topic,
	}
}

func (w *MailboxWatcher) Watch(ctx context.Context, userID string) error {
	tokens, onRefresh, err := w.tokens.tokens(ctx, userID)
	if err != nil {
		return err
	}
	return w.api.Watch(ctx, tokens, w.topic, onRefresh)
}

// Unwatch stops Gmail push notifications for the user's mailbox
func (w *MailboxWatcher) Unwatch(ctx context.Context, userID string) error {
	tokens, onRefresh, err := w.tokens.tokens(ctx, userID)
	if err != nil {
		return err
	}
	return w.api.Stop(ctx, tokens, onRefresh)
}
