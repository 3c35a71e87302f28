package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mailagent-backend/internal/agent/domain"
	"mailagent-backend/pkg/gmail"
	"mailagent-backend/pkg/utils/crypto"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
)

const tokenPersistTimeout = 10 * time.Second

// GmailAPI is the subset of the Gmail service the agent uses
type GmailAPI interface {
	ListMessages(ctx context.Context, tokens gmail.Tokens, query string, maxResults int, onTokenRefresh gmail.TokenUpdateFunc) ([]*gmailapi.Message, error)
	SendReply(ctx context.Context, tokens gmail.Tokens, reply gmail.Reply, onTokenRefresh gmail.TokenUpdateFunc) error
	Star(ctx context.Context, tokens gmail.Tokens, messageID string, onTokenRefresh gmail.TokenUpdateFunc) error
}

// gmailMailClient implements MailClient with per-user OAuth tokens from the credential store
type gmailMailClient struct {
	gmail         GmailAPI
	creds         CredentialStore
	encryptionKey string
}

func NewGmailMailClient(api GmailAPI, creds CredentialStore, encryptionKey string) MailClient {
	return &gmailMailClient{
		gmail:         api,
		creds:         creds,
		encryptionKey: encryptionKey,
	}
}

// tokens loads and decrypts the user's mail tokens, plus a callback that
// persists refreshed tokens back to the credential store
func (c *gmailMailClient) tokens(ctx context.Context, userID string) (gmail.Tokens, gmail.TokenUpdateFunc, error) {
	cred, err := c.creds.Get(ctx, userID)
	if err != nil {
		return gmail.Tokens{}, nil, fmt.Errorf("load credentials: %w", err)
	}
	if cred == nil {
		return gmail.Tokens{}, nil, domain.ErrCredentialNotFound
	}
	if !cred.MailConnected() {
		return gmail.Tokens{}, nil, domain.ErrMailNotConnected
	}

	accessToken, err := crypto.Decrypt(cred.AccessToken, c.encryptionKey)
	if err != nil {
		return gmail.Tokens{}, nil, fmt.Errorf("decrypt access token: %w", err)
	}
	refreshToken, err := crypto.Decrypt(cred.RefreshToken, c.encryptionKey)
	if err != nil {
		return gmail.Tokens{}, nil, fmt.Errorf("decrypt refresh token: %w", err)
	}

	tokens := gmail.Tokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiry:       cred.TokenExpiry,
	}
	return tokens, c.persistToken(ctx, userID), nil
}

func (c *gmailMailClient) persistToken(ctx context.Context, userID string) gmail.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenPersistTimeout)
		defer cancel()

		access, err := crypto.Encrypt(token.AccessToken, c.encryptionKey)
		if err != nil {
			return err
		}
		update := domain.CredentialUpdate{
			AccessToken: &access,
			TokenExpiry: &token.Expiry,
		}
		// Google only returns a refresh token on some refreshes
		if token.RefreshToken != "" {
			refresh, err := crypto.Encrypt(token.RefreshToken, c.encryptionKey)
			if err != nil {
				return err
			}
			update.RefreshToken = &refresh
		}
		_, err = c.creds.Upsert(pctx, userID, update)
		return err
	}
}

func (c *gmailMailClient) ListUnseen(ctx context.Context, userID, query string, maxResults int) ([]*RawMessage, error) {
	tokens, onRefresh, err := c.tokens(ctx, userID)
	if err != nil {
		return nil, err
	}

	messages, err := c.gmail.ListMessages(ctx, tokens, query, maxResults, onRefresh)
	if err != nil {
		return nil, err
	}

	raw := make([]*RawMessage, 0, len(messages))
	for _, m := range messages {
		raw = append(raw, &RawMessage{ID: m.Id, ThreadID: m.ThreadId, Starred: gmail.IsStarred(m), Payload: m})
	}
	return raw, nil
}

func (c *gmailMailClient) Extract(msg *RawMessage) (*ExtractedEmail, error) {
	if msg == nil || msg.Payload == nil {
		return nil, errors.New("message has no payload")
	}
	parsed := gmail.ParseMessage(msg.Payload)
	if parsed.From == "" {
		return nil, fmt.Errorf("message %s has no sender", msg.ID)
	}
	return &ExtractedEmail{
		ID:           msg.ID,
		ThreadID:     parsed.ThreadID,
		From:         parsed.From,
		FromName:     parsed.FromName,
		Subject:      parsed.Subject,
		Body:         parsed.Body,
		RFCMessageID: parsed.MessageID,
		References:   parsed.References,
	}, nil
}

func (c *gmailMailClient) Send(ctx context.Context, userID string, reply OutgoingReply) error {
	tokens, onRefresh, err := c.tokens(ctx, userID)
	if err != nil {
		return err
	}
	return c.gmail.SendReply(ctx, tokens, gmail.Reply{
		To:         reply.To,
		Subject:    reply.Subject,
		Body:       reply.Body,
		ThreadID:   reply.ThreadID,
		InReplyTo:  reply.InReplyTo,
		References: reply.References,
	}, onRefresh)
}

func (c *gmailMailClient) Flag(ctx context.Context, userID, messageID string) error {
	tokens, onRefresh, err := c.tokens(ctx, userID)
	if err != nil {
		return err
	}
	return c.gmail.Star(ctx, tokens, messageID, onRefresh)
}
