package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user         = "me"
	LabelStarred = "STARRED"
	LabelInbox   = "INBOX"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc func(token *oauth2.Token) error

// Tokens are the OAuth credentials of one mailbox
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

type Service struct {
	clientID     string
	clientSecret string
	clientOpts   []option.ClientOption
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string, opts ...option.ClientOption) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		clientOpts:   opts,
	}
}

// GetGmailService creates Gmail service with user's tokens
func (s *Service) GetGmailService(ctx context.Context, tokens Tokens, onTokenRefresh TokenUpdateFunc) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       tokens.Expiry,
	}

	// Without a known expiry, force a refresh when we can
	if tokens.RefreshToken != "" && tokens.Expiry.IsZero() {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, s.clientOpts...)
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	return srv, nil
}

// ListMessages returns full messages matching a Gmail search query, newest first as listed by Gmail.
// Messages that fail to load individually are skipped.
func (s *Service) ListMessages(ctx context.Context, tokens Tokens, query string, maxResults int, onTokenRefresh TokenUpdateFunc) ([]*gmail.Message, error) {
	srv, err := s.GetGmailService(ctx, tokens, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > 500 {
		maxResults = 500 // Gmail API maximum
	}

	listCall := srv.Users.Messages.List(user).MaxResults(int64(maxResults)).Context(ctx)
	if query != "" {
		listCall = listCall.Q(query)
	}
	resp, err := listCall.Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve messages: %w", err)
	}

	messages := make([]*gmail.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		full, err := srv.Users.Messages.Get(user, m.Id).Format("full").Context(ctx).Do()
		if err != nil {
			log.Printf("[Gmail] Skipping message %s: %v", m.Id, err)
			continue
		}
		messages = append(messages, full)
	}

	return messages, nil
}

// Reply is an outgoing response to an existing message
type Reply struct {
	To         string
	Subject    string
	Body       string
	ThreadID   string
	InReplyTo  string
	References string
}

// SendReply sends a plain-text reply, threaded onto the original conversation when possible
func (s *Service) SendReply(ctx context.Context, tokens Tokens, reply Reply, onTokenRefresh TokenUpdateFunc) error {
	raw, err := BuildReplyMIME(reply, time.Now())
	if err != nil {
		return err
	}

	srv, err := s.GetGmailService(ctx, tokens, onTokenRefresh)
	if err != nil {
		return err
	}

	msg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: reply.ThreadID,
	}

	if _, err := srv.Users.Messages.Send(user, msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to send message: %w", err)
	}
	return nil
}

// BuildReplyMIME renders an RFC 5322 message for a reply
func BuildReplyMIME(reply Reply, date time.Time) ([]byte, error) {
	to, err := mail.ParseAddress(reply.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", reply.To, err)
	}

	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(reply.Subject)
	if reply.InReplyTo != "" {
		h.Set("In-Reply-To", reply.InReplyTo)
		refs := strings.TrimSpace(reply.References + " " + reply.InReplyTo)
		h.Set("References", refs)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("unable to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, reply.Body); err != nil {
		return nil, fmt.Errorf("unable to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("unable to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

// ModifyMessageLabels adds and/or removes labels from a message
func (s *Service) ModifyMessageLabels(ctx context.Context, tokens Tokens, messageID string, addLabelIDs, removeLabelIDs []string, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.GetGmailService(ctx, tokens, onTokenRefresh)
	if err != nil {
		return err
	}

	modifyReq := &gmail.ModifyMessageRequest{}
	if len(addLabelIDs) > 0 {
		modifyReq.AddLabelIds = addLabelIDs
	}
	if len(removeLabelIDs) > 0 {
		modifyReq.RemoveLabelIds = removeLabelIDs
	}

	if _, err := srv.Users.Messages.Modify(user, messageID, modifyReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to modify message labels: %w", err)
	}
	return nil
}

// Star adds the STARRED label to a message
func (s *Service) Star(ctx context.Context, tokens Tokens, messageID string, onTokenRefresh TokenUpdateFunc) error {
	return s.ModifyMessageLabels(ctx, tokens, messageID, []string{LabelStarred}, nil, onTokenRefresh)
}

// Watch sets up push notifications for the user's mailbox
func (s *Service) Watch(ctx context.Context, tokens Tokens, topicName string, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.GetGmailService(ctx, tokens, onTokenRefresh)
	if err != nil {
		return err
	}

	// Only one watch per mailbox is allowed; clear any previous one
	_ = srv.Users.Stop(user).Context(ctx).Do()

	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{LabelInbox},
	}

	resp, err := srv.Users.Watch(user, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to watch mailbox: %w", err)
	}
	log.Printf("[Gmail] Watch started on %s. Expiration: %d, HistoryId: %d", topicName, resp.Expiration, resp.HistoryId)
	return nil
}

// Stop stops push notifications for the user's mailbox
func (s *Service) Stop(ctx context.Context, tokens Tokens, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.GetGmailService(ctx, tokens, onTokenRefresh)
	if err != nil {
		return err
	}

	if err := srv.Users.Stop(user).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %w", err)
	}
	return nil
}
