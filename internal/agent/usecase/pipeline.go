package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"mailagent-backend/internal/agent/domain"
	"mailagent-backend/pkg/metrics"
)

const (
	// DefaultQuery selects unread mail from the last day
	DefaultQuery       = "is:unread newer_than:1d"
	DefaultBatchSize   = 10
	DefaultCallTimeout = 60 * time.Second
)

// Per-message outcomes reported to metrics
const (
	outcomeSkipped = "skipped"
	outcomeDecided = "decided"
	outcomeError   = "error"
)

// PipelineConfig tunes one pipeline run
type PipelineConfig struct {
	Query             string
	BatchSize         int
	CallTimeout       time.Duration // applied to every external call; 0 disables
	PendingRetryAfter time.Duration // stale pending reply/star rows are retried after this; 0 disables
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.Query == "" {
		c.Query = DefaultQuery
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.CallTimeout < 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	return c
}

// Pipeline fetches, classifies and acts on a user's new email
type Pipeline struct {
	creds      CredentialStore
	mail       MailClient
	classifier Classifier
	sink       LogSink
	cfg        PipelineConfig
	handlers   map[domain.Action]actionHandler
	now        func() time.Time
}

func NewPipeline(creds CredentialStore, mail MailClient, classifier Classifier, sink LogSink, cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		creds:      creds,
		mail:       mail,
		classifier: classifier,
		sink:       sink,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
	p.handlers = map[domain.Action]actionHandler{
		domain.ActionReply:  &replyHandler{p: p},
		domain.ActionStar:   &starHandler{p: p},
		domain.ActionIgnore: ignoreHandler{},
	}
	return p
}

// callCtx bounds a single external call
func (p *Pipeline) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.CallTimeout)
}

// ProcessNewEmails runs one pass over the user's unseen mail.
// Inactive or unknown users are a no-op. Credential, listing and log-history
// errors abort the run; per-message errors never do.
func (p *Pipeline) ProcessNewEmails(ctx context.Context, userID string) error {
	start := p.now()
	defer func() {
		metrics.PipelineRunDuration.Observe(time.Since(start).Seconds())
	}()

	cctx, cancel := p.callCtx(ctx)
	cred, err := p.creds.Get(cctx, userID)
	cancel()
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("load credentials: %w", err)
	}
	if cred == nil || !cred.AgentActive {
		metrics.PipelineRuns.WithLabelValues("inactive").Inc()
		return nil
	}

	cctx, cancel = p.callCtx(ctx)
	messages, err := p.mail.ListUnseen(cctx, userID, p.cfg.Query, p.cfg.BatchSize)
	cancel()
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("list unseen messages: %w", err)
	}
	if len(messages) == 0 {
		metrics.PipelineRuns.WithLabelValues("processed").Inc()
		return nil
	}

	index, err := p.loadIndex(ctx, userID)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("load email log: %w", err)
	}

	var decided int
	for _, msg := range messages {
		outcome := p.processEmail(ctx, userID, cred, msg, index)
		metrics.EmailsProcessed.WithLabelValues(outcome).Inc()
		if outcome == outcomeDecided {
			decided++
		}
	}

	log.Printf("[Pipeline] User %s: %d listed, %d decided", userID, len(messages), decided)
	metrics.PipelineRuns.WithLabelValues("processed").Inc()
	return nil
}

// loadIndex reads the latest log row per message once per run
func (p *Pipeline) loadIndex(ctx context.Context, userID string) (map[string]*domain.EmailLog, error) {
	cctx, cancel := p.callCtx(ctx)
	defer cancel()
	index, err := p.sink.LatestByMessage(cctx, userID)
	if err != nil {
		return nil, err
	}
	if index == nil {
		index = make(map[string]*domain.EmailLog)
	}
	return index, nil
}

// alreadyProcessed reports whether any row exists for the message,
// unless the latest row is a reply/star attempt stuck in pending
func (p *Pipeline) alreadyProcessed(index map[string]*domain.EmailLog, messageID string) bool {
	latest, ok := index[messageID]
	if !ok {
		return false
	}
	if latest.IsStalePending(p.now(), p.cfg.PendingRetryAfter) {
		log.Printf("[Pipeline] Retrying message %s stuck in pending since %s", messageID, latest.CreatedAt.Format(time.RFC3339))
		return false
	}
	return true
}

// processEmail handles one message and reports its outcome. It never panics or returns an error.
func (p *Pipeline) processEmail(ctx context.Context, userID string, cred *domain.Credential, msg *RawMessage, index map[string]*domain.EmailLog) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Pipeline] Recovered while processing message %s for user %s: %v", msg.ID, userID, r)
			outcome = outcomeError
		}
	}()

	if p.alreadyProcessed(index, msg.ID) {
		return outcomeSkipped
	}

	email, err := p.mail.Extract(msg)
	if err != nil {
		log.Printf("[Pipeline] Failed to extract message %s: %v", msg.ID, err)
		return outcomeError
	}

	cctx, cancel := p.callCtx(ctx)
	classification, err := p.classifier.Classify(cctx, userID, email.Body)
	cancel()
	if err != nil {
		log.Printf("[Pipeline] Failed to classify message %s: %v", msg.ID, err)
		return outcomeError
	}
	action, err := domain.ParseAction(string(classification.Action))
	if err != nil {
		log.Printf("[Pipeline] Rejected classification for message %s: %v", msg.ID, err)
		return outcomeError
	}
	classification.Action = action
	classification.Confidence = domain.ClampConfidence(classification.Confidence)
	metrics.ClassificationConfidence.WithLabelValues(string(action)).Observe(classification.Confidence)

	pending, err := p.appendLog(ctx, &domain.EmailLog{
		UserID:    userID,
		MessageID: msg.ID,
		FromEmail: email.From,
		Subject:   email.Subject,
		Action:    action,
		Status:    domain.LogStatusPending,
	})
	if err != nil {
		log.Printf("[Pipeline] Failed to record pending %s for message %s: %v", action, msg.ID, err)
		return outcomeError
	}
	index[msg.ID] = pending

	job := &emailJob{
		userID:         userID,
		cred:           cred,
		message:        msg,
		email:          email,
		classification: classification,
	}
	handler, ok := p.handlers[action]
	if !ok {
		log.Printf("[Pipeline] No handler for action %s", action)
		return outcomeError
	}
	status, terminal := handler.Handle(ctx, job)
	if terminal != nil {
		index[msg.ID] = terminal
	}
	metrics.ActionsDispatched.WithLabelValues(string(action), string(status)).Inc()

	_, err = p.appendActivity(ctx, &domain.Activity{
		UserID:      userID,
		Type:        action.ActivityType(),
		Description: describeActivity(action, status, email),
		Metadata: domain.JSONMap{
			"from":       email.From,
			"subject":    email.Subject,
			"action":     string(action),
			"confidence": classification.Confidence,
			"reasoning":  classification.Reasoning,
			"status":     string(status),
			"message_id": msg.ID,
		},
	})
	if err != nil {
		log.Printf("[Pipeline] Failed to record activity for message %s: %v", msg.ID, err)
		return outcomeError
	}

	return outcomeDecided
}

func (p *Pipeline) appendLog(ctx context.Context, entry *domain.EmailLog) (*domain.EmailLog, error) {
	cctx, cancel := p.callCtx(ctx)
	defer cancel()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = p.now()
	}
	return p.sink.AppendLog(cctx, entry)
}

func (p *Pipeline) appendActivity(ctx context.Context, activity *domain.Activity) (*domain.Activity, error) {
	cctx, cancel := p.callCtx(ctx)
	defer cancel()
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = p.now()
	}
	return p.sink.AppendActivity(cctx, activity)
}

func describeActivity(action domain.Action, status domain.LogStatus, email *ExtractedEmail) string {
	switch action {
	case domain.ActionReply:
		if status == domain.LogStatusFailed {
			return fmt.Sprintf("Failed to reply to %s: %s", email.From, email.Subject)
		}
		return fmt.Sprintf("Replied to %s: %s", email.From, email.Subject)
	case domain.ActionStar:
		if status == domain.LogStatusFailed {
			return fmt.Sprintf("Failed to star email from %s: %s", email.From, email.Subject)
		}
		return fmt.Sprintf("Starred email from %s: %s", email.From, email.Subject)
	default:
		return fmt.Sprintf("Ignored email from %s: %s", email.From, email.Subject)
	}
}
