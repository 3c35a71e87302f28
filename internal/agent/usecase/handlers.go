package usecase

import (
	"context"
	"log"
	"strings"

	"mailagent-backend/internal/agent/domain"
)

const (
	DefaultPersonalDescription = "I am a professional open to new opportunities."
	DefaultResumeLink          = "Available on request"

	replyFailedSubject = "Reply failed"
	starFailedSubject  = "Star failed"
)

// emailJob is one classified message on its way to an action handler
type emailJob struct {
	userID         string
	cred           *domain.Credential
	message        *RawMessage
	email          *ExtractedEmail
	classification *domain.Classification
}

// actionHandler performs one action and records its terminal log row.
// It returns the resulting status and the terminal row, if one was written.
type actionHandler interface {
	Handle(ctx context.Context, job *emailJob) (domain.LogStatus, *domain.EmailLog)
}

// ReplySubject prefixes "Re: " unless the subject already starts with exactly that
func ReplySubject(subject string) string {
	if strings.HasPrefix(subject, "Re: ") {
		return subject
	}
	return "Re: " + subject
}

type replyHandler struct {
	p *Pipeline
}

func (h *replyHandler) Handle(ctx context.Context, job *emailJob) (domain.LogStatus, *domain.EmailLog) {
	description := job.cred.PersonalDescription
	if strings.TrimSpace(description) == "" {
		description = DefaultPersonalDescription
	}
	resumeLink := job.cred.ResumeLink
	if strings.TrimSpace(resumeLink) == "" {
		resumeLink = DefaultResumeLink
	}

	cctx, cancel := h.p.callCtx(ctx)
	text, err := h.p.classifier.DraftReply(cctx, job.userID, ReplyDraftRequest{
		FromEmail:           job.email.From,
		FromName:            job.email.FromName,
		Subject:             job.email.Subject,
		Body:                job.email.Body,
		PersonalDescription: description,
		ResumeLink:          resumeLink,
	})
	cancel()
	if err != nil {
		log.Printf("[ReplyHandler] Failed to draft reply to message %s: %v", job.email.ID, err)
		return h.fail(ctx, job)
	}

	subject := ReplySubject(job.email.Subject)
	cctx, cancel = h.p.callCtx(ctx)
	err = h.p.mail.Send(cctx, job.userID, OutgoingReply{
		To:         job.email.From,
		Subject:    subject,
		Body:       text,
		ThreadID:   job.email.ThreadID,
		InReplyTo:  job.email.RFCMessageID,
		References: job.email.References,
	})
	cancel()
	if err != nil {
		log.Printf("[ReplyHandler] Failed to send reply to message %s: %v", job.email.ID, err)
		return h.fail(ctx, job)
	}

	row, err := h.p.appendLog(ctx, &domain.EmailLog{
		UserID:       job.userID,
		MessageID:    job.message.ID,
		FromEmail:    job.email.From,
		Subject:      subject,
		Action:       domain.ActionReply,
		ResponseText: text,
		Status:       domain.LogStatusSent,
	})
	if err != nil {
		log.Printf("[ReplyHandler] Reply sent but not recorded for message %s: %v", job.email.ID, err)
	}
	return domain.LogStatusSent, row
}

func (h *replyHandler) fail(ctx context.Context, job *emailJob) (domain.LogStatus, *domain.EmailLog) {
	row, err := h.p.appendLog(ctx, &domain.EmailLog{
		UserID:    job.userID,
		MessageID: job.message.ID,
		FromEmail: job.email.From,
		Subject:   replyFailedSubject,
		Action:    domain.ActionReply,
		Status:    domain.LogStatusFailed,
	})
	if err != nil {
		log.Printf("[ReplyHandler] Failed to record failure for message %s: %v", job.email.ID, err)
	}
	return domain.LogStatusFailed, row
}

type starHandler struct {
	p *Pipeline
}

func (h *starHandler) Handle(ctx context.Context, job *emailJob) (domain.LogStatus, *domain.EmailLog) {
	entry := &domain.EmailLog{
		UserID:    job.userID,
		MessageID: job.message.ID,
		FromEmail: job.email.From,
		Subject:   job.email.Subject,
		Action:    domain.ActionStar,
		Status:    domain.LogStatusSent,
	}

	var err error
	if job.message.Starred {
		log.Printf("[StarHandler] Message %s is already starred", job.email.ID)
	} else {
		cctx, cancel := h.p.callCtx(ctx)
		err = h.p.mail.Flag(cctx, job.userID, job.message.ID)
		cancel()
	}
	if err != nil {
		log.Printf("[StarHandler] Failed to star message %s: %v", job.email.ID, err)
		entry.Status = domain.LogStatusFailed
		entry.Subject = starFailedSubject
	}

	row, err := h.p.appendLog(ctx, entry)
	if err != nil {
		log.Printf("[StarHandler] Failed to record %s star for message %s: %v", entry.Status, job.email.ID, err)
	}
	return entry.Status, row
}

// ignoreHandler takes no action; the pending row is the final record
type ignoreHandler struct{}

func (ignoreHandler) Handle(ctx context.Context, job *emailJob) (domain.LogStatus, *domain.EmailLog) {
	return domain.LogStatusPending, nil
}
