package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"mailagent-backend/internal/agent/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "user-1"

type pipelineFixture struct {
	creds      *fakeCredentialStore
	mail       *fakeMailClient
	classifier *fakeClassifier
	sink       *fakeSink
	pipeline   *Pipeline
}

func newFixture(t *testing.T, cfg PipelineConfig, creds ...*domain.Credential) *pipelineFixture {
	t.Helper()
	if len(creds) == 0 {
		creds = []*domain.Credential{{
			UserID:              testUser,
			AgentActive:         true,
			AccessToken:         "access",
			ClassifierKey:       "key",
			PersonalDescription: "Backend engineer with 5 years of Go",
			ResumeLink:          "https://example.com/cv.pdf",
		}}
	}
	f := &pipelineFixture{
		creds:      newFakeCredentialStore(creds...),
		mail:       newFakeMailClient(),
		classifier: newFakeClassifier(),
		sink:       &fakeSink{},
	}
	f.pipeline = NewPipeline(f.creds, f.mail, f.classifier, f.sink, cfg)
	return f
}

func recruiterEmail() *ExtractedEmail {
	return &ExtractedEmail{
		ID:           "m1",
		ThreadID:     "t1",
		From:         "jane@example.com",
		FromName:     "Jane",
		Subject:      "Opportunity",
		Body:         "please send your resume",
		RFCMessageID: "<abc@example.com>",
	}
}

func TestProcessNewEmailsInactiveOrAbsentUser(t *testing.T) {
	ctx := context.Background()

	absent := newFixture(t, PipelineConfig{}, &domain.Credential{UserID: "someone-else", AgentActive: true})
	absent.mail.addMessage(recruiterEmail())
	require.NoError(t, absent.pipeline.ProcessNewEmails(ctx, testUser))
	assert.Equal(t, 0, absent.mail.calls())
	assert.Equal(t, 0, absent.sink.writes)

	inactive := newFixture(t, PipelineConfig{}, &domain.Credential{UserID: testUser, AgentActive: false, AccessToken: "a"})
	inactive.mail.addMessage(recruiterEmail())
	require.NoError(t, inactive.pipeline.ProcessNewEmails(ctx, testUser))
	assert.Equal(t, 0, inactive.mail.calls())
	assert.Equal(t, 0, inactive.sink.writes)
	assert.Equal(t, 0, inactive.classifier.classifyCalls)
}

func TestProcessNewEmailsUsesQueryAndBatchSize(t *testing.T) {
	f := newFixture(t, PipelineConfig{BatchSize: 3})

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))
	assert.Equal(t, DefaultQuery, f.mail.lastQuery)
	assert.Equal(t, 3, f.mail.lastMax)

	f = newFixture(t, PipelineConfig{})
	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))
	assert.Equal(t, DefaultBatchSize, f.mail.lastMax)
}

func TestReplySentScenario(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	f.mail.addMessage(recruiterEmail())
	f.classifier.on("please send your resume", domain.ActionReply, 0.9)

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

	rows := f.sink.logsFor("m1")
	require.Len(t, rows, 2)
	assert.Equal(t, domain.LogStatusPending, rows[0].Status)
	assert.Equal(t, domain.ActionReply, rows[0].Action)
	assert.Equal(t, domain.LogStatusSent, rows[1].Status)
	assert.Equal(t, domain.ActionReply, rows[1].Action)
	assert.NotEmpty(t, rows[1].ResponseText)

	require.Len(t, f.mail.sent, 1)
	sent := f.mail.sent[0]
	assert.Equal(t, "jane@example.com", sent.To)
	assert.Equal(t, "Re: Opportunity", sent.Subject)
	assert.Equal(t, "t1", sent.ThreadID)
	assert.Equal(t, "<abc@example.com>", sent.InReplyTo)
	assert.Equal(t, f.classifier.draft, sent.Body)

	require.Len(t, f.classifier.draftRequests, 1)
	assert.Equal(t, "Backend engineer with 5 years of Go", f.classifier.draftRequests[0].PersonalDescription)
	assert.Equal(t, "https://example.com/cv.pdf", f.classifier.draftRequests[0].ResumeLink)

	require.Len(t, f.sink.activities, 1)
	activity := f.sink.activities[0]
	assert.Equal(t, domain.ActivityEmailReply, activity.Type)
	assert.Equal(t, "jane@example.com", activity.Metadata["from"])
	assert.Equal(t, "Opportunity", activity.Metadata["subject"])
	assert.Equal(t, "reply", activity.Metadata["action"])
	assert.Equal(t, 0.9, activity.Metadata["confidence"])
	assert.Equal(t, "sent", activity.Metadata["status"])
}

func TestReplySendFailureScenario(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	f.mail.addMessage(recruiterEmail())
	f.mail.sendErr = errors.New("gmail: 500 backend error")
	f.classifier.on("please send your resume", domain.ActionReply, 0.9)

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

	rows := f.sink.logsFor("m1")
	require.Len(t, rows, 2)
	assert.Equal(t, domain.LogStatusPending, rows[0].Status)
	assert.Equal(t, domain.LogStatusFailed, rows[1].Status)
	assert.Equal(t, domain.ActionReply, rows[1].Action)
	assert.Equal(t, "Reply failed", rows[1].Subject)

	require.Len(t, f.sink.activities, 1)
	assert.Equal(t, domain.ActivityEmailReply, f.sink.activities[0].Type)
	assert.Equal(t, "failed", f.sink.activities[0].Metadata["status"])
}

func TestReplyDraftFailure(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	f.mail.addMessage(recruiterEmail())
	f.classifier.on("please send your resume", domain.ActionReply, 0.8)
	f.classifier.draftErr = errors.New("model unavailable")

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

	rows := f.sink.logsFor("m1")
	require.Len(t, rows, 2)
	assert.Equal(t, domain.LogStatusFailed, rows[1].Status)
	assert.Equal(t, "Reply failed", rows[1].Subject)
	assert.Empty(t, f.mail.sent)
	assert.Len(t, f.sink.activities, 1)
}

func TestReplyDefaultsProfileWhenEmpty(t *testing.T) {
	f := newFixture(t, PipelineConfig{}, &domain.Credential{UserID: testUser, AgentActive: true, AccessToken: "a"})
	f.mail.addMessage(recruiterEmail())
	f.classifier.on("please send your resume", domain.ActionReply, 0.9)

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

	require.Len(t, f.classifier.draftRequests, 1)
	assert.Equal(t, DefaultPersonalDescription, f.classifier.draftRequests[0].PersonalDescription)
	assert.Equal(t, DefaultResumeLink, f.classifier.draftRequests[0].ResumeLink)
}

func TestStarScenario(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	f.mail.addMessage(&ExtractedEmail{
		ID:      "m2",
		From:    "hr@example.com",
		Subject: "Next steps",
		Body:    "Congratulations, you're selected for the next round",
	})
	f.classifier.on("Congratulations, you're selected for the next round", domain.ActionStar, 0.95)

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

	assert.Equal(t, []string{"m2"}, f.mail.flagged)
	assert.Empty(t, f.mail.sent)

	rows := f.sink.logsFor("m2")
	require.Len(t, rows, 2)
	assert.Equal(t, domain.LogStatusPending, rows[0].Status)
	assert.Equal(t, domain.ActionStar, rows[1].Action)
	assert.Equal(t, domain.LogStatusSent, rows[1].Status)

	require.Len(t, f.sink.activities, 1)
	assert.Equal(t, domain.ActivityEmailStar, f.sink.activities[0].Type)
}

func TestStarSkipsAlreadyStarredMessage(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	f.mail.addMessage(&ExtractedEmail{ID: "m2", From: "hr@example.com", Subject: "Next steps", Body: "selected"})
	f.mail.messages[0].Starred = true
	f.classifier.on("selected", domain.ActionStar, 0.9)

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

	assert.Empty(t, f.mail.flagged)
	rows := f.sink.logsFor("m2")
	require.Len(t, rows, 2)
	assert.Equal(t, domain.LogStatusSent, rows[1].Status)
	require.Len(t, f.sink.activities, 1)
}

func TestStarFailure(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	f.mail.addMessage(&ExtractedEmail{ID: "m2", From: "hr@example.com", Subject: "Next steps", Body: "selected"})
	f.mail.flagErr = errors.New("gmail: 403 insufficient permission")
	f.classifier.on("selected", domain.ActionStar, 0.7)

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

	assert.Len(t, f.mail.flagged, 1)
	rows := f.sink.logsFor("m2")
	require.Len(t, rows, 2)
	assert.Equal(t, domain.LogStatusFailed, rows[1].Status)
	assert.Equal(t, "Star failed", rows[1].Subject)
	require.Len(t, f.sink.activities, 1)
	assert.Equal(t, domain.ActivityEmailStar, f.sink.activities[0].Type)
}

func TestIgnoreLeavesSinglePendingRow(t *testing.T) {
	f := newFixture(t, PipelineConfig{PendingRetryAfter: time.Nanosecond})
	f.mail.addMessage(&ExtractedEmail{ID: "m3", From: "news@example.com", Subject: "Weekly digest", Body: "newsletter"})
	f.classifier.on("newsletter", domain.ActionIgnore, 0.99)

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

	rows := f.sink.logsFor("m3")
	require.Len(t, rows, 1)
	assert.Equal(t, domain.LogStatusPending, rows[0].Status)
	assert.Empty(t, f.mail.sent)
	assert.Empty(t, f.mail.flagged)
	require.Len(t, f.sink.activities, 1)
	assert.Equal(t, domain.ActivityEmailIgnore, f.sink.activities[0].Type)

	// Ignore pending rows are terminal, even past the retry window
	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))
	assert.Len(t, f.sink.logsFor("m3"), 1)
	assert.Equal(t, 1, f.classifier.classifyCalls)
}

func TestConfidenceIsClamped(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	f.mail.addMessage(&ExtractedEmail{ID: "hi", From: "a@example.com", Body: "high"})
	f.mail.addMessage(&ExtractedEmail{ID: "lo", From: "b@example.com", Body: "low"})
	f.classifier.on("high", domain.ActionIgnore, 1.7)
	f.classifier.on("low", domain.ActionIgnore, -0.3)

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

	require.Len(t, f.sink.activities, 2)
	for _, a := range f.sink.activities {
		conf, ok := a.Metadata["confidence"].(float64)
		require.True(t, ok)
		assert.GreaterOrEqual(t, conf, 0.0)
		assert.LessOrEqual(t, conf, 1.0)
	}
	assert.Equal(t, 1.0, f.sink.activities[0].Metadata["confidence"])
	assert.Equal(t, 0.0, f.sink.activities[1].Metadata["confidence"])
}

func TestAlreadyLoggedMessagesProduceNoRows(t *testing.T) {
	for _, status := range []domain.LogStatus{domain.LogStatusPending, domain.LogStatusSent, domain.LogStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, PipelineConfig{})
			f.mail.addMessage(recruiterEmail())
			f.classifier.on("please send your resume", domain.ActionReply, 0.9)
			f.sink.logs = []*domain.EmailLog{{
				UserID: testUser, MessageID: "m1", Action: domain.ActionReply, Status: status, CreatedAt: time.Now(),
			}}

			require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

			assert.Len(t, f.sink.logs, 1)
			assert.Empty(t, f.sink.activities)
			assert.Equal(t, 0, f.classifier.classifyCalls)
			assert.Empty(t, f.mail.sent)
		})
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	f.mail.addMessage(recruiterEmail())
	f.classifier.on("please send your resume", domain.ActionReply, 0.9)

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))
	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

	assert.Len(t, f.sink.logs, 2)
	assert.Len(t, f.sink.activities, 1)
	assert.Len(t, f.mail.sent, 1)
}

func TestDuplicateListingInOneBatchProcessedOnce(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	f.mail.addMessage(recruiterEmail())
	f.mail.addMessage(recruiterEmail())
	f.classifier.on("please send your resume", domain.ActionReply, 0.9)

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

	assert.Len(t, f.mail.sent, 1)
	assert.Len(t, f.sink.activities, 1)
}

func TestStalePendingIsRetried(t *testing.T) {
	f := newFixture(t, PipelineConfig{PendingRetryAfter: time.Hour})
	f.mail.addMessage(recruiterEmail())
	f.classifier.on("please send your resume", domain.ActionReply, 0.9)
	f.sink.logs = []*domain.EmailLog{{
		UserID: testUser, MessageID: "m1", Action: domain.ActionReply,
		Status: domain.LogStatusPending, CreatedAt: time.Now().Add(-2 * time.Hour),
	}}

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

	rows := f.sink.logsFor("m1")
	require.Len(t, rows, 3)
	assert.Equal(t, domain.LogStatusSent, rows[2].Status)
	assert.Len(t, f.mail.sent, 1)
}

func TestRecentOrDisabledPendingIsNotRetried(t *testing.T) {
	for name, cfg := range map[string]PipelineConfig{
		"recent":   {PendingRetryAfter: 3 * time.Hour},
		"disabled": {PendingRetryAfter: 0},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, cfg)
			f.mail.addMessage(recruiterEmail())
			f.sink.logs = []*domain.EmailLog{{
				UserID: testUser, MessageID: "m1", Action: domain.ActionReply,
				Status: domain.LogStatusPending, CreatedAt: time.Now().Add(-2 * time.Hour),
			}}

			require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))
			assert.Len(t, f.sink.logs, 1)
			assert.Empty(t, f.mail.sent)
		})
	}
}

func TestUnknownActionIsNotLogged(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	f.mail.addMessage(recruiterEmail())
	f.classifier.on("please send your resume", domain.Action("archive"), 0.9)

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))
	assert.Empty(t, f.sink.logs)
	assert.Empty(t, f.sink.activities)

	// A later run with a valid decision processes the message
	f.classifier.on("please send your resume", domain.ActionStar, 0.6)
	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))
	assert.Len(t, f.sink.logsFor("m1"), 2)
}

func TestPerMessageFailuresAreIsolated(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	// Listed but not extractable
	f.mail.messages = append(f.mail.messages, &RawMessage{ID: "broken"})
	f.mail.addMessage(recruiterEmail())
	f.classifier.on("please send your resume", domain.ActionReply, 0.9)

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))

	assert.Empty(t, f.sink.logsFor("broken"))
	assert.Len(t, f.sink.logsFor("m1"), 2)
	assert.Len(t, f.mail.sent, 1)
}

func TestClassifierErrorSkipsMessage(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	f.mail.addMessage(recruiterEmail())
	f.classifier.classifyErr = domain.ErrClassifierKeyMissing

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))
	assert.Empty(t, f.sink.logs)
	assert.Empty(t, f.sink.activities)
}

func TestPendingWriteFailureSkipsDispatch(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	f.mail.addMessage(recruiterEmail())
	f.classifier.on("please send your resume", domain.ActionReply, 0.9)
	f.sink.appendErr = errors.New("database is down")

	require.NoError(t, f.pipeline.ProcessNewEmails(context.Background(), testUser))
	assert.Empty(t, f.mail.sent)
	assert.Empty(t, f.sink.activities)
}

func TestListOrHistoryErrorAbortsRun(t *testing.T) {
	f := newFixture(t, PipelineConfig{})
	f.mail.listErr = errors.New("token revoked")

	err := f.pipeline.ProcessNewEmails(context.Background(), testUser)
	require.Error(t, err)
	assert.Equal(t, 0, f.sink.writes)

	f = newFixture(t, PipelineConfig{})
	f.mail.addMessage(recruiterEmail())
	f.sink.listErr = errors.New("timeout")

	err = f.pipeline.ProcessNewEmails(context.Background(), testUser)
	require.Error(t, err)
	assert.Equal(t, 0, f.classifier.classifyCalls)
	assert.Equal(t, 0, f.sink.writes)
}

func TestCallTimeoutBoundsExternalCalls(t *testing.T) {
	f := newFixture(t, PipelineConfig{CallTimeout: 20 * time.Millisecond})
	f.mail.addMessage(recruiterEmail())

	blocking := &blockingClassifier{}
	f.pipeline.classifier = blocking

	done := make(chan error, 1)
	go func() { done <- f.pipeline.ProcessNewEmails(context.Background(), testUser) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline run did not honor the call timeout")
	}
	assert.Empty(t, f.sink.logs)
}

type blockingClassifier struct{}

func (blockingClassifier) Classify(ctx context.Context, userID, body string) (*domain.Classification, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingClassifier) DraftReply(ctx context.Context, userID string, req ReplyDraftRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestReplySubject(t *testing.T) {
	tests := map[string]string{
		"Opportunity":     "Re: Opportunity",
		"Re: Opportunity": "Re: Opportunity",
		"RE: Opportunity": "Re: RE: Opportunity",
		"re: Opportunity": "Re: re: Opportunity",
		"Re:Opportunity":  "Re: Re:Opportunity",
		"":                "Re: ",
	}
	for in, want := range tests {
		assert.Equal(t, want, ReplySubject(in), in)
	}
}
