package usecase

import (
	"context"
	"errors"
	"sync"

	"mailagent-backend/internal/agent/domain"
)

type fakeCredentialStore struct {
	mu      sync.Mutex
	creds   map[string]*domain.Credential
	gets    int
	upserts int
}

func newFakeCredentialStore(creds ...*domain.Credential) *fakeCredentialStore {
	s := &fakeCredentialStore{creds: map[string]*domain.Credential{}}
	for _, c := range creds {
		s.creds[c.UserID] = c
	}
	return s
}

func (s *fakeCredentialStore) Get(ctx context.Context, userID string) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	c, ok := s.creds[userID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCredentialStore) Upsert(ctx context.Context, userID string, update domain.CredentialUpdate) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	c, ok := s.creds[userID]
	if !ok {
		c = &domain.Credential{UserID: userID}
		s.creds[userID] = c
	}
	update.Apply(c)
	cp := *c
	return &cp, nil
}

type fakeMailClient struct {
	mu        sync.Mutex
	messages  []*RawMessage
	emails    map[string]*ExtractedEmail
	listErr   error
	sendErr   error
	flagErr   error
	listCalls int
	extracts  int
	sent      []OutgoingReply
	flagged   []string
	lastQuery string
	lastMax   int
}

func newFakeMailClient() *fakeMailClient {
	return &fakeMailClient{emails: map[string]*ExtractedEmail{}}
}

// addMessage lists a message and registers what Extract returns for it
func (m *fakeMailClient) addMessage(email *ExtractedEmail) {
	m.messages = append(m.messages, &RawMessage{ID: email.ID, ThreadID: email.ThreadID})
	m.emails[email.ID] = email
}

func (m *fakeMailClient) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls + m.extracts + len(m.sent) + len(m.flagged)
}

func (m *fakeMailClient) ListUnseen(ctx context.Context, userID, query string, maxResults int) ([]*RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	m.lastQuery = query
	m.lastMax = maxResults
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.messages, nil
}

func (m *fakeMailClient) Extract(msg *RawMessage) (*ExtractedEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extracts++
	email, ok := m.emails[msg.ID]
	if !ok {
		return nil, errors.New("cannot parse message")
	}
	return email, nil
}

func (m *fakeMailClient) Send(ctx context.Context, userID string, reply OutgoingReply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, reply)
	return m.sendErr
}

func (m *fakeMailClient) Flag(ctx context.Context, userID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flagged = append(m.flagged, messageID)
	return m.flagErr
}

type fakeClassifier struct {
	mu            sync.Mutex
	byBody        map[string]*domain.Classification
	fallback      *domain.Classification
	classifyErr   error
	draft         string
	draftErr      error
	classifyCalls int
	draftRequests []ReplyDraftRequest
}

func newFakeClassifier() *fakeClassifier {
	return &fakeClassifier{
		byBody: map[string]*domain.Classification{},
		draft:  "Thanks for reaching out. My resume: https://example.com/cv.pdf",
	}
}

func (c *fakeClassifier) on(body string, action domain.Action, confidence float64) {
	c.byBody[body] = &domain.Classification{Action: action, Confidence: confidence, Reasoning: "test"}
}

func (c *fakeClassifier) Classify(ctx context.Context, userID, body string) (*domain.Classification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classifyCalls++
	if c.classifyErr != nil {
		return nil, c.classifyErr
	}
	if res, ok := c.byBody[body]; ok {
		cp := *res
		return &cp, nil
	}
	if c.fallback != nil {
		cp := *c.fallback
		return &cp, nil
	}
	return &domain.Classification{Action: domain.ActionIgnore, Confidence: 0.5}, nil
}

func (c *fakeClassifier) DraftReply(ctx context.Context, userID string, req ReplyDraftRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draftRequests = append(c.draftRequests, req)
	if c.draftErr != nil {
		return "", c.draftErr
	}
	return c.draft, nil
}

type fakeSink struct {
	mu         sync.Mutex
	logs       []*domain.EmailLog
	activities []*domain.Activity
	writes     int
	listErr    error
	appendErr  error
}

func (s *fakeSink) AppendLog(ctx context.Context, entry *domain.EmailLog) (*domain.EmailLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	s.writes++
	cp := *entry
	s.logs = append(s.logs, &cp)
	return &cp, nil
}

func (s *fakeSink) ListLogs(ctx context.Context, userID string, limit int) ([]*domain.EmailLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*domain.EmailLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].UserID == userID {
			out = append(out, s.logs[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeSink) LatestByMessage(ctx context.Context, userID string) (map[string]*domain.EmailLog, error) {
	logs, err := s.ListLogs(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	return domain.CurrentStatus(logs), nil
}

func (s *fakeSink) AppendActivity(ctx context.Context, activity *domain.Activity) (*domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	cp := *activity
	s.activities = append(s.activities, &cp)
	return &cp, nil
}

func (s *fakeSink) logsFor(messageID string) []*domain.EmailLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.EmailLog
	for _, l := range s.logs {
		if l.MessageID == messageID {
			out = append(out, l)
		}
	}
	return out
}
