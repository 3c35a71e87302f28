package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"mailagent-backend/internal/agent/domain"
	"mailagent-backend/pkg/metrics"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes on a mailbox change
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// UserResolver maps a mailbox address to its credential record
type UserResolver interface {
	FindByEmail(ctx context.Context, email string) (*domain.Credential, error)
}

// Trigger runs the pipeline now for a monitored user
type Trigger interface {
	Trigger(userID string) bool
}

// Push handling results reported to metrics
const (
	resultTriggered   = "triggered"
	resultDuplicate   = "duplicate"
	resultUnknownUser = "unknown_user"
	resultInactive    = "inactive"
	resultInvalid     = "invalid"
	resultError       = "error"
)

// Service turns Gmail push notifications into immediate pipeline runs
type Service struct {
	pubsubClient *pubsub.Client
	users        UserResolver
	trigger      Trigger
	topicName    string
	subName      string

	// Deduplication: track last historyId per user to avoid duplicate runs
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewService(ctx context.Context, projectID, topicName string, users UserResolver, trigger Trigger, credentialsFile string) (*Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	s := newService(users, trigger)
	s.pubsubClient = client
	s.topicName = topicName
	s.subName = topicName + "-sub" // Convention: topic-sub
	return s, nil
}

func newService(users UserResolver, trigger Trigger) *Service {
	return &Service{
		users:         users,
		trigger:       trigger,
		lastHistoryID: make(map[string]uint64),
	}
}

// Start ensures the subscription exists and blocks receiving until ctx is done
func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic %s does not exist, cannot create subscription", s.topicName)
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg.Data)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

// Close releases the Pub/Sub client
func (s *Service) Close() error {
	if s.pubsubClient == nil {
		return nil
	}
	return s.pubsubClient.Close()
}

func (s *Service) handleMessage(ctx context.Context, data []byte) string {
	result := s.dispatch(ctx, data)
	metrics.PushTriggers.WithLabelValues(result).Inc()
	return result
}

func (s *Service) dispatch(ctx context.Context, data []byte) string {
	var notification GmailNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return resultInvalid
	}

	cred, err := s.users.FindByEmail(ctx, notification.EmailAddress)
	if err != nil {
		log.Printf("[PubSub] Error finding user by email %s: %v", notification.EmailAddress, err)
		return resultError
	}
	if cred == nil {
		log.Printf("[PubSub] User not found for email: %s", notification.EmailAddress)
		return resultUnknownUser
	}
	if !cred.AgentActive {
		return resultInactive
	}

	s.mu.Lock()
	lastHID, exists := s.lastHistoryID[cred.UserID]
	if exists && notification.HistoryID <= lastHID {
		s.mu.Unlock()
		log.Printf("[PubSub] Skipping duplicate notification for user %s (historyId %d <= last %d)", cred.UserID, notification.HistoryID, lastHID)
		return resultDuplicate
	}
	s.lastHistoryID[cred.UserID] = notification.HistoryID
	s.mu.Unlock()

	if !s.trigger.Trigger(cred.UserID) {
		log.Printf("[PubSub] User %s has no running monitor, waiting for reconcile", cred.UserID)
		return resultInactive
	}
	log.Printf("[PubSub] Triggered run for user %s (historyId: %d)", cred.UserID, notification.HistoryID)
	return resultTriggered
}
