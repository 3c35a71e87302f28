package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"mailagent-backend/internal/agent/domain"
	"mailagent-backend/internal/agent/repository"
	"mailagent-backend/internal/agent/usecase"
	"mailagent-backend/pkg/fcm"
)

const pushTimeout = 15 * time.Second

// Pusher delivers a notification to device tokens and returns the tokens that failed
type Pusher interface {
	SendToDevices(ctx context.Context, tokens []string, notification fcm.NotificationData) ([]string, error)
}

// ActivityNotifier is a LogSink that pushes new reply and star activity to the user's devices
type ActivityNotifier struct {
	usecase.LogSink
	tokens repository.DeviceTokenRepository
	pusher Pusher

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewActivityNotifier(sink usecase.LogSink, tokens repository.DeviceTokenRepository, pusher Pusher) *ActivityNotifier {
	return &ActivityNotifier{
		LogSink: sink,
		tokens:  tokens,
		pusher:  pusher,
	}
}

// AppendActivity stores the activity, then pushes it in the background.
// Push failures never fail the append.
func (n *ActivityNotifier) AppendActivity(ctx context.Context, activity *domain.Activity) (*domain.Activity, error) {
	saved, err := n.LogSink.AppendActivity(ctx, activity)
	if err != nil {
		return nil, err
	}
	if n.pusher == nil || saved.Type == domain.ActivityEmailIgnore {
		return saved, nil
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		log.Printf("[FCM] Notifier closed, not pushing activity %s", saved.ID)
		return saved, nil
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		n.push(pctx, saved)
	}()
	return saved, nil
}

// Wait blocks until background pushes finish
func (n *ActivityNotifier) Wait() {
	n.wg.Wait()
}

// Close stops new pushes and waits for the ones in flight.
// Activities appended afterwards are still stored.
func (n *ActivityNotifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *ActivityNotifier) push(ctx context.Context, activity *domain.Activity) {
	tokens, err := n.tokens.GetTokensByUserID(ctx, activity.UserID)
	if err != nil {
		log.Printf("[FCM] Error getting FCM tokens for user %s: %v", activity.UserID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	failedTokens, err := n.pusher.SendToDevices(ctx, tokenStrings, buildNotification(activity))
	if err != nil {
		log.Printf("[FCM] Error sending activity %s: %v", activity.ID, err)
		return
	}

	// Cleanup failed tokens
	for _, token := range failedTokens {
		if err := n.tokens.DeleteToken(ctx, token); err != nil {
			log.Printf("[FCM] Failed to delete stale token: %v", err)
		}
	}
}

func buildNotification(activity *domain.Activity) fcm.NotificationData {
	title := "Mail agent update"
	switch activity.Type {
	case domain.ActivityEmailReply:
		title = "Mail agent replied to an email"
	case domain.ActivityEmailStar:
		title = "Mail agent starred an email"
	}

	data := map[string]string{
		"type":        string(activity.Type),
		"activity_id": activity.ID,
	}
	for _, key := range []string{"message_id", "status", "from"} {
		if v, ok := activity.Metadata[key]; ok {
			data[key] = fmt.Sprint(v)
		}
	}

	return fcm.NotificationData{
		Title: title,
		Body:  activity.Description,
		Data:  data,
		Link:  "/activity",
	}
}
