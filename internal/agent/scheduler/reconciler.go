package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"mailagent-backend/internal/agent/domain"
)

const (
	// DefaultReconcileInterval is how often persisted AgentActive flags are re-read
	DefaultReconcileInterval = time.Minute
	// WatchRenewInterval re-registers Gmail push well before the 7-day expiry
	WatchRenewInterval = 24 * time.Hour

	reconcileTimeout = 30 * time.Second
)

// ActiveSource lists credentials whose agent is switched on
type ActiveSource interface {
	ListActive(ctx context.Context) ([]*domain.Credential, error)
}

// Watcher registers and clears push notifications for a user's mailbox
type Watcher interface {
	Watch(ctx context.Context, userID string) error
	Unwatch(ctx context.Context, userID string) error
}

// Reconciler keeps the Monitor in line with the persisted AgentActive flags
type Reconciler struct {
	monitor  *Monitor
	source   ActiveSource
	watcher  Watcher // optional
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastWatch map[string]time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewReconciler creates a reconciler; watcher may be nil when push is not configured
func NewReconciler(monitor *Monitor, source ActiveSource, watcher Watcher, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{
		monitor:   monitor,
		source:    source,
		watcher:   watcher,
		interval:  interval,
		now:       time.Now,
		lastWatch: make(map[string]time.Time),
		stopChan:  make(chan struct{}),
	}
}

// Start begins the reconcile loop, reconciling once immediately
func (r *Reconciler) Start() {
	log.Printf("[Reconciler] Starting (interval: %s)", r.interval)

	go func() {
		r.reconcileOnce()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.reconcileOnce()
			case <-r.stopChan:
				log.Println("[Reconciler] Stopped")
				return
			}
		}
	}()
}

// Stop ends the reconcile loop; monitors keep running
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

func (r *Reconciler) reconcileOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()
	if err := r.Reconcile(ctx); err != nil {
		log.Printf("[Reconciler] Reconcile failed: %v", err)
	}
}

// Reconcile starts monitors for active users that are not running and stops
// monitors for users that are no longer active
func (r *Reconciler) Reconcile(ctx context.Context) error {
	creds, err := r.source.ListActive(ctx)
	if err != nil {
		return err
	}

	want := make(map[string]bool, len(creds))
	var started, stopped int
	for _, cred := range creds {
		if !cred.AgentActive {
			continue
		}
		want[cred.UserID] = true
		if !r.monitor.IsActive(cred.UserID) {
			r.monitor.Start(cred.UserID)
			started++
		}
		r.renewWatch(ctx, cred.UserID)
	}

	for _, userID := range r.monitor.ActiveUsers() {
		if !want[userID] {
			r.monitor.Stop(userID)
			r.clearWatch(ctx, userID)
			stopped++
		}
	}

	if started > 0 || stopped > 0 {
		log.Printf("[Reconciler] Started %d, stopped %d monitors (%d active)", started, stopped, len(want))
	}
	return nil
}

func (r *Reconciler) renewWatch(ctx context.Context, userID string) {
	if r.watcher == nil {
		return
	}

	r.mu.Lock()
	last, ok := r.lastWatch[userID]
	r.mu.Unlock()
	if ok && r.now().Sub(last) < WatchRenewInterval {
		return
	}

	if err := r.watcher.Watch(ctx, userID); err != nil {
		log.Printf("[Reconciler] Failed to watch mailbox for user %s: %v", userID, err)
		return
	}

	r.mu.Lock()
	r.lastWatch[userID] = r.now()
	r.mu.Unlock()
}

// clearWatch stops push for a user this reconciler registered
func (r *Reconciler) clearWatch(ctx context.Context, userID string) {
	r.mu.Lock()
	_, watched := r.lastWatch[userID]
	delete(r.lastWatch, userID)
	r.mu.Unlock()

	if r.watcher == nil || !watched {
		return
	}
	if err := r.watcher.Unwatch(ctx, userID); err != nil {
		log.Printf("[Reconciler] Failed to stop mailbox watch for user %s: %v", userID, err)
	}
}
