package scheduler

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"mailagent-backend/pkg/metrics"
)

// DefaultPollInterval is how often an active user's inbox is checked
const DefaultPollInterval = 5 * time.Minute

// Runner performs one processing pass for a user
type Runner interface {
	ProcessNewEmails(ctx context.Context, userID string) error
}

// monitorTask is the periodic task of one user
type monitorTask struct {
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{} // holds at most one pending on-demand run
}

// Monitor owns at most one polling task per user.
// Runs for the same user never overlap, including across restarts.
type Monitor struct {
	runner   Runner
	interval time.Duration

	mu       sync.Mutex
	tasks    map[string]*monitorTask
	runLocks map[string]*sync.Mutex

	wg sync.WaitGroup
}

// NewMonitor creates a monitor that runs the pipeline every interval per active user
func NewMonitor(runner Runner, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{
		runner:   runner,
		interval: interval,
		tasks:    make(map[string]*monitorTask),
		runLocks: make(map[string]*sync.Mutex),
	}
}

// Start (re)starts monitoring for a user and runs the pipeline right away
func (m *Monitor) Start(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transition := "start"
	if existing, ok := m.tasks[userID]; ok {
		existing.cancel()
		transition = "restart"
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &monitorTask{
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		trigger: make(chan struct{}, 1),
	}
	m.tasks[userID] = task

	m.wg.Add(1)
	go m.loop(userID, task)

	metrics.MonitorTransitions.WithLabelValues(transition).Inc()
	metrics.ActiveMonitors.Set(float64(len(m.tasks)))
	log.Printf("[Monitor] %s monitoring for user %s (interval: %s)", transition, userID, m.interval)
}

// Stop cancels future runs for a user. It is a no-op when the user is not monitored.
// A run already in progress finishes on its own.
func (m *Monitor) Stop(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[userID]
	if !ok {
		return
	}
	task.cancel()
	delete(m.tasks, userID)

	metrics.MonitorTransitions.WithLabelValues("stop").Inc()
	metrics.ActiveMonitors.Set(float64(len(m.tasks)))
	log.Printf("[Monitor] Stopped monitoring for user %s", userID)
}

// Trigger asks a monitored user's task for an extra run as soon as it is idle.
// Triggers arriving while one is already queued are merged.
// Returns false when the user has no active task.
func (m *Monitor) Trigger(userID string) bool {
	m.mu.Lock()
	task, ok := m.tasks[userID]
	m.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case task.trigger <- struct{}{}:
	default:
	}
	return true
}

// IsActive reports whether a user currently has a monitoring task
func (m *Monitor) IsActive(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[userID]
	return ok
}

// ActiveUsers returns the monitored user IDs in sorted order
func (m *Monitor) ActiveUsers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]string, 0, len(m.tasks))
	for userID := range m.tasks {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// StopAll stops every task and waits for in-flight runs until ctx is done
func (m *Monitor) StopAll(ctx context.Context) error {
	m.mu.Lock()
	for userID, task := range m.tasks {
		task.cancel()
		delete(m.tasks, userID)
	}
	metrics.ActiveMonitors.Set(0)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[Monitor] All monitors stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) loop(userID string, task *monitorTask) {
	defer m.wg.Done()
	defer close(task.done)

	// Run immediately on start
	m.run(task.ctx, userID)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.run(task.ctx, userID)
		case <-task.trigger:
			m.run(task.ctx, userID)
		case <-task.ctx.Done():
			return
		}
	}
}

func (m *Monitor) runLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.runLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.runLocks[userID] = lock
	}
	return lock
}

// run executes one pass under the user's run lock. A task cancelled while
// waiting for the lock skips its run; a started run is not interrupted.
func (m *Monitor) run(ctx context.Context, userID string) {
	lock := m.runLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if ctx.Err() != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Monitor] Recovered from panic in run for user %s: %v", userID, r)
		}
	}()

	if err := m.runner.ProcessNewEmails(context.WithoutCancel(ctx), userID); err != nil {
		log.Printf("[Monitor] Run failed for user %s: %v", userID, err)
	}
}
