// Package reminder announces pending tasks shortly before and when they are due.
package reminder

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/config"
	"github.com/kozaktomas/companion/internal/constants"
	"github.com/kozaktomas/companion/internal/database"
	"github.com/kozaktomas/companion/internal/metrics"
)

// Speaker is the part of the notifier the scheduler uses.
type Speaker interface {
	Speak(text string) bool
	Enabled() bool
}

// Options controls when reminders fire.
type Options struct {
	Enabled          bool
	LeadMinutes      int           // upcoming reminder window
	PollInterval     time.Duration // how often the scheduler wakes up
	MinCheckInterval time.Duration // evaluations are at least this far apart
}

func DefaultOptions() Options {
	return Options{
		Enabled:          true,
		LeadMinutes:      constants.ReminderLeadMinutes,
		PollInterval:     constants.ReminderPollInterval,
		MinCheckInterval: constants.ReminderMinCheckInterval,
	}
}

// OptionsFromConfig applies the configured lead time and poll cadence to the defaults.
func OptionsFromConfig(cfg config.ReminderConfig) Options {
	opts := DefaultOptions()
	if cfg.LeadMinutes > 0 {
		opts.LeadMinutes = cfg.LeadMinutes
	}
	if cfg.PollInterval > 0 {
		opts.PollInterval = cfg.PollInterval
	}
	return opts
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.LeadMinutes <= 0 {
		o.LeadMinutes = d.LeadMinutes
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.MinCheckInterval <= 0 {
		o.MinCheckInterval = d.MinCheckInterval
	}
	return o
}

// Scheduler reminds each pending task at most once per pending period. The
// memo of reminded task IDs is pruned whenever a task disappears from the
// list or stops being pending.
type Scheduler struct {
	speaker Speaker
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	opts      Options
	tasks     []database.Task
	memo      map[string]struct{}
	lastCheck time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewScheduler(speaker Speaker, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		speaker: speaker,
		logger:  logger,
		now:     time.Now,
		opts:    DefaultOptions(),
		memo:    make(map[string]struct{}),
	}
}

// Start replaces the task list and options, evaluates once right away and
// then polls. A running scheduler is restarted.
func (s *Scheduler) Start(tasks []database.Task, opts Options) {
	s.Stop()

	opts = opts.withDefaults()

	s.mu.Lock()
	s.opts = opts
	s.tasks = tasks
	s.pruneLocked()
	if !opts.Enabled {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.evaluateLocked(true)
	done := s.done
	s.mu.Unlock()

	go s.run(ctx, opts.PollInterval, done)
	s.logger.Info("reminders started",
		zap.Int("tasks", len(tasks)),
		zap.Int("lead_minutes", opts.LeadMinutes))
}

// Stop halts polling. The memo is kept.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("reminders stopped")
}

// Running reports whether the scheduler is polling.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check()
		}
	}
}

// UpdateTasks replaces the task list and prunes the memo.
func (s *Scheduler) UpdateTasks(tasks []database.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = tasks
	s.pruneLocked()
}

// Check evaluates the task list unless the last evaluation was less than
// MinCheckInterval ago. It reports whether an evaluation ran.
func (s *Scheduler) Check() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluateLocked(false)
}

func (s *Scheduler) evaluateLocked(force bool) bool {
	if !s.opts.Enabled || !s.speaker.Enabled() {
		return false
	}
	now := s.now()
	if !force && now.Sub(s.lastCheck) < s.opts.MinCheckInterval {
		return false
	}
	s.lastCheck = now

	for _, task := range s.tasks {
		if !task.IsPending() {
			continue
		}
		if _, done := s.memo[task.ID]; done {
			continue
		}

		minutes := minutesUntil(task.ScheduledTime, now)
		switch {
		case minutes <= 0 && minutes >= -constants.ReminderOverdueMinutes:
			s.fire(task, "due", dueMessage(task))
		case minutes > 0 && minutes <= s.opts.LeadMinutes:
			s.fire(task, "upcoming", upcomingMessage(task, minutes))
		}
	}

	s.pruneLocked()
	return true
}

func (s *Scheduler) fire(task database.Task, kind, message string) {
	s.logger.Info("task reminder", zap.String("task_id", task.ID), zap.String("kind", kind))
	s.speaker.Speak(message)
	s.memo[task.ID] = struct{}{}
	metrics.RemindersFiredTotal.WithLabelValues(kind).Inc()
}

// pruneLocked drops memo entries whose task is gone or no longer pending.
func (s *Scheduler) pruneLocked() {
	pending := make(map[string]struct{}, len(s.tasks))
	for _, t := range s.tasks {
		if t.IsPending() {
			pending[t.ID] = struct{}{}
		}
	}
	for id := range s.memo {
		if _, ok := pending[id]; !ok {
			delete(s.memo, id)
		}
	}
	metrics.ReminderMemoSize.Set(float64(len(s.memo)))
}

// RemindNow announces a task on demand. It does not touch the memo.
func (s *Scheduler) RemindNow(task database.Task) bool {
	if !s.speaker.Enabled() {
		return false
	}
	metrics.RemindersFiredTotal.WithLabelValues("manual").Inc()
	return s.speaker.Speak(manualMessage(task))
}

// Reset forgets every reminded task so they can fire again.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.memo)
	metrics.ReminderMemoSize.Set(0)
}

// Memo returns the IDs of tasks already reminded.
func (s *Scheduler) Memo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.memo))
	for id := range s.memo {
		ids = append(ids, id)
	}
	return ids
}

// minutesUntil floors toward negative infinity, so 30 seconds overdue is -1.
func minutesUntil(scheduled, now time.Time) int {
	return int(math.Floor(scheduled.Sub(now).Minutes()))
}

func atLocation(task database.Task) string {
	if task.Location == "" {
		return ""
	}
	return " at " + task.Location
}

func dueMessage(task database.Task) string {
	return fmt.Sprintf("Reminder: it's time for %s%s.", task.Name, atLocation(task))
}

func upcomingMessage(task database.Task, minutes int) string {
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("Reminder: %s is coming up in %d %s%s.", task.Name, minutes, unit, atLocation(task))
}

func manualMessage(task database.Task) string {
	return fmt.Sprintf("Reminder: %s%s.", task.Name, atLocation(task))
}
