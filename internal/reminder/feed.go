package reminder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/constants"
	"github.com/kozaktomas/companion/internal/database"
)

// TaskFeed keeps the scheduler's task list in sync with storage.
type TaskFeed struct {
	tasks     database.TaskReader
	ownerID   string
	scheduler *Scheduler
	interval  time.Duration
	logger    *zap.Logger
}

func NewTaskFeed(tasks database.TaskReader, ownerID string, scheduler *Scheduler, interval time.Duration, logger *zap.Logger) *TaskFeed {
	if interval <= 0 {
		interval = constants.TaskRefreshInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskFeed{
		tasks:     tasks,
		ownerID:   ownerID,
		scheduler: scheduler,
		interval:  interval,
		logger:    logger,
	}
}

// Refresh loads the owner's tasks and hands them to the scheduler. On error
// the scheduler keeps its previous list.
func (f *TaskFeed) Refresh(ctx context.Context) ([]database.Task, error) {
	tasks, err := f.tasks.ListTasks(ctx, f.ownerID)
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}
	f.scheduler.UpdateTasks(tasks)
	return tasks, nil
}

// Run refreshes immediately and then every interval until ctx is done.
func (f *TaskFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		if _, err := f.Refresh(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("task refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
