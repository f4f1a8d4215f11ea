package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/kerbaras/comicdl/pkg/data"
)

// Notifier is told when a task finishes or fails.
type Notifier interface {
	Notify(ctx context.Context, task data.TaskSummary) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, task data.TaskSummary) error

func (f NotifierFunc) Notify(ctx context.Context, task data.TaskSummary) error {
	return f(ctx, task)
}

// LogNotifier writes completion notices to the log.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, task data.TaskSummary) error {
	if task.Status == data.StatusFailed {
		n.logger.Warnw("Download failed", "task", task.ID, "comic", task.ComicName,
			"kind", task.Kind, "done", task.DoneCount, "total", task.TotalCount, "errors", len(task.Errors))
		return nil
	}
	n.logger.Infow("Download finished", "task", task.ID, "comic", task.ComicName,
		"kind", task.Kind, "path", task.LocalPath)
	return nil
}
