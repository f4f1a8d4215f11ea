package services

import (
	"context"

	"github.com/kerbaras/comicdl/pkg/data"
)

// TaskStore is the persistence the engine needs; *data.Repository
// implements it.
type TaskStore interface {
	CreateTask(ctx context.Context, t *data.Task) (*data.Task, error)
	GetTask(ctx context.Context, id int64) (*data.Task, error)
	ListTasks(ctx context.Context) ([]*data.TaskSummary, error)
	FindTasks(ctx context.Context, kind data.Kind, url string) ([]*data.Task, error)
	UpdateStatus(ctx context.Context, id int64, status data.TaskStatus) error
	UpdateProgress(ctx context.Context, id int64, cp data.Checkpoint) error
	FinalizeTask(ctx context.Context, id int64, cp data.Checkpoint, errs []string, status data.TaskStatus) error
	DeleteTask(ctx context.Context, id int64) error
}

var _ TaskStore = (*data.Repository)(nil)
