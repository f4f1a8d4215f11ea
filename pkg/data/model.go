package data

import (
	"fmt"
	"strconv"
)

// Kind is the listing type a task downloads.
type Kind string

const (
	KindVolumes  Kind = "volumes"
	KindChapters Kind = "chapters"
	KindExtras   Kind = "extras"
	KindCurrent  Kind = "current" // a single chapter page
	KindAll      Kind = "all"     // ingress only: one task per category
)

// CategoryKinds are the kinds that map one-to-one onto a descriptor category.
var CategoryKinds = []Kind{KindVolumes, KindChapters, KindExtras}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindVolumes, KindChapters, KindExtras, KindCurrent, KindAll:
		return k, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// IsCategory reports whether the kind selects one category of a comic page.
func (k Kind) IsCategory() bool {
	return k == KindVolumes || k == KindChapters || k == KindExtras
}

type TaskStatus string

const (
	StatusStopped     TaskStatus = "stopped"
	StatusWaiting     TaskStatus = "waiting"
	StatusDownloading TaskStatus = "downloading"
	StatusFinished    TaskStatus = "finished"
	StatusFailed      TaskStatus = "failed"
)

// Precedence orders statuses for display: active work first, finished last.
func (s TaskStatus) Precedence() int {
	switch s {
	case StatusDownloading:
		return 0
	case StatusWaiting:
		return 1
	case StatusStopped:
		return 2
	case StatusFailed:
		return 3
	case StatusFinished:
		return 4
	}
	return 5
}

// IsActive is true while a task holds or waits for an admission slot.
func (s TaskStatus) IsActive() bool {
	return s == StatusDownloading || s == StatusWaiting
}

// IsTerminal is true for statuses a run can end in.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusStopped
}

// Task is one persisted unit of download work.
type Task struct {
	ID         int64
	Kind       Kind
	Status     TaskStatus
	LocalPath  string // destination directory
	Descriptor string // encoded Descriptor, the resume state
	URL        string
	Author     string
	ComicName  string
	Progress   string // percentage text, e.g. "42.50"
	TotalCount int
	DoneCount  int
	Errors     []string
	Done       bool
}

// TaskSummary is a Task without its descriptor blob.
type TaskSummary struct {
	ID         int64
	Kind       Kind
	Status     TaskStatus
	LocalPath  string
	URL        string
	Author     string
	ComicName  string
	Progress   string
	TotalCount int
	DoneCount  int
	Errors     []string
	Done       bool
}

func (t *Task) Summary() TaskSummary {
	return TaskSummary{
		ID:         t.ID,
		Kind:       t.Kind,
		Status:     t.Status,
		LocalPath:  t.LocalPath,
		URL:        t.URL,
		Author:     t.Author,
		ComicName:  t.ComicName,
		Progress:   t.Progress,
		TotalCount: t.TotalCount,
		DoneCount:  t.DoneCount,
		Errors:     append([]string(nil), t.Errors...),
		Done:       t.Done,
	}
}

// Checkpoint is a progress snapshot written back to the store.
type Checkpoint struct {
	Progress   string
	DoneCount  int
	Descriptor string
}

// FormatProgress renders done/total as a percentage with two decimals.
func FormatProgress(done, total int) string {
	return strconv.FormatFloat(Percentage(done, total), 'f', 2, 64)
}

func Percentage(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}
