package services

import (
	"sync"

	"github.com/kerbaras/comicdl/pkg/data"
)

// ProgressEvent reports the state of one task after a status change or a
// progress checkpoint.
type ProgressEvent struct {
	TaskID     int64           `json:"task_id"`
	Status     data.TaskStatus `json:"status"`
	Progress   string          `json:"progress"`
	TotalCount int             `json:"total_count"`
	DoneCount  int             `json:"done_count"`
	Errors     []string        `json:"errors"`
	Deleted    bool            `json:"deleted,omitempty"`
}

func eventFor(s data.TaskSummary) ProgressEvent {
	return ProgressEvent{
		TaskID:     s.ID,
		Status:     s.Status,
		Progress:   s.Progress,
		TotalCount: s.TotalCount,
		DoneCount:  s.DoneCount,
		Errors:     append([]string{}, s.Errors...),
	}
}

// Broadcaster fans progress events out to subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the update.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan ProgressEvent
	next   int
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan ProgressEvent)}
}

// Subscribe returns a channel of events and a func that unsubscribes and
// closes it.
func (b *Broadcaster) Subscribe(buffer int) (<-chan ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan ProgressEvent, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *Broadcaster) Publish(ev ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind, skip this update
		}
	}
}

// Close closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
