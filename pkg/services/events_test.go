package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kerbaras/comicdl/pkg/data"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster()
	a, cancelA := b.Subscribe(1)
	c, cancelC := b.Subscribe(1)
	defer cancelC()

	b.Publish(ProgressEvent{TaskID: 1, Status: data.StatusDownloading})
	assert.Equal(t, int64(1), (<-a).TaskID)
	assert.Equal(t, int64(1), (<-c).TaskID)

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)

	b.Publish(ProgressEvent{TaskID: 2})
	assert.Equal(t, int64(2), (<-c).TaskID)
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(ProgressEvent{TaskID: 1})
	b.Publish(ProgressEvent{TaskID: 2})
	assert.Equal(t, int64(1), (<-ch).TaskID)
	assert.Len(t, ch, 0)
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(1)
	b.Close()
	b.Close()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	late, _ := b.Subscribe(1)
	_, open = <-late
	assert.False(t, open)
}

func TestEventForSummary(t *testing.T) {
	ev := eventFor(data.TaskSummary{ID: 3, Status: data.StatusFailed, Progress: "50.00", TotalCount: 4, DoneCount: 2, Errors: []string{"x"}})
	assert.Equal(t, ProgressEvent{TaskID: 3, Status: data.StatusFailed, Progress: "50.00", TotalCount: 4, DoneCount: 2, Errors: []string{"x"}}, ev)
}
