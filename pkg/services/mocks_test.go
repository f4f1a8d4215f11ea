package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/sources"
)

// Mock task store

type mockStore struct {
	mu             sync.Mutex
	tasks          map[int64]*data.Task
	nextID         int64
	failStatus     map[int64]bool
	failDelete     map[int64]bool
	progressWrites int
}

func newMockStore() *mockStore {
	return &mockStore{
		tasks:      make(map[int64]*data.Task),
		failStatus: make(map[int64]bool),
		failDelete: make(map[int64]bool),
	}
}

func copyTask(t *data.Task) *data.Task {
	c := *t
	c.Errors = append([]string(nil), t.Errors...)
	return &c
}

func (m *mockStore) CreateTask(_ context.Context, t *data.Task) (*data.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := copyTask(t)
	c.ID = m.nextID
	m.tasks[c.ID] = c
	return copyTask(c), nil
}

func (m *mockStore) GetTask(_ context.Context, id int64) (*data.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, data.ErrTaskNotFound
	}
	return copyTask(t), nil
}

func (m *mockStore) ListTasks(_ context.Context) ([]*data.TaskSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*data.TaskSummary
	for _, t := range m.tasks {
		s := t.Summary()
		out = append(out, &s)
	}
	return out, nil
}

func (m *mockStore) FindTasks(_ context.Context, kind data.Kind, url string) ([]*data.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*data.Task
	for _, t := range m.tasks {
		if t.Kind == kind && t.URL == url {
			out = append(out, copyTask(t))
		}
	}
	return out, nil
}

func (m *mockStore) UpdateStatus(_ context.Context, id int64, status data.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStatus[id] {
		return &data.PersistenceError{Op: "update status", TaskID: id, Err: errors.New("disk full")}
	}
	t, ok := m.tasks[id]
	if !ok {
		return data.ErrTaskNotFound
	}
	t.Status = status
	return nil
}

func (m *mockStore) UpdateProgress(_ context.Context, id int64, cp data.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return data.ErrTaskNotFound
	}
	m.progressWrites++
	t.Progress = cp.Progress
	t.DoneCount = cp.DoneCount
	t.Descriptor = cp.Descriptor
	return nil
}

func (m *mockStore) FinalizeTask(_ context.Context, id int64, cp data.Checkpoint, errs []string, status data.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return data.ErrTaskNotFound
	}
	t.Progress = cp.Progress
	t.DoneCount = cp.DoneCount
	t.Descriptor = cp.Descriptor
	t.Errors = append([]string(nil), errs...)
	t.Status = status
	t.Done = status == data.StatusFinished
	return nil
}

func (m *mockStore) DeleteTask(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete[id] {
		return &data.PersistenceError{Op: "delete", TaskID: id, Err: errors.New("locked")}
	}
	if _, ok := m.tasks[id]; !ok {
		return data.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *mockStore) task(id int64) *data.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		return copyTask(t)
	}
	return nil
}

// seed inserts n tasks with the given status and one-item descriptors.
func (m *mockStore) seed(t *testing.T, n int, status data.TaskStatus) []int64 {
	t.Helper()
	var ids []int64
	for i := 0; i < n; i++ {
		created, err := m.CreateTask(context.Background(), &data.Task{
			Kind:       data.KindChapters,
			Status:     status,
			URL:        fmt.Sprintf("https://example.com/comic/%d", i),
			ComicName:  fmt.Sprintf("Comic %d", i),
			Progress:   "0.00",
			TotalCount: 2,
			Descriptor: `{"categories":[]}`,
		})
		if err != nil {
			t.Fatalf("seed task: %v", err)
		}
		ids = append(ids, created.ID)
	}
	return ids
}

// Mock runner: holds every run until released or stopped.

type mockRunner struct {
	mu      sync.Mutex
	running int
	peak    int
	runs    map[int64]int
	order   []int64
	release chan struct{}
}

func newMockRunner() *mockRunner {
	return &mockRunner{runs: make(map[int64]int), release: make(chan struct{})}
}

func (m *mockRunner) Run(_ context.Context, id int64, stop *StopFlag, report ProgressFunc) Outcome {
	m.mu.Lock()
	m.running++
	m.peak = max(m.peak, m.running)
	m.runs[id]++
	m.order = append(m.order, id)
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running--
		m.mu.Unlock()
	}()

	half := data.Checkpoint{Progress: "50.00", DoneCount: 1}
	report(half, 2, nil)
	for {
		if stop.Raised() {
			return Outcome{Status: data.StatusStopped, Checkpoint: half, Total: 2}
		}
		select {
		case <-m.release:
			return Outcome{Status: data.StatusFinished, Checkpoint: data.Checkpoint{Progress: "100.00", DoneCount: 2}, Total: 2}
		case <-time.After(time.Millisecond):
		}
	}
}

func (m *mockRunner) runCount(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

func (m *mockRunner) snapshot() (peak int, order []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak, append([]int64(nil), m.order...)
}

// Mock source routing

type mockResolver struct {
	mu      sync.Mutex
	listing data.Listing
	err     error
	calls   int
}

func (m *mockResolver) Name() string   { return "mock" }
func (m *mockResolver) Domain() string { return "example.com" }

func (m *mockResolver) Resolve(_ context.Context, _ string, _ data.Kind) (data.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.listing, m.err
}

type mockRouter struct {
	resolver sources.Resolver
	err      error
}

func (m *mockRouter) Route(string) (sources.Resolver, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.resolver, nil
}

// Image server

func createTestPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 16, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

type imageServer struct {
	*httptest.Server

	mu      sync.Mutex
	hits    map[string]int
	total   int
	hang    map[string]bool // never answers in time
	garbage map[string]bool // answers with something that is not an image
	onHit   func(total int) // runs before the response is written
}

func newImageServer(t *testing.T) *imageServer {
	t.Helper()
	s := &imageServer{
		hits:    make(map[string]int),
		hang:    make(map[string]bool),
		garbage: make(map[string]bool),
	}
	pngData := createTestPNG()
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.total++
		total := s.total
		hang := s.hang[r.URL.Path]
		garbage := s.garbage[r.URL.Path]
		onHit := s.onHit
		s.mu.Unlock()

		if onHit != nil {
			onHit(total)
		}
		if hang {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		if garbage {
			w.Write([]byte("<html>rate limited</html>"))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngData)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *imageServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *imageServer) requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// testDescriptor builds one "chapters" category of groups x perGroup
// items served by srv, with the first preDone items already done.
func testDescriptor(srv string, groups, perGroup, preDone int) *data.Descriptor {
	cat := data.Category{Label: string(data.KindChapters)}
	n := 0
	for g := 0; g < groups; g++ {
		group := data.Group{Name: fmt.Sprintf("Chapter %d", g+1), Count: perGroup}
		for i := 0; i < perGroup; i++ {
			group.Items = append(group.Items, data.Item{
				Src:  fmt.Sprintf("%s/img/%d.png", srv, n),
				Done: n < preDone,
			})
			n++
		}
		group.Refresh()
		cat.Groups = append(cat.Groups, group)
	}
	return &data.Descriptor{Categories: []data.Category{cat}}
}
