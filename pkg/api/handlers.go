package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/services"
)

// Engine is the part of the controller the API exposes.
type Engine interface {
	Add(ctx context.Context, req services.AddRequest) (*services.AddResult, error)
	Start(ctx context.Context, id int64) error
	Pause(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	StartAll(ctx context.Context) int
	PauseAll(ctx context.Context) int
	PauseWaiting(ctx context.Context) int
	DeleteAll(ctx context.Context) int
	List() []data.TaskSummary
	Get(id int64) (data.TaskSummary, error)
	Subscribe(buffer int) (<-chan services.ProgressEvent, func())
	Export(ctx context.Context, id int64, outDir string) (string, error)
}

var _ Engine = (*services.Controller)(nil)

type Task struct {
	ID         int64           `json:"id"`
	Kind       data.Kind       `json:"kind"`
	Status     data.TaskStatus `json:"status"`
	URL        string          `json:"url"`
	Author     string          `json:"author,omitempty"`
	ComicName  string          `json:"comic_name"`
	LocalPath  string          `json:"local_path"`
	Progress   string          `json:"progress"`
	TotalCount int             `json:"total_count"`
	DoneCount  int             `json:"done_count"`
	Errors     []string        `json:"errors"`
	Done       bool            `json:"done"`
}

func taskView(s data.TaskSummary) Task {
	errs := s.Errors
	if errs == nil {
		errs = []string{}
	}
	return Task{
		ID:         s.ID,
		Kind:       s.Kind,
		Status:     s.Status,
		URL:        s.URL,
		Author:     s.Author,
		ComicName:  s.ComicName,
		LocalPath:  s.LocalPath,
		Progress:   s.Progress,
		TotalCount: s.TotalCount,
		DoneCount:  s.DoneCount,
		Errors:     errs,
		Done:       s.Done,
	}
}

type AddTaskRequest struct {
	URL          string `json:"url"`
	Kind         string `json:"kind"`
	Author       string `json:"author"`
	AllowPartial bool   `json:"allow_partial"`
	Start        bool   `json:"start"`
}

type AddTaskResponse struct {
	Created  []Task `json:"created"`
	Existing []Task   `json:"existing"`
	Skipped  []string `json:"skipped"`
}

type CountResponse struct {
	Affected int `json:"affected"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Handlers struct {
	engine Engine
	logger *zap.SugaredLogger
}

func NewHandlers(engine Engine, logger *zap.SugaredLogger) *Handlers {
	return &Handlers{engine: engine, logger: logger.With("component", "api")}
}

// WithTaskHandlers registers the task routes.
func WithTaskHandlers(h *Handlers) RouterOption {
	return func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.AddTask)
			r.Delete("/", h.DeleteAll)
			r.Post("/start-all", h.StartAll)
			r.Post("/pause-all", h.PauseAll)
			r.Post("/pause-waiting", h.PauseWaiting)

			r.Route("/{task_id}", func(r chi.Router) {
				r.Get("/", h.GetTask)
				r.Delete("/", h.DeleteTask)
				r.Post("/start", h.StartTask)
				r.Post("/pause", h.PauseTask)
				r.Post("/export", h.ExportTask)
			})
		})
		r.Get("/events", h.Events)
	}
}

func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.engine.List()
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskView(t))
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handlers) AddTask(w http.ResponseWriter, r *http.Request) {
	var req AddTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		h.fail(w, errors.New("url is required"), http.StatusBadRequest)
		return
	}
	kind := data.KindAll
	if req.Kind != "" {
		k, err := data.ParseKind(req.Kind)
		if err != nil {
			h.fail(w, err, http.StatusBadRequest)
			return
		}
		kind = k
	}

	res, err := h.engine.Add(r.Context(), services.AddRequest{
		URL:          req.URL,
		Kind:         kind,
		Author:       req.Author,
		AllowPartial: req.AllowPartial,
		Start:        req.Start,
	})
	if err != nil {
		h.fail(w, err, statusFor(err))
		return
	}

	out := AddTaskResponse{Created: []Task{}, Existing: []Task{}, Skipped: append([]string{}, res.Skipped...)}
	for _, t := range res.Created {
		out.Created = append(out.Created, taskView(t))
	}
	for _, t := range res.Existing {
		out.Existing = append(out.Existing, taskView(t))
	}
	status := http.StatusCreated
	if len(out.Created) == 0 {
		status = http.StatusOK
	}
	h.respond(w, status, out)
}

func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	t, err := h.engine.Get(id)
	if err != nil {
		h.fail(w, err, statusFor(err))
		return
	}
	h.respond(w, http.StatusOK, taskView(t))
}

func (h *Handlers) StartTask(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.Start)
}

func (h *Handlers) PauseTask(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.engine.Pause)
}

func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if err := h.engine.Delete(r.Context(), id); err != nil {
		h.fail(w, err, statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ExportTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	path, err := h.engine.Export(r.Context(), id, "")
	if err != nil {
		h.fail(w, err, statusFor(err))
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"path": path})
}

func (h *Handlers) StartAll(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, CountResponse{Affected: h.engine.StartAll(r.Context())})
}

func (h *Handlers) PauseAll(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, CountResponse{Affected: h.engine.PauseAll(r.Context())})
}

func (h *Handlers) PauseWaiting(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, CountResponse{Affected: h.engine.PauseWaiting(r.Context())})
}

func (h *Handlers) DeleteAll(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, CountResponse{Affected: h.engine.DeleteAll(r.Context())})
}

// Events streams progress as server-sent events. The stream opens with one
// "task" event per known task, followed by "progress" events.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.fail(w, errors.New("streaming unsupported"), http.StatusInternalServerError)
		return
	}
	events, cancel := h.engine.Subscribe(64)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, t := range h.engine.List() {
		if err := writeEvent(w, "task", taskView(t)); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, "progress", ev); err != nil {
				h.logger.Debugw("Event stream closed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b)
	return err
}

func (h *Handlers) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, int64) error) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), id); err != nil {
		h.fail(w, err, statusFor(err))
		return
	}
	t, err := h.engine.Get(id)
	if err != nil {
		h.fail(w, err, statusFor(err))
		return
	}
	h.respond(w, http.StatusOK, taskView(t))
}

func (h *Handlers) taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "task_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.fail(w, fmt.Errorf("invalid task id %q", raw), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	var fetchErr *data.FetchError
	var parseErr *data.ParseError
	switch {
	case errors.Is(err, data.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, data.ErrTaskActive):
		return http.StatusConflict
	case errors.Is(err, data.ErrUnsupportedSource):
		return http.StatusBadRequest
	case errors.Is(err, data.ErrIncompleteListing):
		return http.StatusUnprocessableEntity
	case errors.As(err, &fetchErr), errors.As(err, &parseErr):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrSchedulerClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handlers) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warnw("Failed to write response", "error", err)
	}
}

func (h *Handlers) fail(w http.ResponseWriter, err error, status int) {
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("Request failed", "error", err)
	} else {
		h.logger.Infow("Request rejected", "status", status, "error", err)
	}
	h.respond(w, status, ErrorResponse{Error: err.Error()})
}
