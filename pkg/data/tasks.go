package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const summaryColumns = `id, kind, status, local_path, url, author, comic_name, progress, total_count, done_count, error_list, done`

const taskColumns = `id, kind, status, local_path, descriptor, url, author, comic_name, progress, total_count, done_count, error_list, done`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateTask inserts t and returns the stored row with its new id.
func (r *Repository) CreateTask(ctx context.Context, t *Task) (*Task, error) {
	errs, err := encodeErrors(t.Errors)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var id int64
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO download_tasks (kind, status, local_path, descriptor, url, author, comic_name, progress, total_count, done_count, error_list, done)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		string(t.Kind), string(t.Status), t.LocalPath, t.Descriptor, t.URL, t.Author,
		t.ComicName, t.Progress, t.TotalCount, t.DoneCount, errs, t.Done,
	).Scan(&id)
	if err != nil {
		return nil, &PersistenceError{Op: "create", Err: err}
	}
	return r.getTask(ctx, id)
}

func (r *Repository) GetTask(ctx context.Context, id int64) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getTask(ctx, id)
}

func (r *Repository) getTask(ctx context.Context, id int64) (*Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM download_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get", TaskID: id, Err: err}
	}
	return t, nil
}

// ListTasks returns every task without the descriptor blob, oldest first.
func (r *Repository) ListTasks(ctx context.Context) ([]*TaskSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT `+summaryColumns+` FROM download_tasks ORDER BY id`)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []*TaskSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "list", Err: err}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindTasks returns tasks matching kind and source URL.
func (r *Repository) FindTasks(ctx context.Context, kind Kind, url string) ([]*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM download_tasks WHERE kind = ? AND url = ? ORDER BY id`,
		string(kind), url)
	if err != nil {
		return nil, &PersistenceError{Op: "find", Err: err}
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "find", Err: err}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateStatus(ctx context.Context, id int64, status TaskStatus) error {
	return r.exec(ctx, "update status", id,
		`UPDATE download_tasks SET status = ? WHERE id = ?`, string(status), id)
}

// UpdateProgress stores a progress checkpoint. Called on a cadence, not per item.
func (r *Repository) UpdateProgress(ctx context.Context, id int64, cp Checkpoint) error {
	return r.exec(ctx, "update progress", id,
		`UPDATE download_tasks SET progress = ?, done_count = ?, descriptor = ? WHERE id = ?`,
		cp.Progress, cp.DoneCount, cp.Descriptor, id)
}

// FinalizeTask stores the last checkpoint of a run with its errors and status.
func (r *Repository) FinalizeTask(ctx context.Context, id int64, cp Checkpoint, errList []string, status TaskStatus) error {
	errs, err := encodeErrors(errList)
	if err != nil {
		return err
	}
	return r.exec(ctx, "finalize", id,
		`UPDATE download_tasks SET progress = ?, done_count = ?, descriptor = ?, error_list = ?, status = ?, done = ? WHERE id = ?`,
		cp.Progress, cp.DoneCount, cp.Descriptor, errs, string(status), status == StatusFinished, id)
}

func (r *Repository) DeleteTask(ctx context.Context, id int64) error {
	return r.exec(ctx, "delete", id, `DELETE FROM download_tasks WHERE id = ?`, id)
}

func (r *Repository) exec(ctx context.Context, op string, id int64, query string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &PersistenceError{Op: op, TaskID: id, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: op, TaskID: id, Err: err}
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t            Task
		kind, status string
		errs         string
	)
	err := row.Scan(&t.ID, &kind, &status, &t.LocalPath, &t.Descriptor, &t.URL, &t.Author,
		&t.ComicName, &t.Progress, &t.TotalCount, &t.DoneCount, &errs, &t.Done)
	if err != nil {
		return nil, err
	}
	t.Kind, t.Status = Kind(kind), TaskStatus(status)
	if t.Errors, err = decodeErrors(errs); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanSummary(row rowScanner) (*TaskSummary, error) {
	var (
		s            TaskSummary
		kind, status string
		errs         string
	)
	err := row.Scan(&s.ID, &kind, &status, &s.LocalPath, &s.URL, &s.Author,
		&s.ComicName, &s.Progress, &s.TotalCount, &s.DoneCount, &errs, &s.Done)
	if err != nil {
		return nil, err
	}
	s.Kind, s.Status = Kind(kind), TaskStatus(status)
	if s.Errors, err = decodeErrors(errs); err != nil {
		return nil, err
	}
	return &s, nil
}

func encodeErrors(errs []string) (string, error) {
	if len(errs) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("encode error list: %w", err)
	}
	return string(b), nil
}

func decodeErrors(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode error list: %w", err)
	}
	return out, nil
}
