package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkessler/taskloom/internal/model"
)

// CreateTask validates and writes a new task, appending its revision.
func (r *Repo) CreateTask(ctx context.Context, sess Session, task *model.Task) (*model.Task, error) {
	if task.Status == "" {
		task.Status = model.StatusOpen
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}
	if task.ID == "" {
		task.ID = newID()
	}
	now := r.now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	row, err := model.RowOf(task)
	if err != nil {
		return nil, err
	}
	if err := r.writeEntity(ctx, sess, model.KindTasks, row); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask writes the task's new state. A status transition into or out of
// in_progress opens or closes a time-tracking interval; those side-effect
// writes are revisioned like any other mutation so they replicate.
func (r *Repo) UpdateTask(ctx context.Context, sess Session, task *model.Task) (*model.Task, error) {
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}
	if task.ID == "" {
		return nil, fmt.Errorf("task id is required")
	}

	var prev model.Task
	if err := r.getEntity(ctx, model.KindTasks, task.ID, &prev); err != nil {
		return nil, err
	}

	task.CreatedAt = prev.CreatedAt
	task.UpdatedAt = r.now().UTC()

	row, err := model.RowOf(task)
	if err != nil {
		return nil, err
	}
	if err := r.writeEntity(ctx, sess, model.KindTasks, row); err != nil {
		return nil, err
	}

	if prev.Status != model.StatusInProgress && task.Status == model.StatusInProgress {
		if _, err := r.StartTimeEntry(ctx, sess, task.ID); err != nil {
			r.logger.Printf("Warning: failed to open time entry for task %s: %v", task.ID, err)
		}
	}
	if prev.Status == model.StatusInProgress && task.Status != model.StatusInProgress {
		if err := r.StopTimeEntry(ctx, sess, task.ID); err != nil {
			r.logger.Printf("Warning: failed to close time entry for task %s: %v", task.ID, err)
		}
	}

	return task, nil
}

// DeleteTask removes the task locally with a tombstone revision and attempts
// an inline remote delete.
func (r *Repo) DeleteTask(ctx context.Context, sess Session, id string) error {
	return r.deleteEntity(ctx, sess, model.KindTasks, id)
}

// GetTask fetches one task by id.
func (r *Repo) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	if err := r.getEntity(ctx, model.KindTasks, id, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// TaskFilter restricts ListTasks. Zero values match everything.
type TaskFilter struct {
	Status     string
	ProjectID  string
	AssigneeID string
}

// ListTasks returns tasks matching the filter, oldest-modified first.
func (r *Repo) ListTasks(ctx context.Context, filter TaskFilter) ([]*model.Task, error) {
	var conditions []string
	var args []any
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.AssigneeID != "" {
		conditions = append(conditions, "assignee_id = ?")
		args = append(args, filter.AssigneeID)
	}

	rows, err := r.store.QueryRows(ctx, model.KindTasks, strings.Join(conditions, " AND "), args...)
	if err != nil {
		return nil, err
	}

	tasks := make([]*model.Task, 0, len(rows))
	for _, row := range rows {
		var task model.Task
		if err := model.FromRow(row, &task); err != nil {
			return nil, err
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

// StartTimeEntry opens a time-tracking interval for the task.
func (r *Repo) StartTimeEntry(ctx context.Context, sess Session, taskID string) (*model.TimeEntry, error) {
	now := r.now().UTC()
	entry := &model.TimeEntry{
		ID:        newID(),
		TaskID:    taskID,
		UserID:    sess.UserID,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid time entry: %w", err)
	}
	row, err := model.RowOf(entry)
	if err != nil {
		return nil, err
	}
	if err := r.writeEntity(ctx, sess, model.KindTimeEntries, row); err != nil {
		return nil, err
	}
	return entry, nil
}

// StopTimeEntry closes every open interval for the task. Closing a task with
// no open interval is a no-op.
func (r *Repo) StopTimeEntry(ctx context.Context, sess Session, taskID string) error {
	rows, err := r.store.QueryRows(ctx, model.KindTimeEntries, "task_id = ? AND ended_at IS NULL", taskID)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	for _, row := range rows {
		var entry model.TimeEntry
		if err := model.FromRow(row, &entry); err != nil {
			return err
		}
		ended := now
		entry.EndedAt = &ended
		entry.UpdatedAt = now

		updated, err := model.RowOf(&entry)
		if err != nil {
			return err
		}
		if err := r.writeEntity(ctx, sess, model.KindTimeEntries, updated); err != nil {
			return err
		}
	}
	return nil
}

// OpenTimeEntries lists the task's intervals that have not ended yet.
func (r *Repo) OpenTimeEntries(ctx context.Context, taskID string) ([]*model.TimeEntry, error) {
	rows, err := r.store.QueryRows(ctx, model.KindTimeEntries, "task_id = ? AND ended_at IS NULL", taskID)
	if err != nil {
		return nil, err
	}
	entries := make([]*model.TimeEntry, 0, len(rows))
	for _, row := range rows {
		var entry model.TimeEntry
		if err := model.FromRow(row, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}
