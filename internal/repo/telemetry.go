package repo

import (
	"context"
	"fmt"

	"github.com/mkessler/taskloom/internal/model"
)

// Telemetry repositories: calendar events, activity events, and heartbeats.
// These are background kinds; the push engine reports their sync results only
// as aggregate counts.

// UpsertCalendarEvent creates or refreshes a mirrored calendar entry.
func (r *Repo) UpsertCalendarEvent(ctx context.Context, sess Session, event *model.CalendarEvent) (*model.CalendarEvent, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calendar event: %w", err)
	}
	now := r.now().UTC()
	if event.ID == "" {
		event.ID = newID()
		event.CreatedAt = now
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	row, err := model.RowOf(event)
	if err != nil {
		return nil, err
	}
	if err := r.writeEntity(ctx, sess, model.KindCalendarEvents, row); err != nil {
		return nil, err
	}
	return event, nil
}

// DeleteCalendarEvent removes a mirrored calendar entry.
func (r *Repo) DeleteCalendarEvent(ctx context.Context, sess Session, id string) error {
	return r.deleteEntity(ctx, sess, model.KindCalendarEvents, id)
}

// ListCalendarEvents returns a user's calendar entries, earliest-modified first.
func (r *Repo) ListCalendarEvents(ctx context.Context, userID string) ([]*model.CalendarEvent, error) {
	rows, err := r.store.QueryRows(ctx, model.KindCalendarEvents, "user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	events := make([]*model.CalendarEvent, 0, len(rows))
	for _, row := range rows {
		var e model.CalendarEvent
		if err := model.FromRow(row, &e); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, nil
}

// RecordEvent appends a domain activity event. Events are append-only and
// never updated.
func (r *Repo) RecordEvent(ctx context.Context, sess Session, kind, payload string) (*model.Event, error) {
	event := &model.Event{
		ID:        newID(),
		UserID:    sess.UserID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: r.now().UTC(),
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	row, err := model.RowOf(event)
	if err != nil {
		return nil, err
	}
	if err := r.writeEntity(ctx, sess, model.KindEvents, row); err != nil {
		return nil, err
	}
	return event, nil
}

// RecordHeartbeat appends a presence ping for the session's user.
func (r *Repo) RecordHeartbeat(ctx context.Context, sess Session, activeWindow string) (*model.Heartbeat, error) {
	now := r.now().UTC()
	hb := &model.Heartbeat{
		ID:           newID(),
		UserID:       sess.UserID,
		SeenAt:       now,
		ActiveWindow: activeWindow,
		CreatedAt:    now,
	}
	if err := hb.Validate(); err != nil {
		return nil, fmt.Errorf("invalid heartbeat: %w", err)
	}
	row, err := model.RowOf(hb)
	if err != nil {
		return nil, err
	}
	if err := r.writeEntity(ctx, sess, model.KindHeartbeats, row); err != nil {
		return nil, err
	}
	return hb, nil
}
