package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task statuses. A transition into or out of StatusInProgress opens or closes
// a time-tracking interval as a revisioned side effect.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Task is the primary work item.
type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id,omitempty"`
	TeamID      string     `json:"team_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate checks required fields before a local write.
func (t *Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	switch t.Status {
	case StatusOpen, StatusInProgress, StatusDone:
	default:
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if t.Priority < 0 || t.Priority > 4 {
		return fmt.Errorf("priority must be between 0 and 4 (got %d)", t.Priority)
	}
	return nil
}

// Project groups tasks under a team.
type Project struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id,omitempty"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Project) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// Team is the multi-tenant boundary on the remote backend.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Team) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// TeamMember links a user to a team with a role.
type TeamMember struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *TeamMember) Validate() error {
	if m.TeamID == "" {
		return fmt.Errorf("team_id is required")
	}
	if m.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// User is an account known to this replica.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	AvatarPath string    `json:"avatar_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (u *User) Validate() error {
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	return nil
}

// CalendarEvent mirrors an external calendar entry for a user.
type CalendarEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *CalendarEvent) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if e.StartsAt.IsZero() || e.EndsAt.IsZero() {
		return fmt.Errorf("starts_at and ends_at are required")
	}
	return nil
}

// Attachment records a file linked to a task. The bytes themselves live in
// blob storage; BlobPath is the opaque key handed to the blob collaborator.
type Attachment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Name      string    `json:"name"`
	BlobPath  string    `json:"blob_path"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Attachment) Validate() error {
	if a.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// Event is an append-only domain activity record (task assigned, member
// joined, and so on). Events are never updated after creation.
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (e *Event) Validate() error {
	if e.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	return nil
}

// TimeEntry is a time-tracking interval against a task. EndedAt is nil while
// the interval is open.
type TimeEntry struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"task_id"`
	UserID    string     `json:"user_id,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (e *TimeEntry) Validate() error {
	if e.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if e.StartedAt.IsZero() {
		return fmt.Errorf("started_at is required")
	}
	return nil
}

// Heartbeat is a periodic presence ping from a replica.
type Heartbeat struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	SeenAt       time.Time `json:"seen_at"`
	ActiveWindow string    `json:"active_window,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *Heartbeat) Validate() error {
	if h.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// Row is the generic column-name-to-value representation used by the sync
// engines and the generic store upserts. Timestamps are RFC3339 strings.
type Row = map[string]any

// RowOf converts an entity struct to its Row form by round-tripping through
// JSON, so the column names follow the struct's json tags.
func RowOf(entity any) (Row, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity row: %w", err)
	}
	return row, nil
}

// FromRow decodes a Row back into the given entity struct pointer.
func FromRow(row Row, entity any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	if err := json.Unmarshal(data, entity); err != nil {
		return fmt.Errorf("failed to unmarshal row: %w", err)
	}
	return nil
}

// RowID extracts the row's id column. Returns "" if absent or not a string.
func RowID(row Row) string {
	id, _ := row["id"].(string)
	return id
}

// RowTime parses the named timestamp column of a row. The zero time is
// returned when the column is missing or unparseable, which makes the row
// lose any last-write-wins comparison against a real timestamp.
func RowTime(row Row, column string) time.Time {
	s, _ := row[column].(string)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
