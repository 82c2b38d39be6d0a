// Package model defines the synchronizable entity kinds and their row
// representations shared by the store, repositories, and sync engines.
//
// Every entity kind maps to one local table and one remote table of the
// same name. Conflict resolution is per-row last-write-wins on the kind's
// timestamp column; there is no field-level merging.
package model

// Kind identifies one synchronizable entity type. The string value is the
// table name, identical locally and remotely.
type Kind string

const (
	KindTasks          Kind = "tasks"
	KindProjects       Kind = "projects"
	KindTeams          Kind = "teams"
	KindTeamMembers    Kind = "team_members"
	KindUsers          Kind = "users"
	KindCalendarEvents Kind = "calendar_events"
	KindAttachments    Kind = "attachments"
	KindEvents         Kind = "events"
	KindTimeEntries    Kind = "time_entries"
	KindHeartbeats     Kind = "heartbeats"
)

// Kinds lists every synchronizable kind in the order a full pull visits them.
// Parent kinds come before the kinds that reference them so a fresh replica
// fills in foreign keys before the rows that point at them.
var Kinds = []Kind{
	KindUsers,
	KindTeams,
	KindTeamMembers,
	KindProjects,
	KindTasks,
	KindCalendarEvents,
	KindAttachments,
	KindEvents,
	KindTimeEntries,
	KindHeartbeats,
}

// Table returns the SQL table name for the kind.
func (k Kind) Table() string { return string(k) }

// Valid reports whether k names a known synchronizable kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Background reports whether the kind carries high-frequency telemetry whose
// individual push results are not surfaced to the UI. Background pushes are
// reported only as an aggregate count.
func (k Kind) Background() bool {
	switch k {
	case KindHeartbeats, KindCalendarEvents, KindTimeEntries, KindEvents:
		return true
	}
	return false
}

// TimestampColumn returns the column used for last-write-wins comparison.
// Append-only kinds are never updated after creation and use created_at.
func (k Kind) TimestampColumn() string {
	switch k {
	case KindEvents, KindHeartbeats:
		return "created_at"
	}
	return "updated_at"
}

// BoolColumns lists columns stored as SQLite integers but exposed as JSON
// booleans. The store converts them back when scanning generic rows.
func (k Kind) BoolColumns() []string {
	if k == KindProjects {
		return []string{"archived"}
	}
	return nil
}

// Columns returns the full column list for the kind's table, in schema order.
// The generic row upsert builds its INSERT from this list, so it must stay in
// lockstep with the store schema.
func (k Kind) Columns() []string {
	switch k {
	case KindTasks:
		return []string{"id", "project_id", "team_id", "title", "description", "status", "priority", "assignee_id", "due_at", "created_at", "updated_at"}
	case KindProjects:
		return []string{"id", "team_id", "name", "color", "archived", "created_at", "updated_at"}
	case KindTeams:
		return []string{"id", "name", "created_at", "updated_at"}
	case KindTeamMembers:
		return []string{"id", "team_id", "user_id", "role", "created_at", "updated_at"}
	case KindUsers:
		return []string{"id", "email", "name", "avatar_path", "created_at", "updated_at"}
	case KindCalendarEvents:
		return []string{"id", "user_id", "title", "starts_at", "ends_at", "source", "created_at", "updated_at"}
	case KindAttachments:
		return []string{"id", "task_id", "name", "blob_path", "size", "mime_type", "created_at", "updated_at"}
	case KindEvents:
		return []string{"id", "user_id", "kind", "payload", "created_at"}
	case KindTimeEntries:
		return []string{"id", "task_id", "user_id", "started_at", "ended_at", "created_at", "updated_at"}
	case KindHeartbeats:
		return []string{"id", "user_id", "seen_at", "active_window", "created_at"}
	}
	return nil
}
