package model

import (
	"fmt"
	"time"
)

// Revision is one entry of the append-only write-ahead changelog. Every local
// mutation to a synchronizable entity appends exactly one revision in the
// same transaction as the entity write. Revisions are never mutated afterward
// except to flip Synced once the remote acknowledges the upsert, or to set
// Dead when a revision exhausts its retry budget.
type Revision struct {
	ID         string    `json:"id"`
	ObjectType Kind      `json:"object_type"`
	ObjectID   string    `json:"object_id"`
	OriginID   string    `json:"origin_id,omitempty"`
	Seq        int64     `json:"seq"`
	Payload    []byte    `json:"payload"`
	CreatedAt  time.Time `json:"created_at"`
	Synced     bool      `json:"synced"`
	Dead       bool      `json:"dead"`
}

// Validate checks the fields required before appending to the log.
func (r *Revision) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !r.ObjectType.Valid() {
		return fmt.Errorf("unknown object_type %q", r.ObjectType)
	}
	if r.ObjectID == "" {
		return fmt.Errorf("object_id is required")
	}
	if len(r.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	return nil
}
