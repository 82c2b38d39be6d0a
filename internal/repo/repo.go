// Package repo provides the per-entity read/write operations that write
// through the revision log.
//
// Every create/update/delete validates its input, fills in ids and
// timestamps, writes the entity row, and appends a revision with the full
// post-write snapshot in the same transaction. The push engine later delivers
// those revisions to the remote backend.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mkessler/taskloom/internal/blob"
	"github.com/mkessler/taskloom/internal/model"
	"github.com/mkessler/taskloom/internal/remote"
	"github.com/mkessler/taskloom/internal/store"
)

// Session identifies the caller of a repository operation: the signed-in
// user and the replica performing the write. It is passed explicitly into
// every call; there is no process-wide current-user singleton.
type Session struct {
	UserID    string
	ReplicaID string
}

// Repo bundles the store, the remote client (for inline best-effort deletes),
// and shared write plumbing for all entity repositories.
type Repo struct {
	store  *store.Store
	remote remote.Client
	blobs  blob.Storage
	logger *log.Logger
	now    func() time.Time
}

// New creates the repository layer. The blob storage may be nil when the
// caller never touches attachments; a nil logger writes to stderr.
func New(st *store.Store, rc remote.Client, blobs blob.Storage, logger *log.Logger) *Repo {
	if logger == nil {
		logger = log.New(os.Stderr, "[repo] ", log.LstdFlags)
	}
	return &Repo{
		store:  st,
		remote: rc,
		blobs:  blobs,
		logger: logger,
		now:    time.Now,
	}
}

// Store exposes the underlying store for read-only callers.
func (r *Repo) Store() *store.Store {
	return r.store
}

func newID() string {
	return uuid.NewString()
}

// writeEntity writes the entity row and its revision atomically. The entity
// must already be validated and timestamped; row is its full snapshot.
func (r *Repo) writeEntity(ctx context.Context, sess Session, kind model.Kind, row model.Row) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal revision payload: %w", err)
	}
	seq, err := r.store.NextSeq(ctx)
	if err != nil {
		return err
	}
	rev := &model.Revision{
		ID:         newID(),
		ObjectType: kind,
		ObjectID:   model.RowID(row),
		OriginID:   sess.ReplicaID,
		Seq:        seq,
		Payload:    payload,
		CreatedAt:  r.now().UTC(),
	}
	return r.store.ApplyWrite(ctx, kind, row, rev)
}

// deleteEntity removes the row locally, appends a tombstone revision, and
// then attempts a best-effort inline remote delete. A failed remote call does
// not undo the local delete; the tombstone revision restores remote
// consistency through the next push.
func (r *Repo) deleteEntity(ctx context.Context, sess Session, kind model.Kind, id string) error {
	payload, err := json.Marshal(map[string]any{"id": id, "deleted": true})
	if err != nil {
		return fmt.Errorf("failed to marshal tombstone: %w", err)
	}
	seq, err := r.store.NextSeq(ctx)
	if err != nil {
		return err
	}
	rev := &model.Revision{
		ID:         newID(),
		ObjectType: kind,
		ObjectID:   id,
		OriginID:   sess.ReplicaID,
		Seq:        seq,
		Payload:    payload,
		CreatedAt:  r.now().UTC(),
	}
	if err := r.store.ApplyDelete(ctx, kind, id, rev); err != nil {
		return err
	}

	if r.remote != nil {
		if err := r.remote.Delete(ctx, kind.Table(), map[string]string{"id": id}); err != nil {
			r.logger.Printf("Warning: inline remote delete of %s %s failed: %v", kind, id, err)
		}
	}
	return nil
}

// getEntity loads one row into the given entity pointer.
func (r *Repo) getEntity(ctx context.Context, kind model.Kind, id string, entity any) error {
	row, err := r.store.GetRow(ctx, kind, id)
	if err != nil {
		return fmt.Errorf("failed to get %s %s: %w", kind, id, err)
	}
	return model.FromRow(row, entity)
}
