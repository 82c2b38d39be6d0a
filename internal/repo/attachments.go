package repo

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/mkessler/taskloom/internal/model"
)

// CreateAttachment uploads the reader's bytes to blob storage under an
// opaque path and records the attachment row with its revision.
func (r *Repo) CreateAttachment(ctx context.Context, sess Session, taskID, name string, size int64, src io.Reader) (*model.Attachment, error) {
	if r.blobs == nil {
		return nil, fmt.Errorf("blob storage is not configured")
	}

	id := newID()
	blobPath := filepath.Join("attachments", id, name)
	if err := r.blobs.Upload(ctx, blobPath, src); err != nil {
		return nil, fmt.Errorf("failed to upload attachment: %w", err)
	}

	now := r.now().UTC()
	att := &model.Attachment{
		ID:        id,
		TaskID:    taskID,
		Name:      name,
		BlobPath:  blobPath,
		Size:      size,
		MimeType:  mime.TypeByExtension(filepath.Ext(name)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := att.Validate(); err != nil {
		return nil, fmt.Errorf("invalid attachment: %w", err)
	}

	row, err := model.RowOf(att)
	if err != nil {
		return nil, err
	}
	if err := r.writeEntity(ctx, sess, model.KindAttachments, row); err != nil {
		return nil, err
	}
	return att, nil
}

// AttachFile is the spool handler form of CreateAttachment: it uploads a
// settled file from the spool directory and removes the original on success.
func (r *Repo) AttachFile(ctx context.Context, sess Session, taskID, path string) (*model.Attachment, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spooled file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat spooled file: %w", err)
	}

	att, err := r.CreateAttachment(ctx, sess, taskID, filepath.Base(path), info.Size(), file)
	if err != nil {
		return nil, err
	}
	_ = file.Close()
	if err := os.Remove(path); err != nil {
		r.logger.Printf("Warning: failed to remove spooled file %s: %v", path, err)
	}
	return att, nil
}

// DeleteAttachment removes the attachment row with a tombstone revision and
// best-effort deletes the blob bytes.
func (r *Repo) DeleteAttachment(ctx context.Context, sess Session, id string) error {
	var att model.Attachment
	if err := r.getEntity(ctx, model.KindAttachments, id, &att); err != nil {
		return err
	}
	if err := r.deleteEntity(ctx, sess, model.KindAttachments, id); err != nil {
		return err
	}
	if r.blobs != nil {
		if err := r.blobs.Remove(ctx, att.BlobPath); err != nil {
			r.logger.Printf("Warning: failed to remove blob %s: %v", att.BlobPath, err)
		}
	}
	return nil
}

// DownloadAttachment streams the attachment bytes to w.
func (r *Repo) DownloadAttachment(ctx context.Context, id string, w io.Writer) error {
	if r.blobs == nil {
		return fmt.Errorf("blob storage is not configured")
	}
	var att model.Attachment
	if err := r.getEntity(ctx, model.KindAttachments, id, &att); err != nil {
		return err
	}
	return r.blobs.Download(ctx, att.BlobPath, w)
}

// ListAttachments returns the attachments of a task.
func (r *Repo) ListAttachments(ctx context.Context, taskID string) ([]*model.Attachment, error) {
	rows, err := r.store.QueryRows(ctx, model.KindAttachments, "task_id = ?", taskID)
	if err != nil {
		return nil, err
	}
	atts := make([]*model.Attachment, 0, len(rows))
	for _, row := range rows {
		var a model.Attachment
		if err := model.FromRow(row, &a); err != nil {
			return nil, err
		}
		atts = append(atts, &a)
	}
	return atts, nil
}
