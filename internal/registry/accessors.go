package registry

import (
	"context"

	"notesafe/internal/models"
)

// All returns every record in the store, tombstones included.
func (r *Registry) All(ctx context.Context) ([]models.AttachmentRecord, error) {
	return r.store.GetItems(ctx)
}

// Exists reports whether any record carries the given content hash.
func (r *Registry) Exists(ctx context.Context, hash string) (bool, error) {
	rec, err := r.store.GetItemByHash(ctx, hash)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Attachment looks a record up by id or content hash.
func (r *Registry) Attachment(ctx context.Context, hashOrID string) (*models.AttachmentRecord, error) {
	rec, err := r.store.GetItem(ctx, hashOrID)
	if err != nil || rec != nil {
		return rec, err
	}
	return r.store.GetItemByHash(ctx, hashOrID)
}

// OfNote returns the given kind of attachments referencing noteID.
func (r *Registry) OfNote(ctx context.Context, noteID string, kind models.AttachmentKind) ([]models.AttachmentRecord, error) {
	return r.filter(ctx, func(rec *models.AttachmentRecord) bool {
		if !rec.NoteIDs.Contains(noteID) {
			return false
		}
		switch kind {
		case models.AttachmentKindImages:
			return rec.Metadata.IsImage()
		case models.AttachmentKindFiles:
			return !rec.Metadata.IsImage()
		default:
			return true
		}
	})
}

// Pending returns referenced records not yet uploaded.
func (r *Registry) Pending(ctx context.Context) ([]models.AttachmentRecord, error) {
	return r.filter(ctx, func(rec *models.AttachmentRecord) bool {
		return !rec.Uploaded() && !rec.NoteIDs.Empty()
	})
}

// Deleted returns tombstoned records.
func (r *Registry) Deleted(ctx context.Context) ([]models.AttachmentRecord, error) {
	return r.filter(ctx, func(rec *models.AttachmentRecord) bool {
		return rec.Tombstoned()
	})
}

// Images returns image-typed records.
func (r *Registry) Images(ctx context.Context) ([]models.AttachmentRecord, error) {
	return r.filter(ctx, func(rec *models.AttachmentRecord) bool {
		return rec.Metadata.IsImage()
	})
}

// Files returns non-image records.
func (r *Registry) Files(ctx context.Context) ([]models.AttachmentRecord, error) {
	return r.filter(ctx, func(rec *models.AttachmentRecord) bool {
		return !rec.Metadata.IsImage()
	})
}

func (r *Registry) filter(ctx context.Context, keep func(*models.AttachmentRecord) bool) ([]models.AttachmentRecord, error) {
	records, err := r.store.GetItems(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.AttachmentRecord
	for i := range records {
		if keep(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out, nil
}
