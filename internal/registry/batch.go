package registry

import (
	"context"
	"log/slog"

	"notesafe/internal/events"
	"notesafe/internal/models"
)

const downloadOp = "download"

// DownloadImages materializes and decodes every image attachment of
// noteID, strictly in sequence so progress stays monotone and memory
// holds one decrypted blob at a time. A failed item is skipped; the
// final progress event fires regardless of per-item failures.
func (r *Registry) DownloadImages(ctx context.Context, noteID string) error {
	records, err := r.OfNote(ctx, noteID, models.AttachmentKindImages)
	if err != nil {
		return err
	}

	total := len(records)
	defer r.publish(events.KindProgress, events.Progress{
		Op:      downloadOp,
		GroupID: noteID,
		Total:   total,
		Current: total,
		Done:    true,
	})

	for i := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := &records[i]
		r.publish(events.KindProgress, events.Progress{
			Op:      downloadOp,
			GroupID: noteID,
			Total:   total,
			Current: i,
		})

		ok, err := r.fs.DownloadFile(ctx, noteID, rec.Metadata.Hash, rec.CipherParams.ChunkSize, rec.Metadata)
		if err != nil {
			slog.Debug("media download failed", "hash", rec.Metadata.Hash, "error", err)
			continue
		}
		if !ok {
			continue
		}

		payload, err := r.Read(ctx, rec.Metadata.Hash)
		if err != nil {
			slog.Debug("media decode failed", "hash", rec.Metadata.Hash, "error", err)
			continue
		}
		if payload == nil {
			continue
		}

		r.publish(events.KindMediaDownloaded, events.MediaDownloaded{
			GroupID: noteID,
			Hash:    rec.Metadata.Hash,
			Src:     payload.DataURI(),
		})
	}
	return nil
}

// CleanupResult reports one cleanup pass.
type CleanupResult struct {
	Candidates int `json:"candidates"`
	Purged     int `json:"purged"`
	Retained   int `json:"retained"`
	Failed     int `json:"failed"`
}

// Cleanup purges tombstoned records older than the retention window,
// contingent on successful blob deletion. Failed deletions leave the
// tombstone in place for the next pass, so cleanup is safe to invoke
// repeatedly and never loses data on transient transport failures.
func (r *Registry) Cleanup(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult
	records, err := r.store.GetItems(ctx)
	if err != nil {
		return result, err
	}

	now := r.now()
	for i := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rec := &records[i]
		if !rec.Tombstoned() {
			continue
		}
		if now.Sub(*rec.DeletedAt) <= r.retention {
			result.Retained++
			continue
		}
		result.Candidates++

		ok, err := r.fs.DeleteFile(ctx, rec.Metadata.Hash, false)
		if err != nil || !ok {
			if err != nil {
				slog.Debug("tombstone blob deletion failed", "hash", rec.Metadata.Hash, "error", err)
			}
			result.Failed++
			continue
		}
		if err := r.store.RemoveItem(ctx, rec.ID); err != nil {
			result.Failed++
			continue
		}
		result.Purged++
	}
	return result, nil
}
