package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"notesafe/internal/models"
)

func writeJSON(payload any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeRecord(rec *models.AttachmentRecord, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(rec)
	}

	lines := []string{
		fmt.Sprintf("id: %s", rec.ID),
		fmt.Sprintf("hash: %s (%s)", rec.Metadata.Hash, rec.Metadata.HashAlgorithm),
		fmt.Sprintf("filename: %s", rec.Metadata.Filename),
		fmt.Sprintf("mime_type: %s", rec.Metadata.MimeType),
		fmt.Sprintf("size: %s", humanize.Bytes(uint64(rec.CipherParams.PlaintextLength))),
		fmt.Sprintf("state: %s", rec.State()),
		fmt.Sprintf("notes: %d", len(rec.NoteIDs)),
		fmt.Sprintf("created_at: %s", formatTime(rec.CreatedAt)),
	}
	for _, noteID := range rec.NoteIDs {
		lines = append(lines, fmt.Sprintf("  note: %s", noteID))
	}
	if rec.UploadedAt != nil {
		lines = append(lines, fmt.Sprintf("uploaded_at: %s", formatTime(*rec.UploadedAt)))
	}
	if rec.DeletedAt != nil {
		lines = append(lines, fmt.Sprintf("deleted_at: %s", formatTime(*rec.DeletedAt)))
	}

	for _, line := range lines {
		if err := writePlain("%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

func writeRecordList(records []models.AttachmentRecord, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(records)
	}
	for i := range records {
		rec := &records[i]
		if err := writePlain("%s  %-9s  %8s  %s\n",
			shortHash(rec.Metadata.Hash), rec.State(),
			humanize.Bytes(uint64(rec.CipherParams.PlaintextLength)),
			rec.Metadata.Filename); err != nil {
			return err
		}
	}
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
