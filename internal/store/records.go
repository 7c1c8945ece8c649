package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"notesafe/internal/models"
)

const recordColumns = "id, content_hash, hash_algorithm, note_ids, iv, salt, algorithm, chunk_size, plaintext_length, wrapped_key, filename, mime_type, created_at, edited_at, uploaded_at, deleted_at"

// GetItem returns one record by id, or nil when absent.
func (s *Store) GetItem(ctx context.Context, id string) (*models.AttachmentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attachments WHERE id = ?`, id)
	return scanRecord(row)
}

// GetItemByHash returns the record with the given content hash, or nil
// when absent. When both a tombstoned and a live record exist for the
// hash the live one wins.
func (s *Store) GetItemByHash(ctx context.Context, hash string) (*models.AttachmentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM attachments WHERE content_hash = ? ORDER BY deleted_at IS NULL DESC, created_at DESC LIMIT 1`, hash)
	return scanRecord(row)
}

// GetItems returns all live (non-purged) records in unspecified order.
func (s *Store) GetItems(ctx context.Context) ([]models.AttachmentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM attachments`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AttachmentRecord
	for rows.Next() {
		rec, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// AddItem inserts the record, replacing any existing record with the
// same id. Merge relies on the replace semantics.
func (s *Store) AddItem(ctx context.Context, rec *models.AttachmentRecord) error {
	return s.writeRecord(ctx, rec, `INSERT OR REPLACE INTO attachments (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
}

// UpdateItem rewrites an existing record.
func (s *Store) UpdateItem(ctx context.Context, rec *models.AttachmentRecord) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}
	noteIDs, err := json.Marshal(rec.NoteIDs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE attachments SET
  content_hash = ?, hash_algorithm = ?, note_ids = ?, iv = ?, salt = ?,
  algorithm = ?, chunk_size = ?, plaintext_length = ?, wrapped_key = ?,
  filename = ?, mime_type = ?, created_at = ?, edited_at = ?, uploaded_at = ?, deleted_at = ?
WHERE id = ?`,
		rec.Metadata.Hash, string(rec.Metadata.HashAlgorithm), string(noteIDs),
		rec.CipherParams.IV, rec.CipherParams.Salt, rec.CipherParams.Algorithm,
		rec.CipherParams.ChunkSize, rec.CipherParams.PlaintextLength, rec.WrappedKey,
		rec.Metadata.Filename, rec.Metadata.MimeType,
		formatTime(rec.CreatedAt), formatTimePtr(rec.EditedAt), formatTimePtr(rec.UploadedAt), formatTimePtr(rec.DeletedAt),
		rec.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %s not found", rec.ID)
	}
	return nil
}

// RemoveItem purges a record by id. Removing an absent id is a no-op.
func (s *Store) RemoveItem(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id)
	return err
}

func (s *Store) writeRecord(ctx context.Context, rec *models.AttachmentRecord, query string) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	noteIDs, err := json.Marshal(rec.NoteIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.Metadata.Hash, string(rec.Metadata.HashAlgorithm), string(noteIDs),
		rec.CipherParams.IV, rec.CipherParams.Salt, rec.CipherParams.Algorithm,
		rec.CipherParams.ChunkSize, rec.CipherParams.PlaintextLength, rec.WrappedKey,
		rec.Metadata.Filename, rec.Metadata.MimeType,
		formatTime(rec.CreatedAt), formatTimePtr(rec.EditedAt), formatTimePtr(rec.UploadedAt), formatTimePtr(rec.DeletedAt))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row *sql.Row) (*models.AttachmentRecord, error) {
	rec, err := scanRecordRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func scanRecordRows(row rowScanner) (*models.AttachmentRecord, error) {
	var (
		rec        models.AttachmentRecord
		hashAlg    string
		noteIDs    string
		createdAt  string
		editedAt   sql.NullString
		uploadedAt sql.NullString
		deletedAt  sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.Metadata.Hash, &hashAlg, &noteIDs,
		&rec.CipherParams.IV, &rec.CipherParams.Salt, &rec.CipherParams.Algorithm,
		&rec.CipherParams.ChunkSize, &rec.CipherParams.PlaintextLength, &rec.WrappedKey,
		&rec.Metadata.Filename, &rec.Metadata.MimeType,
		&createdAt, &editedAt, &uploadedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	rec.Metadata.HashAlgorithm = models.HashAlgorithm(hashAlg)
	if err := json.Unmarshal([]byte(noteIDs), &rec.NoteIDs); err != nil {
		return nil, fmt.Errorf("parse note ids for %s: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", rec.ID, err)
	}
	if rec.EditedAt, err = parseTimePtr(editedAt); err != nil {
		return nil, fmt.Errorf("parse edited_at for %s: %w", rec.ID, err)
	}
	if rec.UploadedAt, err = parseTimePtr(uploadedAt); err != nil {
		return nil, fmt.Errorf("parse uploaded_at for %s: %w", rec.ID, err)
	}
	if rec.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return nil, fmt.Errorf("parse deleted_at for %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}

func parseTimePtr(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid {
		return nil, nil
	}
	t, err := parseTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
