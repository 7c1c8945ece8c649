package store

import (
	"context"

	"notesafe/internal/models"
)

// KeyedStore is the generic record persistence surface the registry
// depends on. It carries no domain logic: identity, dedup, and
// lifecycle decisions all live with the caller.
type KeyedStore interface {
	GetItem(ctx context.Context, id string) (*models.AttachmentRecord, error)
	GetItemByHash(ctx context.Context, hash string) (*models.AttachmentRecord, error)
	GetItems(ctx context.Context) ([]models.AttachmentRecord, error)
	AddItem(ctx context.Context, rec *models.AttachmentRecord) error
	UpdateItem(ctx context.Context, rec *models.AttachmentRecord) error
	RemoveItem(ctx context.Context, id string) error
}

var _ KeyedStore = (*Store)(nil)
