package shares

import (
	"context"

	"github.com/dmaksimov/skydrive/internal/server/models"
)

type Repository interface {
	// Create inserts the share link and fills in server-assigned fields.
	Create(ctx context.Context, share *models.ShareLink) error

	// GetByID returns a share link by id, scoped to its creator.
	GetByID(ctx context.Context, createdBy string, id string) (*models.ShareLink, error)

	// GetByToken resolves the external-facing token to its share link.
	GetByToken(ctx context.Context, token string) (*models.ShareLink, error)

	// ListByCreator returns one page of the creator's share links, newest
	// first, plus the total count.
	ListByCreator(ctx context.Context, createdBy string, page, limit int) ([]*models.ShareLink, int64, error)

	// Update persists permissions, access level, expiry, and password hash.
	Update(ctx context.Context, share *models.ShareLink) error

	// Delete removes the share link, scoped to its creator.
	Delete(ctx context.Context, createdBy string, id string) error
}
