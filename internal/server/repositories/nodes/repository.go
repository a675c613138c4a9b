package nodes

import (
	"context"

	"github.com/dmaksimov/skydrive/internal/server/models"
)

// ChildrenQuery selects a page of live children under one parent.
// A nil ParentID means root level. Search is a case-insensitive
// substring filter on the name.
type ChildrenQuery struct {
	Owner    string
	ParentID *string
	Search   string
	Page     int
	Limit    int
}

type Repository interface {
	// Create inserts the node and fills in server-assigned fields
	// (id, timestamps). A live sibling of the same (owner, parent, type,
	// name) yields common.ErrorConflict.
	Create(ctx context.Context, node *models.Node) error

	// GetByID returns the node regardless of its soft-delete state.
	// Ownership checks are the caller's responsibility.
	GetByID(ctx context.Context, id string) (*models.Node, error)

	// ListChildren returns one page of non-deleted children plus the total
	// count matching the query, sorted folders first, then by name.
	ListChildren(ctx context.Context, q ChildrenQuery) ([]*models.Node, int64, error)

	// SiblingExists reports whether a live node of the given type and name
	// exists under parentID. excludeID, when non-empty, is skipped.
	SiblingExists(ctx context.Context, owner string, parentID *string, typ models.NodeType, name string, excludeID string) (bool, error)

	// Update persists name, parent, storage key, and soft-delete state.
	// Sibling collisions yield common.ErrorConflict.
	Update(ctx context.Context, node *models.Node) error

	// MarkDeletedByParent soft-deletes all live children of parentID and
	// returns the ids of the folders among them, so the caller can keep
	// walking the subtree.
	MarkDeletedByParent(ctx context.Context, owner string, parentID string) ([]string, error)

	// SelectChildren returns every child of parentID, including
	// soft-deleted ones.
	SelectChildren(ctx context.Context, owner string, parentID string) ([]*models.Node, error)

	// CountDeletedChildren counts soft-deleted direct children.
	CountDeletedChildren(ctx context.Context, owner string, parentID string) (int64, error)

	// Delete permanently removes the node's metadata record.
	Delete(ctx context.Context, owner string, id string) error
}
