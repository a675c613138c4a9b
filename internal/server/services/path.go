package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmaksimov/skydrive/internal/common"
	"github.com/dmaksimov/skydrive/internal/server/models"
	"github.com/dmaksimov/skydrive/internal/server/repositories/nodes"
)

// maxPathDepth bounds the ancestor walk. A chain deeper than this indicates
// a corrupted (possibly cyclic) parent chain and the walk fails closed
// instead of looping.
const maxPathDepth = 255

// resolvePath materializes the logical path of node as the ordered list of
// names from root to the node itself. The path is never stored or cached:
// it must always reflect the current tree shape. The walk stops at a nil
// parent or a dangling parent reference.
func resolvePath(ctx context.Context, repo nodes.Repository, node *models.Node) ([]string, error) {
	parts := []string{node.Name}

	current := node
	for depth := 0; current.ParentID != nil; depth++ {
		if depth >= maxPathDepth {
			return nil, fmt.Errorf("%w: parent chain of node %s exceeds depth %d", common.ErrorInternal, node.ID, maxPathDepth)
		}

		parent, err := repo.GetByID(ctx, *current.ParentID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				// Dangling parent reference: terminate instead of failing
				// the whole operation.
				break
			}
			return nil, err
		}

		parts = append(parts, "")
		copy(parts[1:], parts)
		parts[0] = parent.Name

		current = parent
	}

	return parts, nil
}

// parentLogicalPath returns the slash-joined path of the folder parentID,
// or "" for the root level.
func parentLogicalPath(ctx context.Context, repo nodes.Repository, parentID *string) (string, error) {
	if parentID == nil {
		return "", nil
	}

	parent, err := repo.GetByID(ctx, *parentID)
	if err != nil {
		return "", err
	}

	parts, err := resolvePath(ctx, repo, parent)
	if err != nil {
		return "", err
	}

	return strings.Join(parts, "/"), nil
}
