package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmaksimov/skydrive/internal/common"
	"github.com/dmaksimov/skydrive/internal/dbx"
	"github.com/dmaksimov/skydrive/internal/server/models"
	"github.com/dmaksimov/skydrive/internal/server/repositories/nodes"
)

// SoftDelete marks the node as deleted and, for folders, transitively marks
// every descendant. The subtree is walked iteratively with a work queue of
// folder ids, one UPDATE per parent, so arbitrarily deep trees neither
// recurse nor load the whole subtree into memory.
func (s *NodeService) SoftDelete(ctx context.Context, owner, id string) error {
	node, err := s.getOwnedNode(ctx, owner, id)
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Nodes(tx)

		node.IsDeleted = true
		if err := repo.Update(ctx, node); err != nil {
			return err
		}

		if !node.IsFolder() {
			return nil
		}

		queue := []string{node.ID}
		for len(queue) > 0 {
			parentID := queue[0]
			queue = queue[1:]

			folderIDs, err := repo.MarkDeletedByParent(ctx, owner, parentID)
			if err != nil {
				return err
			}
			queue = append(queue, folderIDs...)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("error soft-deleting node: %w", err)
	}

	return nil
}

// Restore clears the soft-delete flag of a node. Restoring is refused when
// the node is not deleted or when its parent is still deleted. Descendants
// are never restored automatically; the result reports whether deleted
// children remain.
func (s *NodeService) Restore(ctx context.Context, owner, id string) (*RestoreResult, error) {
	node, err := s.getOwnedNode(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if !node.IsDeleted {
		return nil, fmt.Errorf("%w: node is not deleted", common.ErrorInvalidArgument)
	}

	repo := s.repomanager.Nodes(s.db)

	if node.ParentID != nil {
		parent, err := repo.GetByID(ctx, *node.ParentID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		if err == nil && parent.IsDeleted {
			return nil, fmt.Errorf("%w: cannot restore a node whose parent is deleted", common.ErrorInvalidArgument)
		}
	}

	node.IsDeleted = false
	if err := repo.Update(ctx, node); err != nil {
		return nil, err
	}

	result := &RestoreResult{Node: node}
	if node.IsFolder() {
		count, err := repo.CountDeletedChildren(ctx, owner, node.ID)
		if err != nil {
			return nil, err
		}
		result.HasDeletedChildren = count > 0
	}

	return result, nil
}

// Purge permanently removes the node and, for folders, its whole subtree.
// For every file the storage object is deleted before its metadata record,
// so a storage failure never leaves an orphaned object unreferenced by
// metadata. A failure on one entry does not abort the rest: the failed
// entry (and the folders above it) keep their metadata so a retry can
// resume, and the aggregate error enumerates what failed.
func (s *NodeService) Purge(ctx context.Context, owner, id string) error {
	root, err := s.getOwnedNode(ctx, owner, id)
	if err != nil {
		return err
	}

	repo := s.repomanager.Nodes(s.db)

	subtree, err := s.collectSubtree(ctx, repo, owner, root)
	if err != nil {
		return err
	}

	// Children precede parents when iterating in reverse, which also keeps
	// the parent_id foreign key satisfied as rows are removed.
	retained := make(map[string]bool)
	var errs []error

	fail := func(n *models.Node, err error) {
		errs = append(errs, fmt.Errorf("%s %q (%s): %w", n.Type, n.Name, n.ID, err))
		retained[n.ID] = true
		if n.ParentID != nil {
			retained[*n.ParentID] = true
		}
	}

	for i := len(subtree) - 1; i >= 0; i-- {
		n := subtree[i]

		if retained[n.ID] {
			// A descendant could not be removed; keep this folder too.
			if n.ParentID != nil {
				retained[*n.ParentID] = true
			}
			continue
		}

		if n.IsFile() && n.StorageKey != "" {
			if err := s.store.Delete(ctx, n.StorageKey); err != nil {
				s.logger.Error(ctx, "storage deletion failed", "key", n.StorageKey, "error", err.Error())
				fail(n, err)
				continue
			}
		}

		if err := repo.Delete(ctx, owner, n.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			fail(n, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("purge incomplete: %w", errors.Join(errs...))
	}

	return nil
}

// collectSubtree returns root plus all descendants in breadth-first order,
// including soft-deleted ones.
func (s *NodeService) collectSubtree(ctx context.Context, repo nodes.Repository, owner string, root *models.Node) ([]*models.Node, error) {
	result := []*models.Node{root}

	if !root.IsFolder() {
		return result, nil
	}

	queue := []string{root.ID}
	for len(queue) > 0 {
		parentID := queue[0]
		queue = queue[1:]

		children, err := repo.SelectChildren(ctx, owner, parentID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			result = append(result, child)
			if child.IsFolder() {
				queue = append(queue, child.ID)
			}
		}
	}

	return result, nil
}
