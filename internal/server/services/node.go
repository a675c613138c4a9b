// Package services contains server-side business logic for the namespace
// tree and share links. This file implements NodeService: listing,
// creation, rename/move, soft delete, restore, and permanent purge of
// file and folder nodes.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dmaksimov/skydrive/internal/common"
	"github.com/dmaksimov/skydrive/internal/logging"
	"github.com/dmaksimov/skydrive/internal/server/models"
	"github.com/dmaksimov/skydrive/internal/server/repositories/nodes"
	"github.com/dmaksimov/skydrive/internal/server/repositories/repomanager"
	"github.com/dmaksimov/skydrive/internal/server/storage"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// NodePage is one page of a children listing.
type NodePage struct {
	Items       []*models.Node
	CurrentPage int
	TotalPages  int
	TotalItems  int64
}

// UploadIntent is the result of preparing a file upload: the created node
// plus a presigned URL the client PUTs the bytes to.
type UploadIntent struct {
	Node      *models.Node
	UploadURL string
}

// RestoreResult reports a restored node and whether soft-deleted
// descendants remain (they are never restored automatically).
type RestoreResult struct {
	Node               *models.Node
	HasDeletedChildren bool
}

// NodeService implements owner-scoped operations on the namespace tree.
type NodeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.Client
	logger      logging.Logger
}

// NewNodeService constructs a NodeService.
func NewNodeService(db *sql.DB, repomanager repomanager.RepositoryManager, store storage.Client, logger logging.Logger) *NodeService {
	return &NodeService{
		db:          db,
		repomanager: repomanager,
		store:       store,
		logger:      logger.With("module", "node_service"),
	}
}

func validateID(id string) error {
	if err := uuid.Validate(id); err != nil {
		return fmt.Errorf("%w: malformed id %q", common.ErrorInvalidArgument, id)
	}
	return nil
}

func validateOptionalID(id *string) error {
	if id == nil {
		return nil
	}
	return validateID(*id)
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", common.ErrorInvalidArgument)
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("%w: name must not contain \"/\"", common.ErrorInvalidArgument)
	}
	return nil
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func totalPages(total int64, limit int) int {
	return int((total + int64(limit) - 1) / int64(limit))
}

// getOwnedNode fetches a node by id and enforces ownership. Non-owned and
// missing nodes are both reported as NotFound so existence is not leaked.
func (s *NodeService) getOwnedNode(ctx context.Context, owner, id string) (*models.Node, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	node, err := s.repomanager.Nodes(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if node.Owner != owner {
		return nil, common.ErrorNotFound
	}

	return node, nil
}

// getLiveOwnedNode is getOwnedNode restricted to non-deleted nodes.
func (s *NodeService) getLiveOwnedNode(ctx context.Context, owner, id string) (*models.Node, error) {
	node, err := s.getOwnedNode(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if node.IsDeleted {
		return nil, common.ErrorNotFound
	}
	return node, nil
}

// checkParentFolder verifies parentID is a live folder owned by owner.
// A nil parentID (root level) is always valid.
func (s *NodeService) checkParentFolder(ctx context.Context, owner string, parentID *string) error {
	if parentID == nil {
		return nil
	}

	parent, err := s.getLiveOwnedNode(ctx, owner, *parentID)
	if err != nil {
		return err
	}
	if !parent.IsFolder() {
		return common.ErrorNotFound
	}

	return nil
}

// List returns non-deleted children of parentID (root when nil), optionally
// filtered by a case-insensitive substring of the name, sorted folders
// before files and then by name.
func (s *NodeService) List(ctx context.Context, owner string, parentID *string, search string, page, limit int) (*NodePage, error) {
	if err := validateOptionalID(parentID); err != nil {
		return nil, err
	}
	page, limit = normalizePaging(page, limit)

	items, total, err := s.repomanager.Nodes(s.db).ListChildren(ctx, nodes.ChildrenQuery{
		Owner:    owner,
		ParentID: parentID,
		Search:   search,
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("error listing nodes: %w", err)
	}

	return &NodePage{
		Items:       items,
		CurrentPage: page,
		TotalPages:  totalPages(total, limit),
		TotalItems:  total,
	}, nil
}

// Get returns a live node owned by the caller.
func (s *NodeService) Get(ctx context.Context, owner, id string) (*models.Node, error) {
	return s.getLiveOwnedNode(ctx, owner, id)
}

// CreateFolder creates a folder under parentID (or at root). A live folder
// with the same name under the same parent yields Conflict.
func (s *NodeService) CreateFolder(ctx context.Context, owner, name string, parentID *string) (*models.Node, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateOptionalID(parentID); err != nil {
		return nil, err
	}
	if err := s.checkParentFolder(ctx, owner, parentID); err != nil {
		return nil, err
	}

	repo := s.repomanager.Nodes(s.db)

	exists, err := repo.SiblingExists(ctx, owner, parentID, models.NodeTypeFolder, name, "")
	if err != nil {
		return nil, fmt.Errorf("error checking siblings: %w", err)
	}
	if exists {
		return nil, common.ErrorConflict
	}

	folder := &models.Node{
		Name:     name,
		Type:     models.NodeTypeFolder,
		Owner:    owner,
		ParentID: parentID,
	}
	// The partial unique index backs this up when a concurrent create wins
	// the race between the check above and the insert.
	if err := repo.Create(ctx, folder); err != nil {
		return nil, err
	}

	return folder, nil
}

// CreateFileIntent registers file metadata and returns a presigned upload
// URL. A display-name collision is resolved silently with a unique-variant
// name rather than a Conflict, so uploads never block on naming.
func (s *NodeService) CreateFileIntent(ctx context.Context, owner, name, mimeType string, size int64, parentID *string) (*UploadIntent, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if mimeType == "" {
		return nil, fmt.Errorf("%w: mimeType is required", common.ErrorInvalidArgument)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive", common.ErrorInvalidArgument)
	}
	if err := validateOptionalID(parentID); err != nil {
		return nil, err
	}
	if err := s.checkParentFolder(ctx, owner, parentID); err != nil {
		return nil, err
	}

	repo := s.repomanager.Nodes(s.db)

	finalName := name
	exists, err := repo.SiblingExists(ctx, owner, parentID, models.NodeTypeFile, name, "")
	if err != nil {
		return nil, fmt.Errorf("error checking siblings: %w", err)
	}
	if exists {
		finalName = storage.UniqueVariant(name)
	}

	parentPath, err := parentLogicalPath(ctx, repo, parentID)
	if err != nil {
		return nil, fmt.Errorf("error resolving parent path: %w", err)
	}

	file := &models.Node{
		Name:       finalName,
		Type:       models.NodeTypeFile,
		Owner:      owner,
		ParentID:   parentID,
		StorageKey: storage.DeriveKey(owner, finalName, parentPath),
		Size:       size,
		MimeType:   mimeType,
	}

	if err := repo.Create(ctx, file); err != nil {
		if !errors.Is(err, common.ErrorConflict) {
			return nil, err
		}
		// Lost a race with a concurrent upload of the same name: retry once
		// with a fresh variant instead of surfacing a conflict.
		finalName = storage.UniqueVariant(name)
		file.Name = finalName
		file.StorageKey = storage.DeriveKey(owner, finalName, parentPath)
		if err := repo.Create(ctx, file); err != nil {
			return nil, err
		}
	}

	uploadURL, err := s.store.PresignPut(ctx, file.StorageKey, mimeType)
	if err != nil {
		return nil, fmt.Errorf("error presigning upload: %w", err)
	}

	return &UploadIntent{Node: file, UploadURL: uploadURL}, nil
}

// DownloadURL returns a presigned download URL for a live file node.
func (s *NodeService) DownloadURL(ctx context.Context, owner, id string) (string, error) {
	node, err := s.getLiveOwnedNode(ctx, owner, id)
	if err != nil {
		return "", err
	}
	if !node.IsFile() {
		return "", fmt.Errorf("%w: only files can be downloaded", common.ErrorInvalidArgument)
	}

	url, err := s.store.PresignGet(ctx, node.StorageKey, node.Name)
	if err != nil {
		return "", fmt.Errorf("error presigning download: %w", err)
	}

	return url, nil
}

// Rename changes a node's display name. For files, the storage key is
// recomputed from the new name and the unchanged parent path; the bytes in
// storage are not moved, only the metadata reference changes.
func (s *NodeService) Rename(ctx context.Context, owner, id, newName string) (*models.Node, error) {
	if err := validateName(newName); err != nil {
		return nil, err
	}

	node, err := s.getLiveOwnedNode(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Nodes(s.db)

	exists, err := repo.SiblingExists(ctx, owner, node.ParentID, node.Type, newName, node.ID)
	if err != nil {
		return nil, fmt.Errorf("error checking siblings: %w", err)
	}
	if exists {
		return nil, common.ErrorConflict
	}

	if node.IsFile() {
		parentPath, err := parentLogicalPath(ctx, repo, node.ParentID)
		if err != nil {
			return nil, fmt.Errorf("error resolving parent path: %w", err)
		}
		node.StorageKey = storage.DeriveKey(owner, newName, parentPath)
	}

	node.Name = newName
	if err := repo.Update(ctx, node); err != nil {
		return nil, err
	}

	return node, nil
}

// Move reparents a node. Moving to the current parent is a no-op success.
// Moving a folder into itself or its own subtree is Forbidden. For files,
// the storage key is recomputed from the destination path.
func (s *NodeService) Move(ctx context.Context, owner, id string, destinationID *string) (*models.Node, error) {
	if err := validateOptionalID(destinationID); err != nil {
		return nil, err
	}

	node, err := s.getLiveOwnedNode(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	if sameParent(node.ParentID, destinationID) {
		return node, nil
	}

	repo := s.repomanager.Nodes(s.db)

	if destinationID != nil {
		dest, err := s.getLiveOwnedNode(ctx, owner, *destinationID)
		if err != nil {
			return nil, err
		}
		if !dest.IsFolder() {
			return nil, common.ErrorNotFound
		}

		if node.IsFolder() {
			if err := s.checkNotDescendant(ctx, owner, node.ID, dest); err != nil {
				return nil, err
			}
		}
	}

	exists, err := repo.SiblingExists(ctx, owner, destinationID, node.Type, node.Name, node.ID)
	if err != nil {
		return nil, fmt.Errorf("error checking siblings: %w", err)
	}
	if exists {
		return nil, common.ErrorConflict
	}

	if node.IsFile() {
		parentPath, err := parentLogicalPath(ctx, repo, destinationID)
		if err != nil {
			return nil, fmt.Errorf("error resolving destination path: %w", err)
		}
		node.StorageKey = storage.DeriveKey(owner, node.Name, parentPath)
	}

	node.ParentID = destinationID
	if err := repo.Update(ctx, node); err != nil {
		return nil, err
	}

	return node, nil
}

// checkNotDescendant walks the destination's ancestor chain looking for
// nodeID; finding it (or the destination being the node itself) means the
// move would create a cycle.
func (s *NodeService) checkNotDescendant(ctx context.Context, owner, nodeID string, dest *models.Node) error {
	if dest.ID == nodeID {
		return fmt.Errorf("%w: cannot move a folder into itself", common.ErrorForbidden)
	}

	repo := s.repomanager.Nodes(s.db)

	current := dest
	for depth := 0; current.ParentID != nil; depth++ {
		if depth >= maxPathDepth {
			return fmt.Errorf("%w: parent chain of node %s exceeds depth %d", common.ErrorInternal, dest.ID, maxPathDepth)
		}
		if *current.ParentID == nodeID {
			return fmt.Errorf("%w: cannot move a folder into its own subtree", common.ErrorForbidden)
		}

		parent, err := repo.GetByID(ctx, *current.ParentID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		current = parent
	}

	return nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
