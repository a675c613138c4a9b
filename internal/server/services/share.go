package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmaksimov/skydrive/internal/common"
	"github.com/dmaksimov/skydrive/internal/logging"
	sc "github.com/dmaksimov/skydrive/internal/server/config"
	"github.com/dmaksimov/skydrive/internal/server/models"
	"github.com/dmaksimov/skydrive/internal/server/repositories/nodes"
	"github.com/dmaksimov/skydrive/internal/server/repositories/repomanager"
	"github.com/dmaksimov/skydrive/internal/server/storage"
)

// CreateShareInput describes a new share link. Permissions default to
// view-only when nil; AccessLevel defaults to unlisted when empty.
type CreateShareInput struct {
	NodeID      string
	Permissions *models.SharePermissions
	AccessLevel models.AccessLevel
	ExpiresAt   *time.Time
	Password    string
}

// UpdateShareInput patches an existing share link. Nil fields keep the
// current value; the Clear flags explicitly remove expiry or password.
type UpdateShareInput struct {
	Permissions   *SharePermissionsPatch
	AccessLevel   *models.AccessLevel
	ExpiresAt     *time.Time
	ClearExpiry   bool
	Password      *string
	ClearPassword bool
}

// SharePermissionsPatch updates individual permission flags; nil fields
// keep the current value.
type SharePermissionsPatch struct {
	CanView  *bool
	CanEdit  *bool
	CanShare *bool
}

// ShareWithNode pairs a share link with its bound node, fetched explicitly
// at read time. Node is nil when the referenced node no longer exists.
type ShareWithNode struct {
	Share *models.ShareLink
	Node  *models.Node
}

// SharePage is one page of a creator's share links.
type SharePage struct {
	Items       []*ShareWithNode
	CurrentPage int
	TotalPages  int
	TotalItems  int64
}

// ShareAccess is a validated share token bound to its node for the rest of
// a request. Produced only by ValidateToken.
type ShareAccess struct {
	Share *models.ShareLink
	Node  *models.Node
}

// SharedMeta is the public metadata of a shared resource.
type SharedMeta struct {
	ID          string
	Name        string
	Type        models.NodeType
	Size        int64
	MimeType    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Permissions models.SharePermissions
	AccessLevel models.AccessLevel
	HasPassword bool
}

// SharedFolderPage is one page of a shared folder's children.
type SharedFolderPage struct {
	ParentID    string
	ParentName  string
	Items       []*models.Node
	CurrentPage int
	TotalPages  int
	TotalItems  int64
}

// ShareService implements share-link management for owners and
// token-scoped access for anonymous visitors.
type ShareService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.Client
	config      *sc.Config
	logger      logging.Logger
}

// NewShareService constructs a ShareService.
func NewShareService(db *sql.DB, repomanager repomanager.RepositoryManager, store storage.Client, config *sc.Config, logger logging.Logger) *ShareService {
	return &ShareService{
		db:          db,
		repomanager: repomanager,
		store:       store,
		config:      config,
		logger:      logger.With("module", "share_service"),
	}
}

func validAccessLevel(l models.AccessLevel) bool {
	switch l {
	case models.AccessLevelPublic, models.AccessLevelUnlisted, models.AccessLevelPrivate:
		return true
	}
	return false
}

func hashSharePassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}
	return hash, nil
}

// ShareURL builds the shareable link for a token from the configured
// public base URL.
func (s *ShareService) ShareURL(token string) string {
	return strings.TrimRight(s.config.PublicBaseURL, "/") + "/shared/" + token
}

// Create issues a new share link for a live node owned by the caller.
func (s *ShareService) Create(ctx context.Context, owner string, in CreateShareInput) (*models.ShareLink, error) {
	if err := validateID(in.NodeID); err != nil {
		return nil, err
	}

	node, err := s.repomanager.Nodes(s.db).GetByID(ctx, in.NodeID)
	if err != nil {
		return nil, err
	}
	if node.Owner != owner || node.IsDeleted {
		return nil, common.ErrorNotFound
	}

	permissions := models.SharePermissions{CanView: true}
	if in.Permissions != nil {
		permissions = *in.Permissions
	}

	accessLevel := in.AccessLevel
	if accessLevel == "" {
		accessLevel = models.AccessLevelUnlisted
	}
	if !validAccessLevel(accessLevel) {
		return nil, fmt.Errorf("%w: unknown access level %q", common.ErrorInvalidArgument, accessLevel)
	}

	share := &models.ShareLink{
		NodeID:      node.ID,
		Token:       uuid.NewString(),
		Permissions: permissions,
		AccessLevel: accessLevel,
		ExpiresAt:   in.ExpiresAt,
		CreatedBy:   owner,
	}

	if in.Password != "" {
		hash, err := hashSharePassword(in.Password)
		if err != nil {
			return nil, err
		}
		share.PasswordHash = hash
	}

	if err := s.repomanager.Shares(s.db).Create(ctx, share); err != nil {
		return nil, fmt.Errorf("error creating share: %w", err)
	}

	return share, nil
}

// List returns one page of the caller's share links, newest first, each
// with its node populated via an explicit fetch.
func (s *ShareService) List(ctx context.Context, owner string, page, limit int) (*SharePage, error) {
	page, limit = normalizePaging(page, limit)

	items, total, err := s.repomanager.Shares(s.db).ListByCreator(ctx, owner, page, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing shares: %w", err)
	}

	result := make([]*ShareWithNode, 0, len(items))
	for _, share := range items {
		result = append(result, s.withNode(ctx, share))
	}

	return &SharePage{
		Items:       result,
		CurrentPage: page,
		TotalPages:  totalPages(total, limit),
		TotalItems:  total,
	}, nil
}

func (s *ShareService) withNode(ctx context.Context, share *models.ShareLink) *ShareWithNode {
	node, err := s.repomanager.Nodes(s.db).GetByID(ctx, share.NodeID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "failed to populate share node", "share", share.ID, "error", err.Error())
		}
		return &ShareWithNode{Share: share}
	}
	return &ShareWithNode{Share: share, Node: node}
}

// Get returns one of the caller's share links with its node populated.
func (s *ShareService) Get(ctx context.Context, owner, shareID string) (*ShareWithNode, error) {
	if err := validateID(shareID); err != nil {
		return nil, err
	}

	share, err := s.repomanager.Shares(s.db).GetByID(ctx, owner, shareID)
	if err != nil {
		return nil, err
	}

	return s.withNode(ctx, share), nil
}

// Update patches permissions, access level, expiry, or password of one of
// the caller's share links.
func (s *ShareService) Update(ctx context.Context, owner, shareID string, in UpdateShareInput) (*models.ShareLink, error) {
	if err := validateID(shareID); err != nil {
		return nil, err
	}

	repo := s.repomanager.Shares(s.db)

	share, err := repo.GetByID(ctx, owner, shareID)
	if err != nil {
		return nil, err
	}

	if in.Permissions != nil {
		if in.Permissions.CanView != nil {
			share.Permissions.CanView = *in.Permissions.CanView
		}
		if in.Permissions.CanEdit != nil {
			share.Permissions.CanEdit = *in.Permissions.CanEdit
		}
		if in.Permissions.CanShare != nil {
			share.Permissions.CanShare = *in.Permissions.CanShare
		}
	}

	if in.AccessLevel != nil {
		if !validAccessLevel(*in.AccessLevel) {
			return nil, fmt.Errorf("%w: unknown access level %q", common.ErrorInvalidArgument, *in.AccessLevel)
		}
		share.AccessLevel = *in.AccessLevel
	}

	if in.ClearExpiry {
		share.ExpiresAt = nil
	} else if in.ExpiresAt != nil {
		share.ExpiresAt = in.ExpiresAt
	}

	if in.ClearPassword {
		share.PasswordHash = nil
	} else if in.Password != nil && *in.Password != "" {
		hash, err := hashSharePassword(*in.Password)
		if err != nil {
			return nil, err
		}
		share.PasswordHash = hash
	}

	if err := repo.Update(ctx, share); err != nil {
		return nil, fmt.Errorf("error updating share: %w", err)
	}

	return share, nil
}

// Delete removes one of the caller's share links. The shared node itself
// is untouched.
func (s *ShareService) Delete(ctx context.Context, owner, shareID string) error {
	if err := validateID(shareID); err != nil {
		return err
	}

	return s.repomanager.Shares(s.db).Delete(ctx, owner, shareID)
}

// ValidateToken resolves a share token and checks expiry and password.
// Outcomes: ErrorNotFound (unknown token or missing node), ErrorForbidden
// (expired), ErrorPasswordRequired (password set, none supplied),
// ErrorUnauthorized (wrong password), or a ShareAccess binding the share
// and its node to the rest of the request.
func (s *ShareService) ValidateToken(ctx context.Context, token, suppliedPassword string) (*ShareAccess, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: share token is required", common.ErrorInvalidArgument)
	}

	share, err := s.repomanager.Shares(s.db).GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if share.Expired(time.Now()) {
		return nil, fmt.Errorf("%w: share link has expired", common.ErrorForbidden)
	}

	node, err := s.repomanager.Nodes(s.db).GetByID(ctx, share.NodeID)
	if err != nil {
		return nil, err
	}
	if node.IsDeleted {
		return nil, common.ErrorNotFound
	}

	if share.HasPassword() {
		if suppliedPassword == "" {
			return nil, common.ErrorPasswordRequired
		}
		if bcrypt.CompareHashAndPassword(share.PasswordHash, []byte(suppliedPassword)) != nil {
			return nil, fmt.Errorf("%w: invalid password", common.ErrorUnauthorized)
		}
	}

	return &ShareAccess{Share: share, Node: node}, nil
}

// RequireEditPermission fails with Forbidden unless the validated share
// grants edit access. Must only be called after ValidateToken.
func RequireEditPermission(access *ShareAccess) error {
	if !access.Share.Permissions.CanEdit {
		return fmt.Errorf("%w: edit permission required", common.ErrorForbidden)
	}
	return nil
}

// SharedMeta returns the public metadata of the shared resource.
func (s *ShareService) SharedMeta(access *ShareAccess) *SharedMeta {
	return &SharedMeta{
		ID:          access.Node.ID,
		Name:        access.Node.Name,
		Type:        access.Node.Type,
		Size:        access.Node.Size,
		MimeType:    access.Node.MimeType,
		CreatedAt:   access.Node.CreatedAt,
		UpdatedAt:   access.Node.UpdatedAt,
		Permissions: access.Share.Permissions,
		AccessLevel: access.Share.AccessLevel,
		HasPassword: access.Share.HasPassword(),
	}
}

// SharedList pages through the children of a shared folder. Scoping uses
// the node's owner, never the visitor; the token cannot escape the shared
// node's subtree except downward.
func (s *ShareService) SharedList(ctx context.Context, access *ShareAccess, page, limit int) (*SharedFolderPage, error) {
	node := access.Node
	if !node.IsFolder() {
		return nil, fmt.Errorf("%w: shared resource is not a folder", common.ErrorInvalidArgument)
	}

	page, limit = normalizePaging(page, limit)

	parentID := node.ID
	items, total, err := s.repomanager.Nodes(s.db).ListChildren(ctx, nodes.ChildrenQuery{
		Owner:    node.Owner,
		ParentID: &parentID,
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("error listing shared folder: %w", err)
	}

	return &SharedFolderPage{
		ParentID:    node.ID,
		ParentName:  node.Name,
		Items:       items,
		CurrentPage: page,
		TotalPages:  totalPages(total, limit),
		TotalItems:  total,
	}, nil
}

// SharedDownload returns a presigned download URL for a shared file.
// Requires the view permission.
func (s *ShareService) SharedDownload(ctx context.Context, access *ShareAccess) (string, error) {
	if !access.Share.Permissions.CanView {
		return "", fmt.Errorf("%w: view permission required", common.ErrorForbidden)
	}
	if !access.Node.IsFile() {
		return "", fmt.Errorf("%w: shared resource is not a file", common.ErrorInvalidArgument)
	}

	url, err := s.store.PresignGet(ctx, access.Node.StorageKey, access.Node.Name)
	if err != nil {
		return "", fmt.Errorf("error presigning download: %w", err)
	}

	return url, nil
}

// sharedTargetFolder resolves where token-scoped creations land: the
// shared folder itself, or the parent folder when a single file is shared.
func sharedTargetFolder(node *models.Node) (string, error) {
	if node.IsFolder() {
		return node.ID, nil
	}
	if node.ParentID == nil {
		return "", fmt.Errorf("%w: cannot create entries at this location", common.ErrorInvalidArgument)
	}
	return *node.ParentID, nil
}

// SharedUploadIntent registers a file uploaded through a share link and
// returns a presigned upload URL. The created node belongs to the node's
// owner, not the visitor, so contributions land in the owner's namespace;
// the storage key is derived from the owner id for the same reason.
func (s *ShareService) SharedUploadIntent(ctx context.Context, access *ShareAccess, name, mimeType string, size int64) (*UploadIntent, error) {
	if err := RequireEditPermission(access); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if mimeType == "" {
		return nil, fmt.Errorf("%w: mimeType is required", common.ErrorInvalidArgument)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive", common.ErrorInvalidArgument)
	}

	targetID, err := sharedTargetFolder(access.Node)
	if err != nil {
		return nil, err
	}

	owner := access.Node.Owner
	repo := s.repomanager.Nodes(s.db)

	finalName := name
	exists, err := repo.SiblingExists(ctx, owner, &targetID, models.NodeTypeFile, name, "")
	if err != nil {
		return nil, fmt.Errorf("error checking siblings: %w", err)
	}
	if exists {
		finalName = storage.UniqueVariant(name)
	}

	parentPath, err := parentLogicalPath(ctx, repo, &targetID)
	if err != nil {
		return nil, fmt.Errorf("error resolving parent path: %w", err)
	}

	file := &models.Node{
		Name:       finalName,
		Type:       models.NodeTypeFile,
		Owner:      owner,
		ParentID:   &targetID,
		StorageKey: storage.DeriveKey(owner, finalName, parentPath),
		Size:       size,
		MimeType:   mimeType,
	}

	if err := repo.Create(ctx, file); err != nil {
		if !errors.Is(err, common.ErrorConflict) {
			return nil, err
		}
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

// SharedCreateFolder creates a folder through a share link, owned by the
// node's owner.
func (s *ShareService) SharedCreateFolder(ctx context.Context, access *ShareAccess, name string) (*models.Node, error) {
	if err := RequireEditPermission(access); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	targetID, err := sharedTargetFolder(access.Node)
	if err != nil {
		return nil, err
	}

	owner := access.Node.Owner
	repo := s.repomanager.Nodes(s.db)

	exists, err := repo.SiblingExists(ctx, owner, &targetID, models.NodeTypeFolder, name, "")
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
		ParentID: &targetID,
	}
	if err := repo.Create(ctx, folder); err != nil {
		return nil, err
	}

	return folder, nil
}
