package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/dmaksimov/skydrive/internal/common"
	"github.com/dmaksimov/skydrive/internal/dbx"
	"github.com/dmaksimov/skydrive/internal/logging"
	sc "github.com/dmaksimov/skydrive/internal/server/config"
	"github.com/dmaksimov/skydrive/internal/server/models"
	"github.com/dmaksimov/skydrive/internal/server/repositories/nodes"
	"github.com/dmaksimov/skydrive/internal/server/repositories/shares"
)

// fakeNodesRepo is an in-memory nodes.Repository with the same visible
// semantics as the Postgres implementation, including sibling-conflict
// detection on insert and update.
type fakeNodesRepo struct {
	items map[string]*models.Node

	createErr error
	updateErr error
	deleteErr map[string]error
	// conflictsOnCreate makes the next N Create calls fail with Conflict
	// after validation, simulating a lost unique-index race.
	conflictsOnCreate int
}

func newFakeNodesRepo() *fakeNodesRepo {
	return &fakeNodesRepo{
		items:     make(map[string]*models.Node),
		deleteErr: make(map[string]error),
	}
}

func (r *fakeNodesRepo) hasLiveSibling(owner string, parentID *string, typ models.NodeType, name, excludeID string) bool {
	for _, n := range r.items {
		if n.ID == excludeID || n.IsDeleted || n.Owner != owner || n.Type != typ || n.Name != name {
			continue
		}
		if sameParent(n.ParentID, parentID) {
			return true
		}
	}
	return false
}

// storageKeyTaken mirrors the unique storage-key index: keys are reserved
// by every row holding one, soft-deleted rows included.
func (r *fakeNodesRepo) storageKeyTaken(key, excludeID string) bool {
	if key == "" {
		return false
	}
	for _, n := range r.items {
		if n.ID != excludeID && n.StorageKey == key {
			return true
		}
	}
	return false
}

func (r *fakeNodesRepo) Create(_ context.Context, node *models.Node) error {
	if r.createErr != nil {
		return r.createErr
	}
	if r.conflictsOnCreate > 0 {
		r.conflictsOnCreate--
		return common.ErrorConflict
	}
	if r.hasLiveSibling(node.Owner, node.ParentID, node.Type, node.Name, "") {
		return common.ErrorConflict
	}
	if r.storageKeyTaken(node.StorageKey, "") {
		return common.ErrorConflict
	}

	node.ID = uuid.NewString()
	node.CreatedAt = time.Now()
	node.UpdatedAt = node.CreatedAt

	clone := *node
	r.items[node.ID] = &clone
	return nil
}

func (r *fakeNodesRepo) GetByID(_ context.Context, id string) (*models.Node, error) {
	n, ok := r.items[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	clone := *n
	return &clone, nil
}

func (r *fakeNodesRepo) ListChildren(_ context.Context, q nodes.ChildrenQuery) ([]*models.Node, int64, error) {
	var matched []*models.Node
	for _, n := range r.items {
		if n.IsDeleted || n.Owner != q.Owner || !sameParent(n.ParentID, q.ParentID) {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(n.Name), strings.ToLower(q.Search)) {
			continue
		}
		clone := *n
		matched = append(matched, &clone)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Type != matched[j].Type {
			return matched[i].Type == models.NodeTypeFolder
		}
		return matched[i].Name < matched[j].Name
	})

	total := int64(len(matched))
	start := (q.Page - 1) * q.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *fakeNodesRepo) SiblingExists(_ context.Context, owner string, parentID *string, typ models.NodeType, name string, excludeID string) (bool, error) {
	return r.hasLiveSibling(owner, parentID, typ, name, excludeID), nil
}

func (r *fakeNodesRepo) Update(_ context.Context, node *models.Node) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.items[node.ID]
	if !ok || stored.Owner != node.Owner {
		return common.ErrorNotFound
	}
	if r.storageKeyTaken(node.StorageKey, node.ID) {
		return common.ErrorConflict
	}
	node.UpdatedAt = time.Now()
	clone := *node
	r.items[node.ID] = &clone
	return nil
}

func (r *fakeNodesRepo) MarkDeletedByParent(_ context.Context, owner string, parentID string) ([]string, error) {
	var folderIDs []string
	for _, n := range r.items {
		if n.IsDeleted || n.Owner != owner || n.ParentID == nil || *n.ParentID != parentID {
			continue
		}
		n.IsDeleted = true
		if n.IsFolder() {
			folderIDs = append(folderIDs, n.ID)
		}
	}
	return folderIDs, nil
}

func (r *fakeNodesRepo) SelectChildren(_ context.Context, owner string, parentID string) ([]*models.Node, error) {
	var result []*models.Node
	for _, n := range r.items {
		if n.Owner != owner || n.ParentID == nil || *n.ParentID != parentID {
			continue
		}
		clone := *n
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *fakeNodesRepo) CountDeletedChildren(_ context.Context, owner string, parentID string) (int64, error) {
	var count int64
	for _, n := range r.items {
		if n.IsDeleted && n.Owner == owner && n.ParentID != nil && *n.ParentID == parentID {
			count++
		}
	}
	return count, nil
}

func (r *fakeNodesRepo) Delete(_ context.Context, owner string, id string) error {
	if err := r.deleteErr[id]; err != nil {
		return err
	}
	n, ok := r.items[id]
	if !ok || n.Owner != owner {
		return common.ErrorNotFound
	}
	delete(r.items, id)
	return nil
}

// mustAdd seeds a node directly, bypassing conflict checks.
func (r *fakeNodesRepo) mustAdd(t *testing.T, node *models.Node) *models.Node {
	t.Helper()
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	now := time.Now()
	node.CreatedAt = now
	node.UpdatedAt = now
	clone := *node
	r.items[node.ID] = &clone
	return node
}

// fakeSharesRepo is an in-memory shares.Repository.
type fakeSharesRepo struct {
	items map[string]*models.ShareLink

	createErr error
	updateErr error
}

func newFakeSharesRepo() *fakeSharesRepo {
	return &fakeSharesRepo{items: make(map[string]*models.ShareLink)}
}

func (r *fakeSharesRepo) Create(_ context.Context, share *models.ShareLink) error {
	if r.createErr != nil {
		return r.createErr
	}
	for _, s := range r.items {
		if s.Token == share.Token {
			return common.ErrorConflict
		}
	}
	share.ID = uuid.NewString()
	share.CreatedAt = time.Now()
	share.UpdatedAt = share.CreatedAt
	clone := *share
	r.items[share.ID] = &clone
	return nil
}

func (r *fakeSharesRepo) GetByID(_ context.Context, createdBy string, id string) (*models.ShareLink, error) {
	s, ok := r.items[id]
	if !ok || s.CreatedBy != createdBy {
		return nil, common.ErrorNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *fakeSharesRepo) GetByToken(_ context.Context, token string) (*models.ShareLink, error) {
	for _, s := range r.items {
		if s.Token == token {
			clone := *s
			return &clone, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeSharesRepo) ListByCreator(_ context.Context, createdBy string, page, limit int) ([]*models.ShareLink, int64, error) {
	var matched []*models.ShareLink
	for _, s := range r.items {
		if s.CreatedBy == createdBy {
			clone := *s
			matched = append(matched, &clone)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *fakeSharesRepo) Update(_ context.Context, share *models.ShareLink) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.items[share.ID]
	if !ok || stored.CreatedBy != share.CreatedBy {
		return common.ErrorNotFound
	}
	share.UpdatedAt = time.Now()
	clone := *share
	r.items[share.ID] = &clone
	return nil
}

func (r *fakeSharesRepo) Delete(_ context.Context, createdBy string, id string) error {
	s, ok := r.items[id]
	if !ok || s.CreatedBy != createdBy {
		return common.ErrorNotFound
	}
	delete(r.items, id)
	return nil
}

// fakeRepoManager hands back the shared fakes regardless of the DBTX,
// so transactional and plain calls see the same state.
type fakeRepoManager struct {
	nodesRepo  *fakeNodesRepo
	sharesRepo *fakeSharesRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Nodes(dbx.DBTX) nodes.Repository             { return m.nodesRepo }
func (m *fakeRepoManager) Shares(dbx.DBTX) shares.Repository           { return m.sharesRepo }

// fakeStorage records calls and can be told to fail per key.
type fakeStorage struct {
	putCalls    []string
	getCalls    []string
	deleteCalls []string

	presignPutErr error
	presignGetErr error
	deleteErrs    map[string]error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{deleteErrs: make(map[string]error)}
}

func (s *fakeStorage) PresignPut(_ context.Context, key string, _ string) (string, error) {
	if s.presignPutErr != nil {
		return "", s.presignPutErr
	}
	s.putCalls = append(s.putCalls, key)
	return "http://signed/put/" + key, nil
}

func (s *fakeStorage) PresignGet(_ context.Context, key string, _ string) (string, error) {
	if s.presignGetErr != nil {
		return "", s.presignGetErr
	}
	s.getCalls = append(s.getCalls, key)
	return "http://signed/get/" + key, nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	if err := s.deleteErrs[key]; err != nil {
		return err
	}
	s.deleteCalls = append(s.deleteCalls, key)
	return nil
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

type testEnv struct {
	db     *sql.DB
	mock   sqlmock.Sqlmock
	repo   *fakeNodesRepo
	shares *fakeSharesRepo
	store  *fakeStorage
	nodes  *NodeService
	svc    *ShareService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	nodesRepo := newFakeNodesRepo()
	sharesRepo := newFakeSharesRepo()
	store := newFakeStorage()
	rm := &fakeRepoManager{nodesRepo: nodesRepo, sharesRepo: sharesRepo}
	logger := testLogger()

	cfg := &sc.Config{
		SecretKey:     "k",
		PublicBaseURL: "https://drive.example.com",
		PresignExpiry: 15 * time.Minute,
	}

	return &testEnv{
		db:     db,
		mock:   mock,
		repo:   nodesRepo,
		shares: sharesRepo,
		store:  store,
		nodes:  NewNodeService(db, rm, store, logger),
		svc:    NewShareService(db, rm, store, cfg, logger),
	}
}

// seedFolder and seedFile build tree fixtures.
func (e *testEnv) seedFolder(t *testing.T, owner, name string, parentID *string) *models.Node {
	t.Helper()
	return e.repo.mustAdd(t, &models.Node{
		Name: name, Type: models.NodeTypeFolder, Owner: owner, ParentID: parentID,
	})
}

func (e *testEnv) seedFile(t *testing.T, owner, name string, parentID *string, storageKey string) *models.Node {
	t.Helper()
	return e.repo.mustAdd(t, &models.Node{
		Name: name, Type: models.NodeTypeFile, Owner: owner, ParentID: parentID,
		StorageKey: storageKey, Size: 1, MimeType: "application/octet-stream",
	})
}
