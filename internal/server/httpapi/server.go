// Package httpapi exposes the node and share services over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmaksimov/skydrive/internal/logging"
	"github.com/dmaksimov/skydrive/internal/server/models"
	"github.com/dmaksimov/skydrive/internal/server/services"
)

// nodeSvc is the slice of NodeService the handlers use.
type nodeSvc interface {
	List(ctx context.Context, owner string, parentID *string, search string, page, limit int) (*services.NodePage, error)
	Get(ctx context.Context, owner, id string) (*models.Node, error)
	CreateFolder(ctx context.Context, owner, name string, parentID *string) (*models.Node, error)
	CreateFileIntent(ctx context.Context, owner, name, mimeType string, size int64, parentID *string) (*services.UploadIntent, error)
	DownloadURL(ctx context.Context, owner, id string) (string, error)
	Rename(ctx context.Context, owner, id, newName string) (*models.Node, error)
	Move(ctx context.Context, owner, id string, destinationID *string) (*models.Node, error)
	SoftDelete(ctx context.Context, owner, id string) error
	Restore(ctx context.Context, owner, id string) (*services.RestoreResult, error)
	Purge(ctx context.Context, owner, id string) error
}

// shareSvc is the slice of ShareService the handlers use.
type shareSvc interface {
	Create(ctx context.Context, owner string, in services.CreateShareInput) (*models.ShareLink, error)
	List(ctx context.Context, owner string, page, limit int) (*services.SharePage, error)
	Get(ctx context.Context, owner, shareID string) (*services.ShareWithNode, error)
	Update(ctx context.Context, owner, shareID string, in services.UpdateShareInput) (*models.ShareLink, error)
	Delete(ctx context.Context, owner, shareID string) error
	ShareURL(token string) string
	ValidateToken(ctx context.Context, token, suppliedPassword string) (*services.ShareAccess, error)
	SharedMeta(access *services.ShareAccess) *services.SharedMeta
	SharedList(ctx context.Context, access *services.ShareAccess, page, limit int) (*services.SharedFolderPage, error)
	SharedDownload(ctx context.Context, access *services.ShareAccess) (string, error)
	SharedUploadIntent(ctx context.Context, access *services.ShareAccess, name, mimeType string, size int64) (*services.UploadIntent, error)
	SharedCreateFolder(ctx context.Context, access *services.ShareAccess, name string) (*models.Node, error)
}

// Server is the HTTP front of the node and share services.
type Server struct {
	address   string
	mux       *http.ServeMux
	nodes     nodeSvc
	shares    shareSvc
	logger    logging.Logger
	jwtSecret []byte
}

// NewServer constructs a Server and registers its routes.
func NewServer(address string, logger logging.Logger, nodes nodeSvc, shares shareSvc, secretKey string) *Server {
	s := &Server{
		address:   address,
		mux:       http.NewServeMux(),
		nodes:     nodes,
		shares:    shares,
		logger:    logger.With("module", "http_server"),
		jwtSecret: []byte(secretKey),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Owner-scoped namespace operations.
	s.mux.HandleFunc("GET /api/files", s.withAuth(s.handleListNodes))
	s.mux.HandleFunc("GET /api/files/{id}", s.withAuth(s.handleGetNode))
	s.mux.HandleFunc("POST /api/folders", s.withAuth(s.handleCreateFolder))
	s.mux.HandleFunc("POST /api/files/upload-url", s.withAuth(s.handleUploadURL))
	s.mux.HandleFunc("GET /api/files/{id}/download", s.withAuth(s.handleDownloadURL))
	s.mux.HandleFunc("PUT /api/files/{id}/rename", s.withAuth(s.handleRename))
	s.mux.HandleFunc("PUT /api/files/{id}/move", s.withAuth(s.handleMove))
	s.mux.HandleFunc("DELETE /api/files/{id}", s.withAuth(s.handleSoftDelete))
	s.mux.HandleFunc("POST /api/files/{id}/restore", s.withAuth(s.handleRestore))
	s.mux.HandleFunc("DELETE /api/files/{id}/permanent", s.withAuth(s.handlePurge))

	// Share-link management, scoped to the creator.
	s.mux.HandleFunc("POST /api/shares", s.withAuth(s.handleCreateShare))
	s.mux.HandleFunc("GET /api/shares", s.withAuth(s.handleListShares))
	s.mux.HandleFunc("GET /api/shares/{id}", s.withAuth(s.handleGetShare))
	s.mux.HandleFunc("PUT /api/shares/{id}", s.withAuth(s.handleUpdateShare))
	s.mux.HandleFunc("DELETE /api/shares/{id}", s.withAuth(s.handleDeleteShare))

	// Public, token-scoped access. No authentication.
	s.mux.HandleFunc("GET /shared/{token}", s.withShare(s.handleSharedMeta))
	s.mux.HandleFunc("GET /shared/{token}/files", s.withShare(s.handleSharedList))
	s.mux.HandleFunc("GET /shared/{token}/download", s.withShare(s.handleSharedDownload))
	s.mux.HandleFunc("POST /shared/{token}/upload-url", s.withShare(s.handleSharedUploadURL))
	s.mux.HandleFunc("POST /shared/{token}/folders", s.withShare(s.handleSharedCreateFolder))
}

// ServeHTTP makes the server usable directly as a handler in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err.Error())
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
