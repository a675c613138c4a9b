package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmaksimov/skydrive/internal/common"
	"github.com/dmaksimov/skydrive/internal/server/models"
	"github.com/dmaksimov/skydrive/internal/server/services"
)

type errorResponse struct {
	Error            string `json:"error"`
	RequiresPassword bool   `json:"requiresPassword,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(context.Background(), "failed to encode response", "error", err.Error())
	}
}

func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, errorResponse{Error: message})
}

// writeError maps service errors to HTTP statuses. Unexpected errors are
// logged and surfaced as a generic 500 without internal detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorPasswordRequired):
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Password required", RequiresPassword: true})
	case errors.Is(err, common.ErrorUnauthorized):
		s.jsonError(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, common.ErrorForbidden):
		s.jsonError(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, common.ErrorNotFound):
		s.jsonError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, common.ErrorConflict):
		s.jsonError(w, "Already exists", http.StatusConflict)
	case errors.Is(err, common.ErrorInvalidArgument):
		s.jsonError(w, "Invalid request", http.StatusBadRequest)
	default:
		s.logger.Error(r.Context(), "internal error", "path", r.URL.Path, "error", err.Error())
		s.jsonError(w, "Server error", http.StatusInternalServerError)
	}
}

// nodeJSON is the wire representation of a node.
type nodeJSON struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Owner     string  `json:"owner"`
	Parent    *string `json:"parent"`
	Size      int64   `json:"size"`
	MimeType  string  `json:"mimeType,omitempty"`
	IsDeleted bool    `json:"isDeleted"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
}

func toNodeJSON(n *models.Node) *nodeJSON {
	if n == nil {
		return nil
	}
	return &nodeJSON{
		ID:        n.ID,
		Name:      n.Name,
		Type:      string(n.Type),
		Owner:     n.Owner,
		Parent:    n.ParentID,
		Size:      n.Size,
		MimeType:  n.MimeType,
		IsDeleted: n.IsDeleted,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
		UpdatedAt: n.UpdatedAt.Format(time.RFC3339),
	}
}

func toNodeListJSON(items []*models.Node) []*nodeJSON {
	result := make([]*nodeJSON, 0, len(items))
	for _, n := range items {
		result = append(result, toNodeJSON(n))
	}
	return result
}

// shareJSON is the wire representation of a share link.
type shareJSON struct {
	ID          string          `json:"id"`
	Token       string          `json:"token"`
	Node        *nodeJSON       `json:"node,omitempty"`
	NodeID      string          `json:"nodeId"`
	Permissions permissionsJSON `json:"permissions"`
	AccessLevel string          `json:"accessLevel"`
	ExpiresAt   *string         `json:"expiresAt"`
	HasPassword bool            `json:"hasPassword"`
	CreatedBy   string          `json:"createdBy"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
}

type permissionsJSON struct {
	CanView  bool `json:"canView"`
	CanEdit  bool `json:"canEdit"`
	CanShare bool `json:"canShare"`
}

func toShareJSON(share *models.ShareLink, node *models.Node) *shareJSON {
	out := &shareJSON{
		ID:     share.ID,
		Token:  share.Token,
		Node:   toNodeJSON(node),
		NodeID: share.NodeID,
		Permissions: permissionsJSON{
			CanView:  share.Permissions.CanView,
			CanEdit:  share.Permissions.CanEdit,
			CanShare: share.Permissions.CanShare,
		},
		AccessLevel: string(share.AccessLevel),
		HasPassword: share.HasPassword(),
		CreatedBy:   share.CreatedBy,
		CreatedAt:   share.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   share.UpdatedAt.Format(time.RFC3339),
	}
	if share.ExpiresAt != nil {
		v := share.ExpiresAt.Format(time.RFC3339)
		out.ExpiresAt = &v
	}
	return out
}

type pageJSON struct {
	Items       any   `json:"items"`
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalItems  int64 `json:"totalItems"`
}

func toNodePageJSON(p *services.NodePage) pageJSON {
	return pageJSON{
		Items:       toNodeListJSON(p.Items),
		CurrentPage: p.CurrentPage,
		TotalPages:  p.TotalPages,
		TotalItems:  p.TotalItems,
	}
}
