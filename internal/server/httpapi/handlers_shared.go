package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dmaksimov/skydrive/internal/server/services"
)

func (s *Server) handleSharedMeta(w http.ResponseWriter, r *http.Request, access *services.ShareAccess) {
	meta := s.shares.SharedMeta(access)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":        meta.ID,
		"name":      meta.Name,
		"type":      meta.Type,
		"size":      meta.Size,
		"mimeType":  meta.MimeType,
		"createdAt": meta.CreatedAt,
		"updatedAt": meta.UpdatedAt,
		"permissions": permissionsJSON{
			CanView:  meta.Permissions.CanView,
			CanEdit:  meta.Permissions.CanEdit,
			CanShare: meta.Permissions.CanShare,
		},
		"accessLevel": meta.AccessLevel,
		"hasPassword": meta.HasPassword,
	})
}

func (s *Server) handleSharedList(w http.ResponseWriter, r *http.Request, access *services.ShareAccess) {
	page, limit := pagingParams(r)

	result, err := s.shares.SharedList(r.Context(), access, page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"parentId":    result.ParentID,
		"parentName":  result.ParentName,
		"items":       toNodeListJSON(result.Items),
		"currentPage": result.CurrentPage,
		"totalPages":  result.TotalPages,
		"totalItems":  result.TotalItems,
	})
}

func (s *Server) handleSharedDownload(w http.ResponseWriter, r *http.Request, access *services.ShareAccess) {
	url, err := s.shares.SharedDownload(r.Context(), access)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"downloadUrl": url})
}

func (s *Server) handleSharedUploadURL(w http.ResponseWriter, r *http.Request, access *services.ShareAccess) {
	var req struct {
		Name     string `json:"name"`
		MimeType string `json:"mimeType"`
		Size     int64  `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	intent, err := s.shares.SharedUploadIntent(r.Context(), access, req.Name, req.MimeType, req.Size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"file":      toNodeJSON(intent.Node),
		"uploadUrl": intent.UploadURL,
	})
}

func (s *Server) handleSharedCreateFolder(w http.ResponseWriter, r *http.Request, access *services.ShareAccess) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	node, err := s.shares.SharedCreateFolder(r.Context(), access, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toNodeJSON(node))
}
