package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func pagingParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}

// parentIDParam interprets the parentId query value: absent, "null", and
// "root" all mean the root level.
func parentIDParam(r *http.Request) *string {
	v := r.URL.Query().Get("parentId")
	if v == "" || v == "null" || v == "root" {
		return nil
	}
	return &v
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	page, limit := pagingParams(r)

	result, err := s.nodes.List(r.Context(), userID(r), parentIDParam(r), r.URL.Query().Get("search"), page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toNodePageJSON(result))
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.nodes.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toNodeJSON(node))
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string  `json:"name"`
		ParentID *string `json:"parentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	folder, err := s.nodes.CreateFolder(r.Context(), userID(r), req.Name, req.ParentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toNodeJSON(folder))
}

func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string  `json:"filename"`
		MimeType string  `json:"mimeType"`
		Size     int64   `json:"size"`
		ParentID *string `json:"parentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	intent, err := s.nodes.CreateFileIntent(r.Context(), userID(r), req.Filename, req.MimeType, req.Size, req.ParentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"file":      toNodeJSON(intent.Node),
		"uploadUrl": intent.UploadURL,
	})
}

func (s *Server) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.nodes.DownloadURL(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"downloadUrl": url})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	node, err := s.nodes.Rename(r.Context(), userID(r), r.PathValue("id"), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toNodeJSON(node))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DestinationFolderID *string `json:"destinationFolderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	node, err := s.nodes.Move(r.Context(), userID(r), r.PathValue("id"), req.DestinationFolderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toNodeJSON(node))
}

func (s *Server) handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.nodes.SoftDelete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	result, err := s.nodes.Restore(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"node":               toNodeJSON(result.Node),
		"hasDeletedChildren": result.HasDeletedChildren,
	})
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if err := s.nodes.Purge(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
