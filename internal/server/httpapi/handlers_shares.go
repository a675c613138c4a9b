package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dmaksimov/skydrive/internal/server/models"
	"github.com/dmaksimov/skydrive/internal/server/services"
)

type permissionsReq struct {
	CanView  *bool `json:"canView"`
	CanEdit  *bool `json:"canEdit"`
	CanShare *bool `json:"canShare"`
}

func (p *permissionsReq) toModel() *models.SharePermissions {
	if p == nil {
		return nil
	}
	out := &models.SharePermissions{CanView: true}
	if p.CanView != nil {
		out.CanView = *p.CanView
	}
	if p.CanEdit != nil {
		out.CanEdit = *p.CanEdit
	}
	if p.CanShare != nil {
		out.CanShare = *p.CanShare
	}
	return out
}

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodeID      string          `json:"nodeId"`
		Permissions *permissionsReq `json:"permissions"`
		AccessLevel string          `json:"accessLevel"`
		ExpiresAt   *time.Time      `json:"expiresAt"`
		Password    string          `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	share, err := s.shares.Create(r.Context(), userID(r), services.CreateShareInput{
		NodeID:      req.NodeID,
		Permissions: req.Permissions.toModel(),
		AccessLevel: models.AccessLevel(req.AccessLevel),
		ExpiresAt:   req.ExpiresAt,
		Password:    req.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"share":    toShareJSON(share, nil),
		"shareUrl": s.shares.ShareURL(share.Token),
	})
}

func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
	page, limit := pagingParams(r)

	result, err := s.shares.List(r.Context(), userID(r), page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items := make([]*shareJSON, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, toShareJSON(item.Share, item.Node))
	}

	s.writeJSON(w, http.StatusOK, pageJSON{
		Items:       items,
		CurrentPage: result.CurrentPage,
		TotalPages:  result.TotalPages,
		TotalItems:  result.TotalItems,
	})
}

func (s *Server) handleGetShare(w http.ResponseWriter, r *http.Request) {
	result, err := s.shares.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toShareJSON(result.Share, result.Node))
}

// nullLiteral distinguishes an explicit JSON null (clear the field) from an
// absent field (keep the current value).
var nullLiteral = []byte("null")

func (s *Server) handleUpdateShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Permissions *permissionsReq `json:"permissions"`
		AccessLevel *string         `json:"accessLevel"`
		ExpiresAt   json.RawMessage `json:"expiresAt"`
		Password    json.RawMessage `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	in := services.UpdateShareInput{}

	if req.Permissions != nil {
		in.Permissions = &services.SharePermissionsPatch{
			CanView:  req.Permissions.CanView,
			CanEdit:  req.Permissions.CanEdit,
			CanShare: req.Permissions.CanShare,
		}
	}

	if req.AccessLevel != nil {
		level := models.AccessLevel(*req.AccessLevel)
		in.AccessLevel = &level
	}

	if len(req.ExpiresAt) > 0 {
		if bytes.Equal(req.ExpiresAt, nullLiteral) {
			in.ClearExpiry = true
		} else {
			var t time.Time
			if err := json.Unmarshal(req.ExpiresAt, &t); err != nil {
				s.jsonError(w, "Invalid expiresAt", http.StatusBadRequest)
				return
			}
			in.ExpiresAt = &t
		}
	}

	if len(req.Password) > 0 {
		if bytes.Equal(req.Password, nullLiteral) {
			in.ClearPassword = true
		} else {
			var p string
			if err := json.Unmarshal(req.Password, &p); err != nil {
				s.jsonError(w, "Invalid password", http.StatusBadRequest)
				return
			}
			in.Password = &p
		}
	}

	share, err := s.shares.Update(r.Context(), userID(r), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, toShareJSON(share, nil))
}

func (s *Server) handleDeleteShare(w http.ResponseWriter, r *http.Request) {
	if err := s.shares.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
