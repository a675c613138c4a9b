package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmaksimov/skydrive/internal/common"
	"github.com/dmaksimov/skydrive/internal/server/auth"
	"github.com/dmaksimov/skydrive/internal/server/services"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// withAuth verifies the Bearer access token and puts the verified user id
// on the request context.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AccessTokenHeaderName)
		if !strings.HasPrefix(header, "Bearer ") {
			s.jsonError(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" {
			s.jsonError(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		userID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
		if err != nil {
			s.jsonError(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next(w, r.WithContext(ctx))
	}
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// shareHandler receives the validated share access resolved from the
// request token.
type shareHandler func(w http.ResponseWriter, r *http.Request, access *services.ShareAccess)

// withShare validates the share token in the path. The optional password
// is taken from the "password" query parameter or the X-Share-Password
// header.
func (s *Server) withShare(next shareHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.PathValue("token")

		password := r.URL.Query().Get("password")
		if password == "" {
			password = r.Header.Get("X-Share-Password")
		}

		access, err := s.shares.ValidateToken(r.Context(), token, password)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		next(w, r, access)
	}
}
