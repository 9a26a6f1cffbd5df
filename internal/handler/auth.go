package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mercadino/storefront/internal/auth"
	"github.com/mercadino/storefront/internal/session"
	"github.com/mercadino/storefront/internal/storage/postgres"
)

// userKey is the context key for the authenticated user.
type userKey struct{}

// userFrom returns the authenticated user stored by requireSession.
func userFrom(ctx context.Context) session.User {
	u, _ := ctx.Value(userKey{}).(session.User)
	return u
}

// requireSession resolves the bearer token to a user and stores it in the
// request context. Missing or dead sessions get a 401 carrying the login
// redirect with the intended destination preserved.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		u, err := h.sessions.Get(r.Context(), token)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				zctx.From(r.Context()).Error("session lookup", zap.Error(err))
				writeError(r.Context(), w, http.StatusInternalServerError, "internal error")
				return
			}
			writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
				Code:     http.StatusUnauthorized,
				Message:  "authentication required",
				Redirect: "/login?redirect=" + r.URL.Path,
			})
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, *u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, prefix) {
		return header[len(prefix):]
	}
	return ""
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  session.User `json:"user"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			writeError(r.Context(), w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeDomainError(r.Context(), w, err)
		return
	}
	if !auth.VerifyPassword(req.Password, record.PasswordHash, h.pepper) {
		writeError(r.Context(), w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	u := session.User{ID: record.ID, Email: record.Email, Name: record.Name}
	token, err := h.sessions.Create(r.Context(), u)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, loginResponse{Token: token, User: u})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), bearerToken(r)); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
