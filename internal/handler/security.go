package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	token, err := h.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signInResponse{Message: "SignIn successful", Token: token})
}

// requireAuth rejects requests without a valid "Authorization: Bearer"
// token and stores the token claims in the request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			writeError(w, http.StatusUnauthorized, "Not authorized, no token")
			return
		}

		claims, err := h.Auth.Authenticate(strings.TrimSpace(token))
		if err != nil {
			zctx.From(r.Context()).Debug("Rejected token", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}

		ctx := auth.WithClaims(r.Context(), claims)
		ctx = zctx.With(ctx, zap.String("user_id", claims.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
