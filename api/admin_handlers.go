package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"vialactivo/pkg/ontology"
	"vialactivo/pkg/shared"
)

type loginResponse struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handlers) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	var req ontology.RegisterAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		h.sendDecodeError(w, r, err)
		return
	}

	admin, err := h.admins.Register(r.Context(), req.Email)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	sendSuccess(w, http.StatusCreated, admin)
}

// LoginAdmin issues a token when ?email= names a registered admin. Unknown
// emails get 401 instead of 404.
func (h *Handlers) LoginAdmin(w http.ResponseWriter, r *http.Request) {
	admin, err := h.admins.FindByEmail(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || shared.IsValidation(err) {
			sendError(w, http.StatusUnauthorized, shared.CodeUnauthorized, "Invalid credentials", nil)
			return
		}
		h.sendServiceError(w, r, err)
		return
	}

	token, expires, err := h.issuer.Issue(admin.Email)
	if err != nil {
		h.logger.Error("Failed to issue admin token", zap.Error(err))
		sendError(w, http.StatusInternalServerError, shared.CodeInternal, "Failed to issue token", nil)
		return
	}

	sendSuccess(w, http.StatusOK, loginResponse{
		Email:     admin.Email,
		Token:     token,
		ExpiresAt: expires.UTC(),
	})
}
