package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/waspershola/hospitech-nexus-sub005/internal/service"
)

type AuthHandler struct {
	Service service.AuthService
	Logger  *slog.Logger
}

func (h AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.login)
	r.Post("/auth/google", h.loginGoogle)
	r.Post("/auth/refresh", h.refresh)
}

func (h AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	res, err := h.Service.Login(r.Context(), service.LoginInput{
		Email:    strings.ToLower(req.Email),
		Password: req.Password,
	})
	if err != nil {
		h.writeAuthFailure(w, err)
		return
	}
	writeAuthResponse(w, res)
}

func (h AuthHandler) loginGoogle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"idToken" validate:"required"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	res, err := h.Service.LoginWithGoogle(r.Context(), service.GoogleLoginInput{IDToken: req.IDToken})
	if err != nil {
		h.writeAuthFailure(w, err)
		return
	}
	writeAuthResponse(w, res)
}

func (h AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	res, err := h.Service.Refresh(r.Context(), service.RefreshInput{RefreshToken: req.RefreshToken})
	if err != nil {
		h.writeAuthFailure(w, err)
		return
	}
	writeAuthResponse(w, res)
}

func (h AuthHandler) writeAuthFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, service.ErrInvalidToken) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if h.Logger != nil {
		h.Logger.Error("sign-in failed", "err", err)
	}
	writeError(w, http.StatusServiceUnavailable, "sign-in unavailable")
}

func writeAuthResponse(w http.ResponseWriter, res *service.AuthResult) {
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        res.AccessToken,
		"refreshToken": res.RefreshToken,
		"expiresAt":    res.ExpiresAt.UTC().Format(time.RFC3339),
		"user": map[string]any{
			"id":        res.Staff.UserID,
			"tenant_id": res.Staff.TenantID,
			"name":      res.Staff.Name,
			"email":     res.Staff.Email,
			"role":      string(res.Staff.Role),
		},
	})
}
