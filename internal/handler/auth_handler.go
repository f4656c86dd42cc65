package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/confman/internal/middleware"
	"github.com/hitoshi/confman/internal/model"
)

// AuthService は認証ハンドラーが必要とするサービスインターフェース。
type AuthService interface {
	CurrentUser(ctx context.Context, caller model.Principal) (*model.User, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	SessionCookieName string
	CookieDomain      string
	CookieSecure      bool
}

// AuthHandler はセッション関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthService
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthService, config AuthHandlerConfig) *AuthHandler {
	if config.SessionCookieName == "" {
		config.SessionCookieName = middleware.DefaultSessionCookieName
	}
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// meResponse は現在のユーザー情報。
type meResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Verified  bool   `json:"verified"`
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFromContext(r.Context())
	user, err := h.service.CurrentUser(r.Context(), caller)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Name:      user.Contact().DisplayName(),
		Role:      string(caller.Role()),
		Verified:  user.Verified,
	})
}

// Logout はセッションを破棄し、セッションCookieをクリアする。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), middleware.SessionIDFromContext(r.Context())); err != nil {
		// ログアウトに失敗してもCookieはクリアする
		slog.Error("failed to logout", slog.String("error", err.Error()))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.config.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
