// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/caldash/internal/middleware"
	"github.com/hitoshi/caldash/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分

	// authFailedParam は認証失敗時にフロントエンドへ渡すクエリ値。
	authFailedParam = "auth_failed"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	ResolveSession(ctx context.Context, sessionID string) (*model.User, error)
	Logout(ctx context.Context, sessionID string) error
	RefreshToken(ctx context.Context, user *model.User) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	SuccessURL   string // 認証成功時のリダイレクト先
	FailureURL   string // 認証失敗時のリダイレクト先
	LogoutURL    string // ログアウト後のリダイレクト先
	CookieSecure bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	cookie  *middleware.SessionCookie
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookie *middleware.SessionCookie, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookie:  cookie,
		config:  config,
	}
}

// userResponse はブラウザに返すユーザー情報。トークンは含めない。
type userResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	ExternalID string `json:"externalId"`
}

func toUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		ExternalID: u.GoogleID,
	}
}

// authStatusResponse はGET /auth/statusのレスポンス。
type authStatusResponse struct {
	IsAuthenticated bool          `json:"isAuthenticated"`
	User            *userResponse `json:"user"`
}

// sessionInfoResponse はGET /auth/sessionのレスポンス。
type sessionInfoResponse struct {
	SessionExists   bool          `json:"sessionExists"`
	IsAuthenticated bool          `json:"isAuthenticated"`
	User            *userResponse `json:"user"`
}

// authFailedResponse はGET /auth/failedのレスポンス。
type authFailedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, h.stateCookie(state, oauthStateMaxAge))

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	http.SetCookie(w, h.stateCookie("", -1))
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		h.redirectFailure(w, r)
		return
	}

	// 2. 認可コードの取得（同意拒否時はerrorパラメータのみが返る）
	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Warn("oauth callback without code",
			slog.String("error_param", r.URL.Query().Get("error")),
		)
		h.redirectFailure(w, r)
		return
	}

	// 3. 認証処理
	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeAuthExchangeFailed {
			h.redirectFailure(w, r)
			return
		}
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		middleware.WriteError(w, err)
		return
	}

	// 4. セッションの付け替え（提示された旧セッションは破棄する）
	if oldID, ok := h.cookie.Read(r); ok {
		if err := h.service.Logout(r.Context(), oldID); err != nil {
			slog.Warn("failed to discard previous session", slog.String("error", err.Error()))
		}
	}
	if err := h.cookie.Write(w, session.ID); err != nil {
		slog.Error("failed to write session cookie", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// 5. フロントエンドにリダイレクト
	http.Redirect(w, r, h.config.SuccessURL, http.StatusTemporaryRedirect)
}

// Status は現在の認証状態を返す。未認証でも200を返す。
// GET /auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		slog.Error("failed to check auth status", slog.String("error", err.Error()))
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authStatusResponse{
		IsAuthenticated: user != nil,
		User:            toUserResponse(user),
	})
}

// Session はセッションの状態を返す診断用エンドポイント。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	_, exists := h.cookie.Read(r)

	user, err := h.currentUser(r)
	if err != nil {
		slog.Error("failed to check session", slog.String("error", err.Error()))
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionInfoResponse{
		SessionExists:   exists,
		IsAuthenticated: user != nil,
		User:            toUserResponse(user),
	})
}

// Failed は認証失敗を表す固定レスポンスを返す。
// GET /auth/failed
func (h *AuthHandler) Failed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusUnauthorized, authFailedResponse{
		Success: false,
		Message: "Authentication failed",
	})
}

// User はログイン中のユーザー情報を返す。セッションミドルウェアの内側で使う。
// GET /auth/user
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// RefreshToken は保存済みのリフレッシュトークンでアクセストークンを更新する。
// POST /auth/refresh-token
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	if _, err := h.service.RefreshToken(r.Context(), user); err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Token refreshed successfully"})
}

// Logout はセッションを破棄してログイン画面へリダイレクトする。
// GET /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := h.cookie.Read(r); ok {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	h.cookie.Clear(w)
	http.Redirect(w, r, h.config.LogoutURL, http.StatusTemporaryRedirect)
}

// currentUser はCookieのセッションからユーザーを解決する。
// 未認証の場合はnil, nilを返す。
func (h *AuthHandler) currentUser(r *http.Request) (*model.User, error) {
	sessionID, ok := h.cookie.Read(r)
	if !ok {
		return nil, nil
	}

	user, err := h.service.ResolveSession(r.Context(), sessionID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUnauthenticated {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (h *AuthHandler) redirectFailure(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, withErrorParam(h.config.FailureURL), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// withErrorParam は失敗URLにerror=auth_failedを付与する。
func withErrorParam(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("error", authFailedParam)
	u.RawQuery = q.Encode()
	return u.String()
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
