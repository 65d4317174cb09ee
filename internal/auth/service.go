// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/caldash/internal/metrics"
	"github.com/hitoshi/caldash/internal/model"
	"github.com/hitoshi/caldash/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報とトークンを表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	AccessToken    string
	RefreshToken   string // 再同意が省略された場合は空
}

// TokenPair はトークン更新の結果。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
	// RefreshAccessToken はリフレッシュトークンで新しいアクセストークンを取得する。
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	metrics     metrics.MetricsCollector
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		metrics:     collector,
		config:      config,
		now:         time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードを作成し、登録済みの場合は表示名とトークンを上書きする。
// 認可コード交換に失敗した場合はAUTH_EXCHANGE_FAILEDをラップしたエラーを返す。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	session, err := s.handleCallback(ctx, code)
	if err != nil {
		s.metrics.RecordAuthCallback(metrics.ResultFailure)
		return nil, err
	}
	s.metrics.RecordAuthCallback(metrics.ResultSuccess)
	return session, nil
}

func (s *Service) handleCallback(ctx context.Context, code string) (*model.Session, error) {
	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.NewAuthExchangeError("code exchange failed"), err)
	}
	if info.ProviderUserID == "" || info.Email == "" {
		return nil, model.NewAuthExchangeError("profile is missing sub or email")
	}

	// 2. ユーザーを作成または更新
	userID, err := s.upsertUser(ctx, info)
	if err != nil {
		return nil, err
	}

	// 3. セッションを発行
	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// upsertUser はgoogle_idでユーザーを特定し、存在しなければ作成する。
// 同時ログインで作成が競合した場合は更新に切り替える。
func (s *Service) upsertUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	existing, err := s.userRepo.FindByGoogleID(ctx, info.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}

	if existing == nil {
		now := s.now()
		newUser := &model.User{
			ID:           uuid.New().String(),
			GoogleID:     info.ProviderUserID,
			Email:        info.Email,
			Name:         info.Name,
			AccessToken:  info.AccessToken,
			RefreshToken: info.RefreshToken,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		err := s.userRepo.Create(ctx, newUser)
		if err == nil {
			slog.Info("new user created",
				slog.String("user_id", newUser.ID),
				slog.String("email", newUser.Email),
			)
			return newUser.ID, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return "", fmt.Errorf("failed to create user: %w", err)
		}

		existing, err = s.userRepo.FindByGoogleID(ctx, info.ProviderUserID)
		if err != nil {
			return "", fmt.Errorf("failed to find user: %w", err)
		}
		if existing == nil {
			// emailが別のgoogle_idで登録済み
			return "", model.NewAuthExchangeError("email is already linked to another account")
		}
	}

	refreshToken := info.RefreshToken
	if refreshToken == "" {
		refreshToken = existing.RefreshToken
	}
	if err := s.userRepo.UpdateTokens(ctx, existing.ID, info.Name, info.AccessToken, refreshToken); err != nil {
		return "", fmt.Errorf("failed to update user tokens: %w", err)
	}

	slog.Info("existing user logged in", slog.String("user_id", existing.ID))
	return existing.ID, nil
}

// ResolveSession はセッションIDから現在のユーザーを取得する。
// セッションが無い、期限切れ、またはユーザーが削除済みの場合はUNAUTHENTICATEDを返す。
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewUnauthenticatedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.IsExpired(s.now()) {
		return nil, model.NewUnauthenticatedError()
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthenticatedError()
	}

	return user, nil
}

// Logout はセッションを破棄する。セッションが存在しなくてもエラーにしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// RefreshToken は保存済みのリフレッシュトークンでアクセストークンを更新し、永続化する。
// 更新後のユーザーを返す。
func (s *Service) RefreshToken(ctx context.Context, user *model.User) (*model.User, error) {
	updated, err := s.refreshToken(ctx, user)
	if err != nil {
		s.metrics.RecordTokenRefresh(metrics.ResultFailure)
		return nil, err
	}
	s.metrics.RecordTokenRefresh(metrics.ResultSuccess)
	return updated, nil
}

func (s *Service) refreshToken(ctx context.Context, user *model.User) (*model.User, error) {
	if !user.HasRefreshToken() {
		return nil, model.NewTokenRefreshFailedError("no refresh token stored")
	}

	tokens, err := s.oauth.RefreshAccessToken(ctx, user.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.NewTokenRefreshFailedError("provider rejected refresh"), err)
	}

	refreshToken := tokens.RefreshToken
	if refreshToken == "" {
		refreshToken = user.RefreshToken
	}
	if err := s.userRepo.UpdateTokens(ctx, user.ID, user.Name, tokens.AccessToken, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	updated := *user
	updated.AccessToken = tokens.AccessToken
	updated.RefreshToken = refreshToken
	updated.UpdatedAt = s.now()

	slog.Info("access token refreshed", slog.String("user_id", user.ID))
	return &updated, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
