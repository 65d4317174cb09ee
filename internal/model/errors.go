// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, calendar, system
	Action   string // ユーザー向け対処方法

	// UpstreamStatus は上流カレンダーサービスが返したHTTPステータス（該当する場合のみ）。
	UpstreamStatus int
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeAuthExchangeFailed = "AUTH_EXCHANGE_FAILED"
	ErrCodeUpstream           = "UPSTREAM_ERROR"
	ErrCodeEventNotFound      = "EVENT_NOT_FOUND"
	ErrCodeInvalidEvent       = "INVALID_EVENT"
	ErrCodeInvalidQuery       = "INVALID_QUERY"
	ErrCodeTokenRefreshFailed = "TOKEN_REFRESH_FAILED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeRouteNotFound      = "ROUTE_NOT_FOUND"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "Googleアカウントでログインしてください。",
	}
}

// NewAuthExchangeError は認可コード交換またはプロフィール取得の失敗を表すエラーを生成する。
func NewAuthExchangeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthExchangeFailed,
		Message:  fmt.Sprintf("Google認証に失敗しました: %s", reason),
		Category: "auth",
		Action:   "もう一度ログインしてください。",
	}
}

// NewUpstreamError は上流カレンダーサービスの呼び出し失敗エラーを生成する。
// statusが0の場合はネットワークエラー等でHTTPレスポンスが得られなかったことを示す。
func NewUpstreamError(status int) *APIError {
	action := "しばらく待ってから再度お試しください。"
	if status == 401 {
		action = "POST /auth/refresh-token でトークンを更新してから再度お試しください。"
	}
	return &APIError{
		Code:           ErrCodeUpstream,
		Message:        "カレンダーサービスの呼び出しに失敗しました。",
		Category:       "calendar",
		Action:         action,
		UpstreamStatus: status,
	}
}

// NewEventNotFoundError はイベント未検出エラーを生成する。
func NewEventNotFoundError(eventID string) *APIError {
	return &APIError{
		Code:           ErrCodeEventNotFound,
		Message:        fmt.Sprintf("指定されたイベントが見つかりません: %s", eventID),
		Category:       "calendar",
		Action:         "イベントIDを確認してください。",
		UpstreamStatus: 404,
	}
}

// NewInvalidEventError はイベント入力の検証エラーを生成する。
func NewInvalidEventError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEvent,
		Message:  fmt.Sprintf("イベントの入力が不正です: %s", reason),
		Category: "validation",
		Action:   "summary、start、end（RFC 3339形式）を指定してください。",
	}
}

// NewInvalidQueryError はクエリパラメータの検証エラーを生成する。
func NewInvalidQueryError(param string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuery,
		Message:  fmt.Sprintf("クエリパラメータが不正です: %s", param),
		Category: "validation",
		Action:   "timeMin、timeMaxはRFC 3339形式で指定してください。",
	}
}

// NewTokenRefreshFailedError はトークン更新失敗エラーを生成する。
func NewTokenRefreshFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeTokenRefreshFailed,
		Message:  fmt.Sprintf("トークンの更新に失敗しました: %s", reason),
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewRouteNotFoundError は存在しないルートへのアクセスエラーを生成する。
func NewRouteNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeRouteNotFound,
		Message:  "指定されたルートは存在しません。",
		Category: "system",
		Action:   "URLを確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
