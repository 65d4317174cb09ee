package model

import "time"

// User はGoogleアカウントで認証されたユーザーを表す。
// アクセストークンとリフレッシュトークンはサーバー側のみで保持し、ブラウザには返さない。
type User struct {
	ID           string
	GoogleID     string // IdPが発行する外部ID（sub）
	Email        string
	Name         string
	AccessToken  string
	RefreshToken string // 再同意時に省略されることがあるため空文字を許容する
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRefreshToken はリフレッシュトークンを保持しているかを返す。
func (u *User) HasRefreshToken() bool {
	return u.RefreshToken != ""
}

// Session はユーザーのログインセッションを表す。
// 永続化されたセッションは常に1人のユーザーに紐付く。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired は指定時刻の時点でセッションが期限切れかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
