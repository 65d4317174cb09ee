package middleware

import (
	"crypto/sha256"
	"fmt"
	"net/http"

	"github.com/gorilla/securecookie"
)

// SessionCookieName はセッションIDを保持するCookie名。
const SessionCookieName = "calendar-session"

// SessionCookieConfig はセッションCookieの属性設定。
type SessionCookieConfig struct {
	Secret string // 署名鍵の元になる秘密値
	MaxAge int    // 有効期間（秒）
	Secure bool   // trueの場合はSecure属性とSameSite=Noneを付与する
	Domain string
}

// SessionCookie はセッションIDを署名付きCookieとして読み書きする。
// 値はHMAC-SHA256で署名され、改ざんされたCookieは存在しないものとして扱う。
type SessionCookie struct {
	codec  *securecookie.SecureCookie
	config SessionCookieConfig
}

// NewSessionCookie はSessionCookieを生成する。
// 署名鍵はSecretのSHA-256ハッシュから導出する。
func NewSessionCookie(config SessionCookieConfig) *SessionCookie {
	hashKey := sha256.Sum256([]byte(config.Secret))
	codec := securecookie.New(hashKey[:], nil)
	codec.MaxAge(config.MaxAge)

	return &SessionCookie{codec: codec, config: config}
}

// Write はセッションIDを署名してCookieに設定する。
func (c *SessionCookie) Write(w http.ResponseWriter, sessionID string) error {
	encoded, err := c.codec.Encode(SessionCookieName, sessionID)
	if err != nil {
		return fmt.Errorf("failed to encode session cookie: %w", err)
	}

	http.SetCookie(w, c.cookie(encoded, c.config.MaxAge))
	return nil
}

// Read はリクエストのCookieからセッションIDを取り出す。
// Cookieが無い、署名が不正、または期限切れの場合はfalseを返す。
func (c *SessionCookie) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	var sessionID string
	if err := c.codec.Decode(SessionCookieName, cookie.Value, &sessionID); err != nil {
		return "", false
	}
	if sessionID == "" {
		return "", false
	}
	return sessionID, true
}

// Clear はセッションCookieを削除する。
func (c *SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1))
}

func (c *SessionCookie) cookie(value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if c.config.Secure {
		// クロスサイトのSPAからCookieを送るため
		sameSite = http.SameSiteNoneMode
	}

	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   c.config.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: sameSite,
	}
}
