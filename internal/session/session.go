// Package session はゲートウェイのCookieベースのセッションを扱う。
//
// リクエストごとにCookieからSessionを組み立て、各操作に明示的に渡す。
// 資格情報はCookieにのみ保持し、ゲートウェイ側では1リクエストを超えて保持しない。
package session

import (
	"net/http"

	"github.com/hitoshi/mixmatch/internal/model"
)

// Cookie名
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// Session は1リクエスト分の資格情報。
type Session struct {
	AccessToken  string
	RefreshToken string
}

// FromRequest はリクエストのCookieからSessionを組み立てる。
// Cookieが無い場合は対応するフィールドが空になる。
func FromRequest(r *http.Request) Session {
	var s Session
	if c, err := r.Cookie(AccessCookieName); err == nil {
		s.AccessToken = c.Value
	}
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		s.RefreshToken = c.Value
	}
	return s
}

// Authenticated はアクセストークンを持っているかどうかを返す。
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// CookieConfig はCookie属性の設定。
type CookieConfig struct {
	Secure bool
	Domain string
}

// Writer はレスポンスにセッションCookieを書き込む。
type Writer struct {
	config CookieConfig
}

// NewWriter はWriterを生成する。
func NewWriter(config CookieConfig) *Writer {
	return &Writer{config: config}
}

// SetCredentials はログイン成功時にアクセストークンとリフレッシュトークンを書き込む。
// リフレッシュトークンが空の場合はrefresh_tokenには触れない。
func (wr *Writer) SetCredentials(w http.ResponseWriter, pair *model.CredentialPair) {
	wr.SetAccessToken(w, pair)
	if pair.RefreshToken != "" {
		http.SetCookie(w, wr.cookie(RefreshCookieName, pair.RefreshToken, model.RefreshExpiry))
	}
}

// SetAccessToken はaccess_tokenだけを書き込む。リフレッシュ時に使用する。
func (wr *Writer) SetAccessToken(w http.ResponseWriter, pair *model.CredentialPair) {
	maxAge := pair.AccessExpiry
	if maxAge <= 0 {
		maxAge = model.DefaultAccessExpiry
	}
	http.SetCookie(w, wr.cookie(AccessCookieName, pair.AccessToken, maxAge))
}

// Clear は両方のCookieを削除する。
func (wr *Writer) Clear(w http.ResponseWriter) {
	http.SetCookie(w, wr.cookie(AccessCookieName, "", -1))
	http.SetCookie(w, wr.cookie(RefreshCookieName, "", -1))
}

func (wr *Writer) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   wr.config.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   wr.config.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
