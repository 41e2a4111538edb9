package model

// 資格情報の有効期間（秒）。
const (
	// DefaultAccessExpiry はIdPがexpires_inを返さなかった場合のアクセストークン有効期間。
	DefaultAccessExpiry = 3600
	// RefreshExpiry はリフレッシュトークンCookieの有効期間（7日）。IdPの値に関わらず固定。
	RefreshExpiry = 60 * 60 * 24 * 7
)

// CredentialPair はアクセストークンとリフレッシュトークンの組。
// クライアントのCookieにのみ保持され、ゲートウェイは1リクエストを超えて保持しない。
type CredentialPair struct {
	AccessToken   string
	AccessExpiry  int // 秒
	RefreshToken  string
	RefreshExpiry int // 秒
}
