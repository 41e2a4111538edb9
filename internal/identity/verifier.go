// Package identity はアクセストークン（HS256 JWT）を検証し、所有者のIdentityを取り出す。
package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/mixmatch/internal/model"
)

// ErrEmptySecret は署名鍵が設定されていない場合のエラー。
var ErrEmptySecret = errors.New("identity: JWT secret is empty")

// Verifier はアクセストークンを検証する。並行利用に対して安全。
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier はVerifierを生成する。
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
	}, nil
}

// Verify はトークンを検証し、subクレームを返す。
// 署名不正・期限切れ・subなしはいずれも401エラーになる。
func (v *Verifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", model.NewUnauthorizedError("")
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", model.NewUnauthorizedError("")
	}
	if claims.Subject == "" {
		return "", model.NewUnauthorizedError("")
	}
	return claims.Subject, nil
}
