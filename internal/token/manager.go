// Package token はアクセストークンとリフレッシュトークンのライフサイクルを管理する。
// IdP（認証サービス）と通信するのはこのパッケージだけである。
package token

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hitoshi/mixmatch/internal/model"
	"github.com/hitoshi/mixmatch/internal/upstream"
)

// IdPのエンドポイント
const (
	loginPath   = "/auth/auth/login"
	refreshPath = "/auth/refresh"
)

// エラーメッセージ
const (
	msgLoginFailed         = "login failed"
	msgRefreshFailed       = "refresh failed"
	msgMissingRefreshToken = "missing refresh token"
)

// Poster はIdPへのPOST送信を行うインターフェース。
// upstream.Clientが実装する。
type Poster interface {
	Post(ctx context.Context, path, bearer string, body any) (*upstream.Response, error)
}

// Manager はログインとトークン更新を行う。
type Manager struct {
	idp    Poster
	logger *slog.Logger
}

// NewManager はManagerを生成する。
func NewManager(idp Poster, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{idp: idp, logger: logger}
}

// providerTokens はIdPのトークン応答。
type providerTokens struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    float64 `json:"expires_in"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login は資格情報をIdPに転送し、発行されたトークンの組を返す。
//
// IdPが非成功ステータスを返した場合はステータスと詳細をそのまま伝える*model.UpstreamErrorを、
// IdPに到達できない場合や応答が壊れている場合は詳細を含まない内部エラーを返す。
// AccessExpiryはIdPのexpires_in（無ければ3600秒）、RefreshExpiryは常に7日。
func (m *Manager) Login(ctx context.Context, username, password string) (*model.CredentialPair, error) {
	resp, err := m.idp.Post(ctx, loginPath, "", loginRequest{Username: username, Password: password})
	if err != nil {
		m.logger.Error("IdPへのログイン要求に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewInternalError(msgLoginFailed)
	}
	if !resp.OK() {
		return nil, resp.StatusError(msgLoginFailed)
	}

	tokens, ok := m.decode(resp, "login")
	if !ok {
		return nil, model.NewInternalError(msgLoginFailed)
	}

	pair := &model.CredentialPair{
		AccessToken:  tokens.AccessToken,
		AccessExpiry: expiry(tokens.ExpiresIn),
		RefreshToken: tokens.RefreshToken,
	}
	if pair.RefreshToken != "" {
		pair.RefreshExpiry = model.RefreshExpiry
	}
	return pair, nil
}

// Refresh はリフレッシュトークンを新しいアクセストークンと交換する。
//
// refreshTokenが空の場合はIdPを呼ばずに401を返す。
// IdPが新しいリフレッシュトークンを返しても、返り値のRefreshTokenには設定しない。
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*model.CredentialPair, error) {
	if refreshToken == "" {
		return nil, model.NewUnauthorizedError(msgMissingRefreshToken)
	}

	resp, err := m.idp.Post(ctx, refreshPath, "", refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		m.logger.Error("IdPへのトークン更新要求に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewInternalError(msgRefreshFailed)
	}
	if !resp.OK() {
		return nil, resp.StatusError(msgRefreshFailed)
	}

	tokens, ok := m.decode(resp, "refresh")
	if !ok {
		return nil, model.NewInternalError(msgRefreshFailed)
	}

	return &model.CredentialPair{
		AccessToken:  tokens.AccessToken,
		AccessExpiry: expiry(tokens.ExpiresIn),
	}, nil
}

func (m *Manager) decode(resp *upstream.Response, op string) (*providerTokens, bool) {
	var tokens providerTokens
	if err := json.Unmarshal(upstream.LenientObject(resp.Body), &tokens); err != nil {
		m.logger.Error("IdPのトークン応答のパースに失敗しました",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if tokens.AccessToken == "" {
		m.logger.Error("IdPの応答にaccess_tokenが含まれていません", slog.String("op", op))
		return nil, false
	}
	return &tokens, true
}

func expiry(expiresIn float64) int {
	if expiresIn <= 0 {
		return model.DefaultAccessExpiry
	}
	return int(expiresIn)
}
