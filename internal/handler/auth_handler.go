package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/mixmatch/internal/model"
	"github.com/hitoshi/mixmatch/internal/session"
)

// TokenManager はログインとトークン更新を行うインターフェース。
// token.Managerが実装する。
type TokenManager interface {
	Login(ctx context.Context, username, password string) (*model.CredentialPair, error)
	Refresh(ctx context.Context, refreshToken string) (*model.CredentialPair, error)
}

// AuthHandler はゲートウェイの認証関連のHTTPハンドラー。
type AuthHandler struct {
	tokens  TokenManager
	cookies *session.Writer
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(tokens TokenManager, cookies *session.Writer) *AuthHandler {
	return &AuthHandler{tokens: tokens, cookies: cookies}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// Login は資格情報をIdPに転送し、発行されたトークンをCookieに書き込む。
// POST /api/auth-login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("invalid login request body"))
		return
	}

	pair, err := h.tokens.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.cookies.SetCredentials(w, pair)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Refresh はrefresh_token Cookieを使ってアクセストークンを更新する。
// refresh_token Cookie自体は書き換えない。
// POST /api/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)

	pair, err := h.tokens.Refresh(r.Context(), sess.RefreshToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.cookies.SetAccessToken(w, pair)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Logout は両方のセッションCookieを削除する。IdPは呼ばない。
// POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
