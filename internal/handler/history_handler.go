package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/mixmatch/internal/middleware"
	"github.com/hitoshi/mixmatch/internal/model"
)

// Ledger は判定の記録と履歴の取得を行うインターフェース。
// ledger.Serviceが実装する。
type Ledger interface {
	Record(ctx context.Context, identity, cocktailID string, action model.Action, source model.Source) (*model.JudgmentEvent, error)
	Query(ctx context.Context, identity, actionFilter, sourceFilter string) ([]*model.JudgmentEvent, error)
}

// HistoryHandler はカクテルサービスの判定履歴APIのHTTPハンドラー。
// IdentityはBearerミドルウェアが注入したJWTのsubを使う。
type HistoryHandler struct {
	ledger Ledger
}

// NewHistoryHandler はHistoryHandlerを生成する。
func NewHistoryHandler(l Ledger) *HistoryHandler {
	return &HistoryHandler{ledger: l}
}

// Record は判定を1件記録し、作成したイベントを201で返す。
// POST /cocktail/history
func (h *HistoryHandler) Record(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidJudgmentError("invalid request body"))
		return
	}

	event, err := h.ledger.Record(r.Context(), userID, flexibleID(req.CocktailID), model.Action(req.Action), model.Source(req.Source))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// List は判定履歴を新しい順に返す。
// GET /cocktail/history?filter=like|dislike&source=tinder|search
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	events, err := h.ledger.Query(r.Context(), userID, r.URL.Query().Get("filter"), r.URL.Query().Get("source"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
