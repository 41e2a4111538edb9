package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/mixmatch/internal/backend"
	"github.com/hitoshi/mixmatch/internal/model"
	"github.com/hitoshi/mixmatch/internal/sampler"
	"github.com/hitoshi/mixmatch/internal/session"
)

// CocktailBackend はカクテルサービスへの転送を行うインターフェース。
// backend.Clientが実装する。
type CocktailBackend interface {
	Search(ctx context.Context, bearer string, kind backend.SearchKind, value string) (json.RawMessage, error)
	Lookup(ctx context.Context, bearer, id string) (json.RawMessage, error)
	Record(ctx context.Context, bearer string, req backend.RecordRequest) (int, json.RawMessage, error)
	History(ctx context.Context, bearer string, query url.Values) (json.RawMessage, error)
	JudgedIDs(ctx context.Context, bearer string) ([]string, error)
}

// Recommender は未判定のカクテルを1件選ぶ。sampler.Samplerが実装する。
type Recommender interface {
	Next(ctx context.Context, bearer string, excluded sampler.ExcludedSet) (*model.Cocktail, error)
}

// FacetLoader は絞り込み用語彙を読み込む。facet.Loaderが実装する。
type FacetLoader interface {
	Load(ctx context.Context, bearer string) (*model.FacetVocabulary, error)
}

// CocktailHandler はゲートウェイのカクテル関連のHTTPハンドラー。
// すべてのルートでアクセストークンを確認し、無ければ上流を呼ばずに401を返す。
type CocktailHandler struct {
	backend        CocktailBackend
	sampler        Recommender
	facets         FacetLoader
	excludeHistory bool
	randomTimeout  time.Duration
	logger         *slog.Logger
}

// CocktailHandlerConfig はCocktailHandlerの設定。
type CocktailHandlerConfig struct {
	// ExcludeHistory がtrueの場合、レコメンド前に判定履歴を取得して除外集合に加える。
	ExcludeHistory bool
	// RandomTimeout はレコメンド1回（履歴取得と全抽選）に使える時間の上限。0は無制限。
	RandomTimeout time.Duration
	Logger        *slog.Logger
}

// NewCocktailHandler はCocktailHandlerを生成する。
func NewCocktailHandler(b CocktailBackend, s Recommender, f FacetLoader, config CocktailHandlerConfig) *CocktailHandler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CocktailHandler{
		backend:        b,
		sampler:        s,
		facets:         f,
		excludeHistory: config.ExcludeHistory,
		randomTimeout:  config.RandomTimeout,
		logger:         logger,
	}
}

// exhaustedResponse は抽選上限に達したときの応答。エラーではない。
type exhaustedResponse struct {
	Exhausted bool   `json:"exhausted"`
	Detail    string `json:"detail"`
}

// recordRequest はクライアントからの判定記録リクエスト。
// cocktailIdは文字列・数値のどちらでも受け付ける。
type recordRequest struct {
	CocktailID json.RawMessage `json:"cocktailId"`
	Action     string          `json:"action"`
	Source     string          `json:"source"`
}

const msgInvalidRecord = "cocktailId and action (like|dislike) are required"

// Random は未判定のカクテルを1件返す。
// GET /api/cocktails?exclude=1&exclude=2 または ?exclude=1,2
func (h *CocktailHandler) Random(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)
	if !sess.Authenticated() {
		writeUnauthorized(w)
		return
	}

	ctx := r.Context()
	if h.randomTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.randomTimeout)
		defer cancel()
	}

	excluded := sampler.NewExcludedSet(parseExclude(r.URL.Query()["exclude"])...)
	if h.excludeHistory {
		ids, err := h.backend.JudgedIDs(ctx, sess.AccessToken)
		if err != nil {
			h.logger.Warn("判定履歴を取得できなかったため、クライアントの除外集合のみで抽選します",
				slog.String("error", err.Error()),
			)
		} else {
			excluded = excluded.With(ids...)
		}
	}

	cocktail, err := h.sampler.Next(ctx, sess.AccessToken, excluded)
	switch {
	case errors.Is(err, sampler.ErrExhausted):
		writeJSON(w, http.StatusOK, exhaustedResponse{Exhausted: true, Detail: sampler.ErrExhausted.Error()})
	case errors.Is(err, sampler.ErrInvalidDraw):
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewBadGatewayError("invalid cocktail response"))
	case err != nil:
		handleForwardError(w, err, randomUnreachable)
	default:
		writeJSON(w, http.StatusOK, cocktail)
	}
}

// Search は検索種別と値でカクテルを検索する。
// 未知の種別は名前検索として扱う。
// GET /api/cocktails/search?type=name|category|glass|alcoholic|letter&value=xxx
func (h *CocktailHandler) Search(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)
	if !sess.Authenticated() {
		writeUnauthorized(w)
		return
	}

	value := r.URL.Query().Get("value")
	if value == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("value query param required"))
		return
	}
	kind := backend.ParseSearchKind(r.URL.Query().Get("type"))

	body, err := h.backend.Search(r.Context(), sess.AccessToken, kind, value)
	if err != nil {
		handleForwardError(w, err, searchUnreachable)
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

// Lookup はIDでカクテルを1件返す。
// GET /api/cocktails/lookup?id=xxx
func (h *CocktailHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)
	if !sess.Authenticated() {
		writeUnauthorized(w)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("id query param required"))
		return
	}

	body, err := h.backend.Lookup(r.Context(), sess.AccessToken, id)
	if err != nil {
		handleForwardError(w, err, lookupUnreachable)
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

// Facets は絞り込み用の語彙を返す。取得できなかった種別は空配列になる。
// GET /api/cocktails/categories
func (h *CocktailHandler) Facets(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)
	if !sess.Authenticated() {
		writeUnauthorized(w)
		return
	}

	vocab, err := h.facets.Load(r.Context(), sess.AccessToken)
	if err != nil {
		handleForwardError(w, err, facetUnreachable)
		return
	}
	writeJSON(w, http.StatusOK, vocab)
}

// Record は判定を記録する。カクテルサービスのステータス（201）と作成されたイベントをそのまま返す。
// sourceが未指定の場合はtinderとして扱う。
// POST /api/cocktails
func (h *CocktailHandler) Record(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)
	if !sess.Authenticated() {
		writeUnauthorized(w)
		return
	}

	var req recordRequest
	// ボディが壊れている場合は空のリクエストとして検証する
	_ = json.NewDecoder(r.Body).Decode(&req)

	cocktailID := flexibleID(req.CocktailID)
	action := model.Action(req.Action)
	if cocktailID == "" || !action.Valid() {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidJudgmentError(msgInvalidRecord))
		return
	}
	source := model.Source(req.Source)
	if source == "" {
		source = model.SourceTinder
	}

	status, body, err := h.backend.Record(r.Context(), sess.AccessToken, backend.RecordRequest{
		CocktailID: cocktailID,
		Action:     action,
		Source:     source,
	})
	if err != nil {
		handleForwardError(w, err, recordUnreachable)
		return
	}
	writeRawJSON(w, status, body)
}

// History は判定履歴を新しい順に返す。filterとsourceはそのまま転送する。
// GET /api/cocktails/history?filter=like|dislike&source=tinder|search
func (h *CocktailHandler) History(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)
	if !sess.Authenticated() {
		writeUnauthorized(w)
		return
	}

	query := url.Values{}
	for _, key := range []string{"filter", "source"} {
		if v := r.URL.Query().Get(key); v != "" {
			query.Set(key, v)
		}
	}

	body, err := h.backend.History(r.Context(), sess.AccessToken, query)
	if err != nil {
		handleForwardError(w, err, historyUnreachable)
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

// parseExclude は繰り返し指定とカンマ区切りの両方を受け付けてIDを展開する。
func parseExclude(values []string) []string {
	var ids []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// flexibleID は文字列または数値のJSON値をIDとして取り出す。
func flexibleID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
