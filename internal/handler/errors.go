// Package handler はゲートウェイとカクテルサービスのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/mixmatch/internal/middleware"
	"github.com/hitoshi/mixmatch/internal/model"
	"github.com/hitoshi/mixmatch/internal/upstream"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeRawJSON は上流から受け取ったJSONをそのまま書き込む。
func writeRawJSON(w http.ResponseWriter, statusCode int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// writeUnauthorized はセッションが無い場合の401を書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(""))
}

// handleServiceError はサービス層・上流から返されたエラーを適切なHTTPステータスコードに変換する。
//
// *model.UpstreamErrorは上流のステータスと詳細をそのまま返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	var upErr *model.UpstreamError
	if errors.As(err, &upErr) {
		writeAPIErrorResponse(w, upErr.Status, &model.APIError{
			Code:     model.ErrCodeUpstream,
			Message:  upErr.Detail,
			Category: "upstream",
			Action:   "Please check the request and try again.",
		})
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidJudgment, model.ErrCodeInvalidFilter:
		return http.StatusBadRequest
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleForwardError は転送の失敗を応答に変換する。
// 上流に到達できなかった場合と処理時間の上限を超えた場合はunreachableを返し、原因は含めない。
func handleForwardError(w http.ResponseWriter, err error, unreachable unreachableResponse) {
	if errors.Is(err, upstream.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		writeAPIErrorResponse(w, unreachable.status, unreachable.err())
		return
	}
	handleServiceError(w, err)
}

// unreachableResponse は上流到達不能時にルートごとに返す固定の応答。
type unreachableResponse struct {
	status  int
	message string
}

func (u unreachableResponse) err() *model.APIError {
	if u.status == http.StatusServiceUnavailable {
		return model.NewServiceUnavailableError(u.message)
	}
	return model.NewInternalError(u.message)
}

// ルートごとの到達不能時の応答
var (
	randomUnreachable  = unreachableResponse{http.StatusServiceUnavailable, "cocktail service unreachable"}
	searchUnreachable  = unreachableResponse{http.StatusServiceUnavailable, "cocktail search unreachable"}
	lookupUnreachable  = unreachableResponse{http.StatusServiceUnavailable, "cocktail lookup unreachable"}
	facetUnreachable   = unreachableResponse{http.StatusServiceUnavailable, "cocktail service unreachable"}
	recordUnreachable  = unreachableResponse{http.StatusInternalServerError, "recording failed"}
	historyUnreachable = unreachableResponse{http.StatusServiceUnavailable, "cocktail history unreachable"}
)
