// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidJudgment    = "INVALID_JUDGMENT"
	ErrCodeInvalidFilter      = "INVALID_FILTER"
	ErrCodeUpstream           = "UPSTREAM_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeBadGateway         = "BAD_GATEWAY"
	ErrCodeStorage            = "STORAGE_ERROR"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeForbidden          = "FORBIDDEN"
)

// NewUnauthorizedError は認証エラーを生成する。
// messageが空の場合は "unauthorized" を使う。
func NewUnauthorizedError(message string) *APIError {
	if message == "" {
		message = "unauthorized"
	}
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Category: "auth",
		Action:   "Sign in again to continue.",
	}
}

// NewInvalidRequestError は入力不備によるバリデーションエラーを生成する。
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "Fix the request parameters and try again.",
	}
}

// NewInvalidJudgmentError は判定記録の入力エラーを生成する。
func NewInvalidJudgmentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidJudgment,
		Message:  reason,
		Category: "validation",
		Action:   "Send a cocktailId and an action of like or dislike.",
	}
}

// NewInvalidFilterError は履歴フィルタの値が不正な場合のエラーを生成する。
func NewInvalidFilterError(name, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("invalid %s filter: %s", name, value),
		Category: "validation",
		Action:   "Use filter=like|dislike and source=tinder|search.",
	}
}

// NewServiceUnavailableError は上流サービスに到達できない場合のエラーを生成する。
// 原因の詳細は含めない。
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeServiceUnavailable,
		Message:  message,
		Category: "upstream",
		Action:   "Please wait a moment and try again.",
	}
}

// NewBadGatewayError は上流から不正な応答が返った場合のエラーを生成する。
func NewBadGatewayError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeBadGateway,
		Message:  message,
		Category: "upstream",
		Action:   "Please wait a moment and try again.",
	}
}

// NewStorageError は台帳ストアの書き込み・読み込み失敗を表すエラーを生成する。
func NewStorageError() *APIError {
	return &APIError{
		Code:     ErrCodeStorage,
		Message:  "failed to access judgment history",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// NewInternalError は汎用の内部エラーを生成する。
func NewInternalError(message string) *APIError {
	if message == "" {
		message = "internal error"
	}
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  message,
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewForbiddenError は許可されていないオリジンからの状態変更リクエストを拒否するエラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "auth",
		Action:   "Send the request from the application page.",
	}
}

// UpstreamError は上流サービスが非成功ステータスを返したことを表す。
// ステータスコードと詳細メッセージはそのまま呼び出し元に伝搬される。
type UpstreamError struct {
	Status int
	Detail string
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Detail)
}
