// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はカタログプロバイダーから受け取った自由記述テキストから
// マークアップを取り除き、プレーンテキストとしてクライアントに返せる形にする。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize は全てのタグを除去したプレーンテキストを返す。
	// 文字参照（&amp; 等）は元の文字に戻し、戻した結果に現れたタグも除去する。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーは並行利用できる。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はStrictPolicy（許可タグなし）でサニタイザーを生成する。
// script, style 等は中身ごと除去される。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxSanitizePasses は文字参照の多重エンコードを剥がす回数の上限。
const maxSanitizePasses = 4

// Sanitize はタグを除去し、bluemondayがエスケープした文字参照を戻す。
// 戻した結果にタグが現れた場合はもう一度除去し、出力が変わらなくなるまで繰り返す。
// 上限に達した場合はエスケープされたままの文字列を返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	if !strings.ContainsAny(raw, "<>&") {
		return raw
	}

	current := raw
	for range maxSanitizePasses {
		next := html.UnescapeString(s.policy.Sanitize(current))
		if next == current {
			return next
		}
		current = next
	}
	return s.policy.Sanitize(current)
}
