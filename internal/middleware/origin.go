package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/mixmatch/internal/model"
)

// NewOriginCheckMiddleware はCookie認証の状態変更リクエストに対し、
// Origin（なければReferer）が許可オリジンと一致することを検証するミドルウェアを返す。
// 安全なメソッド（GET, HEAD, OPTIONS）と、どちらのヘッダーも持たないリクエストは通過させる。
// 不一致の場合は403を返す。
func NewOriginCheckMiddleware(allowedOrigins ...string) func(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = normalizeOrigin(o); o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin, present := requestOrigin(r)
			if !present {
				next.ServeHTTP(w, r)
				return
			}

			// "null" や解釈できない値はどの許可オリジンとも一致しない
			if _, ok := allowed[origin]; !ok {
				slog.Warn("cross-origin request rejected",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("origin", origin),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError("origin not allowed"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// requestOrigin はOriginヘッダー、なければRefererからスキーム+ホストを取り出す。
// presentはどちらかのヘッダーが存在したかを表す。
// ヘッダーが "null" または解釈できない値の場合、originは空文字列になる。
func requestOrigin(r *http.Request) (origin string, present bool) {
	if o := r.Header.Get("Origin"); o != "" {
		return normalizeOrigin(o), true
	}
	if ref := r.Header.Get("Referer"); ref != "" {
		return normalizeOrigin(ref), true
	}
	return "", false
}

// normalizeOrigin はURLを "scheme://host[:port]" の小文字表現にする。解釈できない場合は空文字列。
func normalizeOrigin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
