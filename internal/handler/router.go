package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mixmatch/internal/middleware"
	"github.com/hitoshi/mixmatch/internal/session"
)

// HealthChecker は依存先（台帳ストア等）の疎通確認を行う。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// healthCheckTimeout は/healthでの疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// CommonDeps はゲートウェイとカクテルサービスで共通のルーター依存関係。
type CommonDeps struct {
	Logger            *slog.Logger
	Metrics           middleware.StatusRecorder // nilの場合はステータス計測を行わない
	MetricsHandler    http.Handler              // nilの場合は/metricsを公開しない
	HealthChecker     HealthChecker             // nilの場合は常にokを返す
	CORSAllowedOrigin string
}

// GatewayDeps はNewGatewayRouterに必要な依存関係をまとめた構造体。
type GatewayDeps struct {
	CommonDeps

	// AllowedOrigins は状態変更リクエストを受け付けるオリジン。
	AllowedOrigins []string

	// 認証
	Tokens  TokenManager
	Cookies *session.Writer

	// カクテル
	Backend  CocktailBackend
	Sampler  Recommender
	Facets   FacetLoader
	Cocktail CocktailHandlerConfig
}

// ServiceDeps はNewServiceRouterに必要な依存関係をまとめた構造体。
type ServiceDeps struct {
	CommonDeps

	Verifier    middleware.TokenVerifier
	RateLimiter *middleware.RateLimiter

	Catalog Catalog
	Ledger  Ledger
}

// baseRouter は共通のミドルウェアと/health・/metricsを設定したルーターを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → CORS
func baseRouter(deps CommonDeps) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	return r
}

// NewGatewayRouter はクライアント向けゲートウェイのルーティングを構成したchi.Routerを返す。
//
// /api/* にはOriginチェックを適用する。セッションの確認は各ハンドラーが行う。
func NewGatewayRouter(deps *GatewayDeps) http.Handler {
	r := baseRouter(deps.CommonDeps)

	if deps.Cocktail.Logger == nil {
		deps.Cocktail.Logger = deps.Logger
	}
	authHandler := NewAuthHandler(deps.Tokens, deps.Cookies)
	cocktailHandler := NewCocktailHandler(deps.Backend, deps.Sampler, deps.Facets, deps.Cocktail)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewOriginCheckMiddleware(deps.AllowedOrigins...))

		// 認証
		r.Post("/auth-login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)

		// カクテル
		r.Route("/cocktails", func(r chi.Router) {
			r.Get("/", cocktailHandler.Random)
			r.Post("/", cocktailHandler.Record)
			r.Get("/search", cocktailHandler.Search)
			r.Get("/lookup", cocktailHandler.Lookup)
			r.Get("/categories", cocktailHandler.Facets)
			r.Get("/history", cocktailHandler.History)
		})
	})

	return r
}

// NewServiceRouter はカクテルサービスのルーティングを構成したchi.Routerを返す。
//
// /cocktail/* のミドルウェアスタック: Bearer → RateLimit(General)
// 判定記録には記録専用のレート制限を追加する。
func NewServiceRouter(deps *ServiceDeps) http.Handler {
	r := baseRouter(deps.CommonDeps)

	catalogHandler := NewCatalogHandler(deps.Catalog)
	historyHandler := NewHistoryHandler(deps.Ledger)

	r.Route("/cocktail", func(r chi.Router) {
		r.Use(middleware.NewBearerMiddleware(deps.Verifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/cocktails", func(r chi.Router) {
			r.Get("/random", catalogHandler.Random)
			r.Get("/by-id", catalogHandler.ByID)
			r.Get("/search", catalogHandler.Search("q", deps.Catalog.SearchByName))
			r.Get("/by-letter", catalogHandler.Search("letter", deps.Catalog.SearchByLetter))
			r.Get("/by-category", catalogHandler.Search("category", deps.Catalog.FilterByCategory))
			r.Get("/by-glass", catalogHandler.Search("glass", deps.Catalog.FilterByGlass))
			r.Get("/by-alcoholic", catalogHandler.Search("alcoholic", deps.Catalog.FilterByAlcoholic))
			r.Get("/categories", catalogHandler.List(deps.Catalog.ListCategories))
			r.Get("/glasses", catalogHandler.List(deps.Catalog.ListGlasses))
			r.Get("/alcoholic", catalogHandler.List(deps.Catalog.ListAlcoholic))
		})

		r.Route("/history", func(r chi.Router) {
			r.With(deps.RateLimiter.RecordMiddleware()).Post("/", historyHandler.Record)
			r.Get("/", historyHandler.List)
		})
	})

	return r
}

type healthResponse struct {
	Status string `json:"status"`
}

// healthHandler は疎通確認の結果を返す。失敗時は503。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Warn("ヘルスチェックに失敗しました", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
