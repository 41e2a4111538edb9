package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/mixmatch/internal/catalog"
	"github.com/hitoshi/mixmatch/internal/model"
)

// Catalog はカタログプロバイダーの検索・一覧を行うインターフェース。
// catalog.Clientが実装する。
type Catalog interface {
	Random(ctx context.Context) (catalog.Drink, error)
	LookupByID(ctx context.Context, id string) (catalog.Drink, error)
	SearchByName(ctx context.Context, name string) ([]catalog.Drink, error)
	SearchByLetter(ctx context.Context, letter string) ([]catalog.Drink, error)
	FilterByCategory(ctx context.Context, category string) ([]catalog.Drink, error)
	FilterByGlass(ctx context.Context, glass string) ([]catalog.Drink, error)
	FilterByAlcoholic(ctx context.Context, alcoholic string) ([]catalog.Drink, error)
	ListCategories(ctx context.Context) ([]string, error)
	ListGlasses(ctx context.Context) ([]string, error)
	ListAlcoholic(ctx context.Context) ([]string, error)
}

// CatalogHandler はカクテルサービスのカタログAPIのHTTPハンドラー。
// Bearerミドルウェアの内側に配置する。
type CatalogHandler struct {
	catalog Catalog
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(c Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

// Random はランダムなカクテルを1件返す。該当が無い場合はnullを返す。
// GET /cocktail/cocktails/random
func (h *CatalogHandler) Random(w http.ResponseWriter, r *http.Request) {
	drink, err := h.catalog.Random(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drink)
}

// ByID はIDでカクテルを1件返す。
// GET /cocktail/cocktails/by-id?id=xxx
func (h *CatalogHandler) ByID(w http.ResponseWriter, r *http.Request) {
	id, ok := requiredQuery(w, r, "id")
	if !ok {
		return
	}
	drink, err := h.catalog.LookupByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drink)
}

// Search はqueryパラメータparamの値でカクテルを検索するハンドラーを返す。
//
//	GET /cocktail/cocktails/search?q=
//	GET /cocktail/cocktails/by-letter?letter=
//	GET /cocktail/cocktails/by-category?category=
//	GET /cocktail/cocktails/by-glass?glass=
//	GET /cocktail/cocktails/by-alcoholic?alcoholic=
func (h *CatalogHandler) Search(param string, find func(ctx context.Context, value string) ([]catalog.Drink, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value, ok := requiredQuery(w, r, param)
		if !ok {
			return
		}
		drinks, err := find(r.Context(), value)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, drinks)
	}
}

// List は語彙1種類を返すハンドラーを返す。
//
//	GET /cocktail/cocktails/categories
//	GET /cocktail/cocktails/glasses
//	GET /cocktail/cocktails/alcoholic
func (h *CatalogHandler) List(list func(ctx context.Context) ([]string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := list(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, values)
	}
}

// requiredQuery は必須のqueryパラメータを取り出す。無ければ400を書き込んでfalseを返す。
func requiredQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(name+" query param required"))
		return "", false
	}
	return v, true
}
