package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/hitoshi/mixmatch/internal/backend"
	"github.com/hitoshi/mixmatch/internal/catalog"
	"github.com/hitoshi/mixmatch/internal/middleware"
	"github.com/hitoshi/mixmatch/internal/model"
	"github.com/hitoshi/mixmatch/internal/sampler"
	"github.com/hitoshi/mixmatch/internal/session"
)

// --- モック定義 ---

// mockTokenManager はTokenManagerのモック実装。
type mockTokenManager struct {
	loginFn   func(ctx context.Context, username, password string) (*model.CredentialPair, error)
	refreshFn func(ctx context.Context, refreshToken string) (*model.CredentialPair, error)
}

func (m *mockTokenManager) Login(ctx context.Context, username, password string) (*model.CredentialPair, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return &model.CredentialPair{AccessToken: "access", AccessExpiry: model.DefaultAccessExpiry}, nil
}

func (m *mockTokenManager) Refresh(ctx context.Context, refreshToken string) (*model.CredentialPair, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return &model.CredentialPair{AccessToken: "access", AccessExpiry: model.DefaultAccessExpiry}, nil
}

// mockBackend はCocktailBackendのモック実装。呼び出し回数を記録する。
type mockBackend struct {
	searchFn    func(ctx context.Context, bearer string, kind backend.SearchKind, value string) (json.RawMessage, error)
	lookupFn    func(ctx context.Context, bearer, id string) (json.RawMessage, error)
	recordFn    func(ctx context.Context, bearer string, req backend.RecordRequest) (int, json.RawMessage, error)
	historyFn   func(ctx context.Context, bearer string, query url.Values) (json.RawMessage, error)
	judgedIDsFn func(ctx context.Context, bearer string) ([]string, error)
	calls       int
}

func (m *mockBackend) Search(ctx context.Context, bearer string, kind backend.SearchKind, value string) (json.RawMessage, error) {
	m.calls++
	if m.searchFn != nil {
		return m.searchFn(ctx, bearer, kind, value)
	}
	return json.RawMessage(`[]`), nil
}

func (m *mockBackend) Lookup(ctx context.Context, bearer, id string) (json.RawMessage, error) {
	m.calls++
	if m.lookupFn != nil {
		return m.lookupFn(ctx, bearer, id)
	}
	return json.RawMessage(`{}`), nil
}

func (m *mockBackend) Record(ctx context.Context, bearer string, req backend.RecordRequest) (int, json.RawMessage, error) {
	m.calls++
	if m.recordFn != nil {
		return m.recordFn(ctx, bearer, req)
	}
	return http.StatusCreated, json.RawMessage(`{}`), nil
}

func (m *mockBackend) History(ctx context.Context, bearer string, query url.Values) (json.RawMessage, error) {
	m.calls++
	if m.historyFn != nil {
		return m.historyFn(ctx, bearer, query)
	}
	return json.RawMessage(`[]`), nil
}

func (m *mockBackend) JudgedIDs(ctx context.Context, bearer string) ([]string, error) {
	m.calls++
	if m.judgedIDsFn != nil {
		return m.judgedIDsFn(ctx, bearer)
	}
	return nil, nil
}

// mockRecommender はRecommenderのモック実装。
type mockRecommender struct {
	nextFn func(ctx context.Context, bearer string, excluded sampler.ExcludedSet) (*model.Cocktail, error)
	calls  int
}

func (m *mockRecommender) Next(ctx context.Context, bearer string, excluded sampler.ExcludedSet) (*model.Cocktail, error) {
	m.calls++
	if m.nextFn != nil {
		return m.nextFn(ctx, bearer, excluded)
	}
	return &model.Cocktail{ID: "11007", Name: "Margarita"}, nil
}

// mockFacetLoader はFacetLoaderのモック実装。
type mockFacetLoader struct {
	loadFn func(ctx context.Context, bearer string) (*model.FacetVocabulary, error)
	calls  int
}

func (m *mockFacetLoader) Load(ctx context.Context, bearer string) (*model.FacetVocabulary, error) {
	m.calls++
	if m.loadFn != nil {
		return m.loadFn(ctx, bearer)
	}
	return &model.FacetVocabulary{Categories: []string{}, Glasses: []string{}, Alcoholic: []string{}}, nil
}

// mockCatalog はCatalogのモック実装。最後に呼ばれた操作と引数を記録する。
type mockCatalog struct {
	randomFn func(ctx context.Context) (catalog.Drink, error)
	listErr  error
	lastOp   string
	lastArg  string
}

func (m *mockCatalog) Random(ctx context.Context) (catalog.Drink, error) {
	m.lastOp = "random"
	if m.randomFn != nil {
		return m.randomFn(ctx)
	}
	return catalog.Drink{"idDrink": "11007"}, nil
}

func (m *mockCatalog) LookupByID(ctx context.Context, id string) (catalog.Drink, error) {
	m.lastOp, m.lastArg = "lookup", id
	return catalog.Drink{"idDrink": id}, nil
}

func (m *mockCatalog) drinks(op, arg string) ([]catalog.Drink, error) {
	m.lastOp, m.lastArg = op, arg
	return []catalog.Drink{{"idDrink": "1"}}, nil
}

func (m *mockCatalog) SearchByName(_ context.Context, v string) ([]catalog.Drink, error) {
	return m.drinks("name", v)
}

func (m *mockCatalog) SearchByLetter(_ context.Context, v string) ([]catalog.Drink, error) {
	return m.drinks("letter", v)
}

func (m *mockCatalog) FilterByCategory(_ context.Context, v string) ([]catalog.Drink, error) {
	return m.drinks("category", v)
}

func (m *mockCatalog) FilterByGlass(_ context.Context, v string) ([]catalog.Drink, error) {
	return m.drinks("glass", v)
}

func (m *mockCatalog) FilterByAlcoholic(_ context.Context, v string) ([]catalog.Drink, error) {
	return m.drinks("alcoholic", v)
}

func (m *mockCatalog) list(op string) ([]string, error) {
	m.lastOp = op
	if m.listErr != nil {
		return nil, m.listErr
	}
	return []string{op + "-1"}, nil
}

func (m *mockCatalog) ListCategories(context.Context) ([]string, error) { return m.list("categories") }
func (m *mockCatalog) ListGlasses(context.Context) ([]string, error)    { return m.list("glasses") }
func (m *mockCatalog) ListAlcoholic(context.Context) ([]string, error)  { return m.list("alcoholic") }

// mockVerifier はTokenVerifierのモック実装。"valid-<sub>" 形式のトークンだけを受け付ける。
type mockVerifier struct{}

func (mockVerifier) Verify(token string) (string, error) {
	const prefix = "valid-"
	if len(token) > len(prefix) && token[:len(prefix)] == prefix {
		return token[len(prefix):], nil
	}
	return "", model.NewUnauthorizedError("")
}

// --- ヘルパー ---

// withAccessCookie はaccess_token Cookieを付与する。
func withAccessCookie(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: session.AccessCookieName, Value: "token-abc"})
	return req
}

// decodeError はエラーレスポンスのボディを読み込む。
func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// assertError はステータスコードとエラーメッセージを検証する。
func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, status, w.Body.String())
	}
	body := decodeError(t, w)
	if body.Message != message {
		t.Errorf("message = %q, want %q", body.Message, message)
	}
	if body.Detail != message {
		t.Errorf("detail = %q, want %q", body.Detail, message)
	}
}
