// Package catalog はカタログプロバイダー（TheCocktailDB）のクライアントを提供する。
// カクテルサービス側でのみ使用し、レコードは保存せずにそのまま返す。
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/mixmatch/internal/model"
	"github.com/hitoshi/mixmatch/internal/security"
	"github.com/hitoshi/mixmatch/internal/upstream"
)

// Doer はプロバイダーへのHTTP呼び出しを行うインターフェース。
// upstream.Clientが実装する。
type Doer interface {
	Do(ctx context.Context, method, path string, query url.Values, bearer string, body any) (*upstream.Response, error)
}

// Drink はプロバイダーが返すレコード（idDrink, strDrink, ...）をそのままの形で保持する。
type Drink map[string]any

// ID はidDrinkを返す。
func (d Drink) ID() string {
	s, _ := d["idDrink"].(string)
	return s
}

// envelope はプロバイダーの応答形式 {"drinks": [...] | null}。
// 該当なしの場合、配列の代わりに文字列が入ることがある。
type envelope struct {
	Drinks json.RawMessage `json:"drinks"`
}

// Client はTheCocktailDBのクライアント。
// 取得に失敗した場合は操作ごとのメッセージを持つ502エラーを返す。
type Client struct {
	doer      Doer
	sanitizer security.ContentSanitizerService
	logger    *slog.Logger
}

// NewClient はClientを生成する。
func NewClient(doer Doer, sanitizer security.ContentSanitizerService, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{doer: doer, sanitizer: sanitizer, logger: logger}
}

// Random はランダムなカクテルを1件返す。該当なしの場合はnilを返す。
func (c *Client) Random(ctx context.Context) (Drink, error) {
	drinks, err := c.fetch(ctx, "/random.php", nil, "Failed to fetch random cocktail")
	if err != nil {
		return nil, err
	}
	return first(drinks), nil
}

// LookupByID はIDでカクテルを1件返す。該当なしの場合はnilを返す。
func (c *Client) LookupByID(ctx context.Context, id string) (Drink, error) {
	drinks, err := c.fetch(ctx, "/lookup.php", url.Values{"i": {id}}, "Failed to fetch cocktail details")
	if err != nil {
		return nil, err
	}
	return first(drinks), nil
}

// SearchByName は名前の部分一致で検索する。
func (c *Client) SearchByName(ctx context.Context, name string) ([]Drink, error) {
	return c.fetch(ctx, "/search.php", url.Values{"s": {name}}, "Failed to search cocktails")
}

// SearchByLetter は頭文字で検索する。
func (c *Client) SearchByLetter(ctx context.Context, letter string) ([]Drink, error) {
	return c.fetch(ctx, "/search.php", url.Values{"f": {letter}}, "Failed to search by letter")
}

// FilterByCategory はカテゴリで絞り込む。
func (c *Client) FilterByCategory(ctx context.Context, category string) ([]Drink, error) {
	return c.fetch(ctx, "/filter.php", url.Values{"c": {category}}, "Failed to filter by category")
}

// FilterByGlass はグラスで絞り込む。
func (c *Client) FilterByGlass(ctx context.Context, glass string) ([]Drink, error) {
	return c.fetch(ctx, "/filter.php", url.Values{"g": {glass}}, "Failed to filter by glass")
}

// FilterByAlcoholic はアルコール区分で絞り込む。
func (c *Client) FilterByAlcoholic(ctx context.Context, alcoholic string) ([]Drink, error) {
	return c.fetch(ctx, "/filter.php", url.Values{"a": {alcoholic}}, "Failed to filter by alcoholic flag")
}

// ListCategories はカテゴリ名の一覧を返す。
func (c *Client) ListCategories(ctx context.Context) ([]string, error) {
	return c.list(ctx, "c", "strCategory", "Failed to fetch categories")
}

// ListGlasses はグラス名の一覧を返す。
func (c *Client) ListGlasses(ctx context.Context) ([]string, error) {
	return c.list(ctx, "g", "strGlass", "Failed to fetch glasses")
}

// ListAlcoholic はアルコール区分の一覧を返す。
func (c *Client) ListAlcoholic(ctx context.Context) ([]string, error) {
	return c.list(ctx, "a", "strAlcoholic", "Failed to fetch alcoholic options")
}

// list はlist.phpの応答から指定フィールドの値だけを取り出す。空の値は除く。
func (c *Client) list(ctx context.Context, param, field, failMessage string) ([]string, error) {
	drinks, err := c.fetch(ctx, "/list.php", url.Values{param: {"list"}}, failMessage)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(drinks))
	for _, d := range drinks {
		if s, ok := d[field].(string); ok && s != "" {
			values = append(values, s)
		}
	}
	return values, nil
}

// fetch はプロバイダーを呼び出し、drinks配列をサニタイズして返す。
// drinksがnullまたは配列でない場合は空スライスを返す。
func (c *Client) fetch(ctx context.Context, path string, query url.Values, failMessage string) ([]Drink, error) {
	resp, err := c.doer.Do(ctx, http.MethodGet, path, query, "", nil)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Error("カタログプロバイダーの呼び出しに失敗しました",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return nil, model.NewBadGatewayError(failMessage)
	}
	if !resp.OK() {
		c.logger.Error("カタログプロバイダーがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewBadGatewayError(failMessage)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		c.logger.Error("カタログプロバイダーのレスポンスのパースに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, model.NewBadGatewayError(failMessage)
	}

	drinks := []Drink{}
	if err := json.Unmarshal(env.Drinks, &drinks); err != nil || drinks == nil {
		return []Drink{}, nil
	}
	for _, d := range drinks {
		c.sanitize(d)
	}
	return drinks, nil
}

// sanitize は文字列フィールドからマークアップを取り除く。
func (c *Client) sanitize(d Drink) {
	if c.sanitizer == nil {
		return
	}
	for k, v := range d {
		if s, ok := v.(string); ok {
			d[k] = c.sanitizer.Sanitize(s)
		}
	}
}

func first(drinks []Drink) Drink {
	if len(drinks) == 0 {
		return nil
	}
	return drinks[0]
}
