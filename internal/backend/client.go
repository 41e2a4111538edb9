// Package backend はゲートウェイからカクテルサービス（カタログ・履歴API）を呼び出すクライアントを提供する。
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/mixmatch/internal/model"
	"github.com/hitoshi/mixmatch/internal/upstream"
)

// Doer はカクテルサービスへの転送を行うインターフェース。
// upstream.Clientが実装する。
type Doer interface {
	Do(ctx context.Context, method, path string, query url.Values, bearer string, body any) (*upstream.Response, error)
}

// SearchKind は検索条件の種別。1回の検索で1つだけ選ぶ。
type SearchKind string

const (
	SearchByName      SearchKind = "name"
	SearchByCategory  SearchKind = "category"
	SearchByGlass     SearchKind = "glass"
	SearchByAlcoholic SearchKind = "alcoholic"
	SearchByLetter    SearchKind = "letter"
)

// ParseSearchKind は検索種別を解釈する。未指定・未知の値は名前検索として扱う。
func ParseSearchKind(s string) SearchKind {
	switch k := SearchKind(strings.ToLower(strings.TrimSpace(s))); k {
	case SearchByCategory, SearchByGlass, SearchByAlcoholic, SearchByLetter:
		return k
	default:
		return SearchByName
	}
}

// route は検索種別ごとのパスとクエリパラメータ名を返す。
func (k SearchKind) route() (path, param string) {
	switch k {
	case SearchByCategory:
		return "/cocktails/by-category", "category"
	case SearchByGlass:
		return "/cocktails/by-glass", "glass"
	case SearchByAlcoholic:
		return "/cocktails/by-alcoholic", "alcoholic"
	case SearchByLetter:
		return "/cocktails/by-letter", "letter"
	default:
		return "/cocktails/search", "q"
	}
}

// RecordRequest は判定記録のリクエストボディ。
type RecordRequest struct {
	CocktailID string       `json:"cocktailId"`
	Action     model.Action `json:"action"`
	Source     model.Source `json:"source"`
}

// Client はカクテルサービスのクライアント。
// 非成功ステータスは*model.UpstreamError、到達不能はupstream.ErrUnavailableとして返す。
type Client struct {
	doer Doer
}

// NewClient はClientを生成する。
func NewClient(doer Doer) *Client {
	return &Client{doer: doer}
}

// Random はランダムなカクテルを1件取得する。
func (c *Client) Random(ctx context.Context, bearer string) (*model.Cocktail, error) {
	body, err := c.get(ctx, "/cocktails/random", nil, bearer, "failed to fetch random cocktail")
	if err != nil {
		return nil, err
	}

	// オブジェクト以外の応答はIDの無いレコードとして扱い、判定は呼び出し側に任せる
	var cocktail model.Cocktail
	if err := json.Unmarshal(upstream.LenientObject(body), &cocktail); err != nil {
		return &model.Cocktail{}, nil
	}
	return &cocktail, nil
}

// Search は指定種別でカクテルを検索し、結果の配列をそのまま返す。
func (c *Client) Search(ctx context.Context, bearer string, kind SearchKind, value string) (json.RawMessage, error) {
	path, param := kind.route()
	body, err := c.get(ctx, path, url.Values{param: {value}}, bearer, "cocktail search failed")
	if err != nil {
		return nil, err
	}
	return upstream.LenientArray(body), nil
}

// Lookup はIDでカクテルを取得する。
func (c *Client) Lookup(ctx context.Context, bearer, id string) (json.RawMessage, error) {
	body, err := c.get(ctx, "/cocktails/by-id", url.Values{"id": {id}}, bearer, "cocktail lookup failed")
	if err != nil {
		return nil, err
	}
	return upstream.LenientObject(body), nil
}

// ListFacet は絞り込み用語彙の1種類を取得する。
func (c *Client) ListFacet(ctx context.Context, bearer string, kind model.FacetKind) ([]string, error) {
	body, err := c.get(ctx, "/cocktails/"+string(kind), nil, bearer, "failed to fetch "+string(kind))
	if err != nil {
		return nil, err
	}

	values := []string{}
	if err := json.Unmarshal(upstream.LenientArray(body), &values); err != nil {
		return nil, fmt.Errorf("%sのパースに失敗しました: %w", kind, err)
	}
	return values, nil
}

// Record は判定を記録する。成功時はサービスのステータス（201）と作成されたイベントを返す。
func (c *Client) Record(ctx context.Context, bearer string, req RecordRequest) (int, json.RawMessage, error) {
	resp, err := c.doer.Do(ctx, http.MethodPost, "/history", nil, bearer, req)
	if err != nil {
		return 0, nil, err
	}
	if !resp.OK() {
		return 0, nil, resp.StatusError("recording failed")
	}
	return resp.StatusCode, upstream.LenientObject(resp.Body), nil
}

// History は判定履歴を取得する。queryはfilter・sourceをそのまま転送する。
func (c *Client) History(ctx context.Context, bearer string, query url.Values) (json.RawMessage, error) {
	body, err := c.get(ctx, "/history", query, bearer, "failed to fetch history")
	if err != nil {
		return nil, err
	}
	return upstream.LenientArray(body), nil
}

// JudgedIDs は判定済みのカクテルIDを返す。
// サーバー側で除外集合を補うときに使う。
func (c *Client) JudgedIDs(ctx context.Context, bearer string) ([]string, error) {
	body, err := c.History(ctx, bearer, nil)
	if err != nil {
		return nil, err
	}

	var events []model.JudgmentEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("判定履歴のパースに失敗しました: %w", err)
	}

	ids := make([]string, 0, len(events))
	for _, e := range events {
		if e.CocktailID != "" {
			ids = append(ids, e.CocktailID)
		}
	}
	return ids, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, bearer, fallback string) ([]byte, error) {
	resp, err := c.doer.Do(ctx, http.MethodGet, path, query, bearer, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.StatusError(fallback)
	}
	return resp.Body, nil
}
