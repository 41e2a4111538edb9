// Package upstream はゲートウェイから上流サービス（IdP・カクテルサービス）への
// HTTP転送を提供する。
//
// Bearerトークンの付与、タイムアウト、サーキットブレーカー、寛容なJSON解釈、
// 失敗の正規化をまとめて扱う。接続失敗・タイムアウト・ブレーカー開放は
// すべてErrUnavailableとして呼び出し元に返し、原因はログにのみ残す。
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hitoshi/mixmatch/internal/metrics"
	"github.com/hitoshi/mixmatch/internal/model"
)

// maxBodySize は上流レスポンスとして読み込む最大バイト数。
const maxBodySize = 1 << 20

// ErrUnavailable は上流に到達できなかったことを表す。
// 接続失敗、タイムアウト、ボディ読み取り失敗、ブレーカー開放のいずれも含む。
var ErrUnavailable = errors.New("upstream unavailable")

// MetricsRecorder は上流呼び出しの計測を行うインターフェース。
type MetricsRecorder interface {
	RecordUpstreamCall(target, outcome string, duration time.Duration)
}

// Response は上流から受け取ったレスポンス。ステータスが非2xxでもエラーにはしない。
type Response struct {
	StatusCode int
	Body       []byte
}

// OK はステータスが2xxかどうかを返す。
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError は非成功レスポンスを、ステータスと詳細メッセージを保持したエラーに変換する。
// ボディから詳細が読み取れない場合はfallbackを使う。
func (r *Response) StatusError(fallback string) *model.UpstreamError {
	return &model.UpstreamError{
		Status: r.StatusCode,
		Detail: ExtractDetail(r.Body, fallback),
	}
}

// Options はClientの生成パラメータ。
type Options struct {
	Name             string // メトリクス・ログ・ブレーカーの識別名
	BaseURL          string
	Timeout          time.Duration
	FailureThreshold uint32        // 連続失敗がこの回数に達するとブレーカーを開く
	OpenTimeout      time.Duration // ブレーカーを開いたままにする時間
	HTTPClient       *http.Client  // nilの場合はTimeoutを設定したクライアントを生成する
	Logger           *slog.Logger
	Metrics          MetricsRecorder
}

// Client は上流サービス1つに対応する転送クライアント。
// 並行利用に対して安全。
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Response]
	logger     *slog.Logger
	metrics    MetricsRecorder
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("upstream", opts.Name))

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// クライアント切断によるキャンセルは上流の障害として数えない
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &Client{
		name:       opts.Name,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		breaker:    gobreaker.NewCircuitBreaker[*Response](settings),
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// Do はbaseURL+pathへリクエストを送る。
// bearerが空でなければAuthorizationヘッダーに付与し、bodyがnilでなければJSONとして送信する。
// 上流が応答した場合はステータスに関わらずResponseを返す。
// 応答が得られなかった場合はErrUnavailableをラップしたエラーを返す。
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, bearer string, body any) (*Response, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		payload = b
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*Response, error) {
		return c.send(ctx, method, reqURL, bearer, payload)
	})
	elapsed := time.Since(start)

	if err != nil {
		outcome := metrics.OutcomeUnavailable
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = metrics.OutcomeBreakerOpen
		}
		c.record(outcome, elapsed)
		c.logger.Error("上流サービスへの転送に失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if resp.OK() {
		c.record(metrics.OutcomeSuccess, elapsed)
	} else {
		c.record(metrics.OutcomeStatusError, elapsed)
		c.logger.Info("上流サービスが非成功ステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
	}
	return resp, nil
}

// Get はGETリクエストのショートハンド。
func (c *Client) Get(ctx context.Context, path string, query url.Values, bearer string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, query, bearer, nil)
}

// Post はPOSTリクエストのショートハンド。
func (c *Client) Post(ctx context.Context, path, bearer string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, nil, bearer, body)
}

func (c *Client) send(ctx context.Context, method, reqURL, bearer string, payload []byte) (*Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *Client) record(outcome string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordUpstreamCall(c.name, outcome, d)
	}
}
