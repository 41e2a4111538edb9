// Package facet は絞り込み検索に使う語彙（カテゴリ・グラス・アルコール区分）を読み込む。
package facet

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/mixmatch/internal/model"
	"github.com/hitoshi/mixmatch/internal/upstream"
)

// Lister は語彙1種類を取得する。
type Lister interface {
	ListFacet(ctx context.Context, bearer string, kind model.FacetKind) ([]string, error)
}

// MetricsRecorder は語彙取得失敗を計測する。
type MetricsRecorder interface {
	RecordFacetFailure(kind string)
}

// Loader は3種類の語彙を並行に取得し、1つにまとめる。状態は持たない。
type Loader struct {
	source  Lister
	metrics MetricsRecorder
	logger  *slog.Logger
}

// NewLoader はLoaderを生成する。metricsはnilでもよい。
func NewLoader(source Lister, metrics MetricsRecorder, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, metrics: metrics, logger: logger}
}

// Load は語彙を取得する。
//
// 各種類の取得は独立しており、失敗した種類は空配列になる。1つの失敗が他の取得を止めることはない。
// 3種類すべてが上流到達不能で失敗した場合はupstream.ErrUnavailableを返す。
// 3種類すべてが同じ認証エラー（401/403）で拒否された場合は、資格情報の問題として呼び出し元にそのエラーを返す。
func (l *Loader) Load(ctx context.Context, bearer string) (*model.FacetVocabulary, error) {
	kinds := model.FacetKinds
	results := make([][]string, len(kinds))
	errs := make([]error, len(kinds))

	// 各ブランチは常にnilを返し、エラーはerrsに記録する
	var g errgroup.Group
	for i, kind := range kinds {
		g.Go(func() error {
			values, err := l.source.ListFacet(ctx, bearer, kind)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = values
			return nil
		})
	}
	_ = g.Wait()

	vocab := &model.FacetVocabulary{}
	unavailable := 0
	var rejection *model.UpstreamError
	rejected := 0
	for i, kind := range kinds {
		if err := errs[i]; err != nil {
			if errors.Is(err, upstream.ErrUnavailable) {
				unavailable++
			}
			if ue, ok := credentialRejection(err); ok && (rejection == nil || rejection.Status == ue.Status) {
				rejection = ue
				rejected++
			}
			l.logger.Warn("語彙の取得に失敗したため空配列で応答します",
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
			if l.metrics != nil {
				l.metrics.RecordFacetFailure(string(kind))
			}
		}
		vocab.Set(kind, results[i])
	}

	if unavailable == len(kinds) {
		return nil, upstream.ErrUnavailable
	}
	if rejected == len(kinds) {
		return nil, rejection
	}
	return vocab, nil
}

// credentialRejection はerrがアクセストークンの拒否（401/403）を表す場合にそれを返す。
func credentialRejection(err error) (*model.UpstreamError, bool) {
	var ue *model.UpstreamError
	if !errors.As(err, &ue) {
		return nil, false
	}
	switch ue.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ue, true
	default:
		return nil, false
	}
}
