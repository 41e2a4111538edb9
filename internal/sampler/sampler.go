// Package sampler はまだ判定していないカクテルを1件選ぶレコメンド抽選を提供する。
//
// 乱数はカタログの「ランダム」エンドポイントに任せ、ここでは結果を除外集合と照合するだけ。
// 抽選は逐次的に最大MaxDraws回まで行う。
package sampler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/mixmatch/internal/model"
)

// MaxDraws は1回のレコメンドで行う抽選の上限（初回＋再抽選5回）。
const MaxDraws = 6

var (
	// ErrExhausted は上限まで抽選してもすべて判定済みだったことを表す。
	// システムエラーではなく「今は新しい候補が無い」という結果として扱う。
	ErrExhausted = errors.New("no fresh cocktail available right now")

	// ErrInvalidDraw はランダム抽選の結果にIDが含まれていなかったことを表す。
	ErrInvalidDraw = errors.New("random draw returned no cocktail id")
)

// RandomSource はランダムなカクテルを1件返す。
type RandomSource interface {
	Random(ctx context.Context, bearer string) (*model.Cocktail, error)
}

// MetricsRecorder は抽選の計測を行うインターフェース。
type MetricsRecorder interface {
	RecordSamplerDraws(draws int)
	RecordSamplerExhausted()
}

// ExcludedSet は除外するカクテルIDの集合。
type ExcludedSet map[string]struct{}

// NewExcludedSet は空文字を除いたIDから集合を作る。
func NewExcludedSet(ids ...string) ExcludedSet {
	s := make(ExcludedSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Contains はidが集合に含まれるかを返す。
func (s ExcludedSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// With はidsを追加した新しい集合を返す。元の集合は変更しない。
func (s ExcludedSet) With(ids ...string) ExcludedSet {
	out := make(ExcludedSet, len(s)+len(ids))
	for id := range s {
		out[id] = struct{}{}
	}
	for _, id := range ids {
		if id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

// Sampler はレコメンド抽選を行う。
type Sampler struct {
	source  RandomSource
	metrics MetricsRecorder
	logger  *slog.Logger
}

// New はSamplerを生成する。metricsはnilでもよい。
func New(source RandomSource, metrics MetricsRecorder, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{source: source, metrics: metrics, logger: logger}
}

// Next は除外集合に含まれないカクテルを返す。
//
// 抽選結果が除外集合に含まれていれば再抽選し、MaxDraws回すべて重複した場合はErrExhaustedを返す。
// 抽選元のエラーはそのまま返す。excludedは読み取りのみで変更しない。
func (s *Sampler) Next(ctx context.Context, bearer string, excluded ExcludedSet) (*model.Cocktail, error) {
	for draw := 1; draw <= MaxDraws; draw++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cocktail, err := s.source.Random(ctx, bearer)
		if err != nil {
			return nil, err
		}
		if cocktail == nil || cocktail.ID == "" {
			s.logger.Warn("ランダム抽選の結果にIDがありません", slog.Int("draw", draw))
			return nil, ErrInvalidDraw
		}

		if !excluded.Contains(cocktail.ID) {
			s.recordDraws(draw)
			return cocktail, nil
		}

		s.logger.Debug("判定済みのカクテルを引いたため再抽選します",
			slog.Int("draw", draw),
			slog.String("cocktail_id", cocktail.ID),
		)
	}

	s.recordDraws(MaxDraws)
	if s.metrics != nil {
		s.metrics.RecordSamplerExhausted()
	}
	s.logger.Info("抽選上限に達しました", slog.Int("excluded", len(excluded)))
	return nil, ErrExhausted
}

func (s *Sampler) recordDraws(n int) {
	if s.metrics != nil {
		s.metrics.RecordSamplerDraws(n)
	}
}
