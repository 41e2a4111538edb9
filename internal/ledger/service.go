package ledger

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/mixmatch/internal/model"
)

// MetricsRecorder は判定記録の計測を行う。
type MetricsRecorder interface {
	RecordJudgment(action, source string)
}

// Service は判定の記録と履歴の読み出しを行う。
type Service struct {
	store   Store
	metrics MetricsRecorder
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(store Store, metrics MetricsRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Record は判定を1件追記し、作成したイベントを返す。
//
// 入力の検証は保存先を呼ぶ前に行う。sourceが空の場合はtinderとして扱う。
// 同じ内容で繰り返し呼ぶと、その都度新しいイベントが作られる。
func (s *Service) Record(ctx context.Context, identity, cocktailID string, action model.Action, source model.Source) (*model.JudgmentEvent, error) {
	if identity == "" {
		return nil, model.NewUnauthorizedError("")
	}
	cocktailID = strings.TrimSpace(cocktailID)
	if cocktailID == "" {
		return nil, model.NewInvalidJudgmentError("cocktailId is required")
	}
	if !action.Valid() {
		return nil, model.NewInvalidJudgmentError("action must be like or dislike")
	}
	if source == "" {
		source = model.SourceTinder
	}
	if !source.Valid() {
		return nil, model.NewInvalidJudgmentError("source must be tinder or search")
	}

	event := &model.JudgmentEvent{
		ID:         s.newID(),
		UserID:     identity,
		CocktailID: cocktailID,
		Action:     action,
		Source:     source,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.store.Append(ctx, event); err != nil {
		s.logger.Error("判定の保存に失敗しました",
			slog.String("user_id", identity),
			slog.String("cocktail_id", cocktailID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageError()
	}

	if s.metrics != nil {
		s.metrics.RecordJudgment(string(action), string(source))
	}
	return event, nil
}

// Query はidentityの判定履歴を新しい順に返す。
// actionFilter・sourceFilterは空なら絞り込まない。不正な値は検証エラーにする。
func (s *Service) Query(ctx context.Context, identity, actionFilter, sourceFilter string) ([]*model.JudgmentEvent, error) {
	if identity == "" {
		return nil, model.NewUnauthorizedError("")
	}

	filter, err := ParseFilter(actionFilter, sourceFilter)
	if err != nil {
		return nil, err
	}

	events, err := s.store.QueryFiltered(ctx, identity, filter)
	if err != nil {
		s.logger.Error("判定履歴の取得に失敗しました",
			slog.String("user_id", identity),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageError()
	}
	if events == nil {
		events = []*model.JudgmentEvent{}
	}
	return events, nil
}

// ParseFilter はクエリ文字列の値からFilterを組み立てる。
func ParseFilter(action, source string) (Filter, error) {
	var f Filter
	if action != "" {
		f.Action = model.Action(action)
		if !f.Action.Valid() {
			return Filter{}, model.NewInvalidFilterError("filter", action)
		}
	}
	if source != "" {
		f.Source = model.Source(source)
		if !f.Source.Valid() {
			return Filter{}, model.NewInvalidFilterError("source", source)
		}
	}
	return f, nil
}
