// Package ledger は判定イベントの追記専用ログ（履歴台帳）を提供する。
//
// イベントは追記のみで更新・削除は行わない。同じカクテルへの判定を繰り返すと別々のイベントになる。
// 読み出しはidentity単位で、作成日時の新しい順に返す。
package ledger

import (
	"context"

	"github.com/hitoshi/mixmatch/internal/model"
)

// Filter は履歴の絞り込み条件。空のフィールドはその項目で絞り込まないことを表す。
// 両方指定した場合はAND条件になる。
type Filter struct {
	Action model.Action
	Source model.Source
}

// Matches はイベントが条件を満たすかを返す。
func (f Filter) Matches(e *model.JudgmentEvent) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	return true
}

// Store は台帳の保存先。
type Store interface {
	// Append はイベントを1件追記する。追記は原子的に行う。
	Append(ctx context.Context, event *model.JudgmentEvent) error

	// QueryFiltered はidentityのイベントのうち条件に合うものを作成日時の降順で返す。
	// 該当が無い場合は空スライスを返す。
	QueryFiltered(ctx context.Context, identity string, filter Filter) ([]*model.JudgmentEvent, error)
}
