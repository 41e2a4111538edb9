package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/mixmatch/internal/model"
)

// PostgresStore はPostgreSQLのjudgmentsテーブルを使うStore。
// テーブルへはINSERTとSELECTのみ行う。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append はイベントを1行追加する。
func (s *PostgresStore) Append(ctx context.Context, event *model.JudgmentEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO judgments (id, user_id, cocktail_id, action, source, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.UserID, event.CocktailID,
		string(event.Action), string(event.Source), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("判定の追加に失敗しました: %w", err)
	}
	return nil
}

// QueryFiltered はidentityの判定を条件で絞り込み、作成日時の降順で返す。
// 同時刻の行は挿入順の逆（seq降順）で並べる。
func (s *PostgresStore) QueryFiltered(ctx context.Context, identity string, filter Filter) ([]*model.JudgmentEvent, error) {
	query, args := buildQuery(identity, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("判定履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	events := []*model.JudgmentEvent{}
	for rows.Next() {
		e := &model.JudgmentEvent{}
		var action, source string
		if err := rows.Scan(&e.ID, &e.UserID, &e.CocktailID, &action, &source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("判定履歴のスキャンに失敗しました: %w", err)
		}
		e.Action = model.Action(action)
		e.Source = model.Source(source)
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("判定履歴の読み取り中にエラーが発生しました: %w", err)
	}

	return events, nil
}

// buildQuery は絞り込み条件に応じたSELECT文と引数を組み立てる。
func buildQuery(identity string, filter Filter) (string, []any) {
	conds := []string{"user_id = $1"}
	args := []any{identity}

	if filter.Action != "" {
		args = append(args, string(filter.Action))
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.Source != "" {
		args = append(args, string(filter.Source))
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}

	query := `SELECT id, user_id, cocktail_id, action, source, created_at
		 FROM judgments
		 WHERE ` + strings.Join(conds, " AND ") + `
		 ORDER BY created_at DESC, seq DESC`
	return query, args
}
