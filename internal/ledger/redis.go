package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/mixmatch/internal/model"
)

// Redisのキー接頭辞
const (
	eventKeyPrefix = "mixmatch:judgment:"  // + イベントID -> イベントJSON
	indexKeyPrefix = "mixmatch:judgments:" // + identity -> イベントIDのsorted set（スコアは作成日時のunixナノ秒）
)

// RedisStore はRedisを使うStore。
// イベント本体を文字列キーに、identityごとの索引をsorted setに保持する。
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore はRedisStoreを生成する。クライアントのライフサイクルは呼び出し側で管理する。
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Append はイベント本体と索引をMULTI/EXECで同時に書き込む。
func (s *RedisStore) Append(ctx context.Context, event *model.JudgmentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("判定のエンコードに失敗しました: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, eventKeyPrefix+event.ID, payload, 0)
		pipe.ZAdd(ctx, indexKeyPrefix+event.UserID, redis.Z{
			Score:  float64(event.CreatedAt.UnixNano()),
			Member: event.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("判定の追加に失敗しました: %w", err)
	}
	return nil
}

// QueryFiltered は索引を新しい順に読み、本体を取得して条件で絞り込む。
func (s *RedisStore) QueryFiltered(ctx context.Context, identity string, filter Filter) ([]*model.JudgmentEvent, error) {
	ids, err := s.client.ZRevRange(ctx, indexKeyPrefix+identity, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("判定索引の取得に失敗しました: %w", err)
	}

	events := []*model.JudgmentEvent{}
	if len(ids) == 0 {
		return events, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = eventKeyPrefix + id
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("判定の取得に失敗しました: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// 索引だけ残っている場合は読み飛ばす
			continue
		}
		e := &model.JudgmentEvent{}
		if err := json.Unmarshal([]byte(raw), e); err != nil {
			return nil, fmt.Errorf("判定 %s のデコードに失敗しました: %w", ids[i], err)
		}
		if filter.Matches(e) {
			events = append(events, e)
		}
	}
	return events, nil
}
