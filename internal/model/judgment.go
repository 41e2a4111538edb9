package model

import "time"

// Action はカクテルに対するユーザーの判定を表す。
type Action string

const (
	// ActionLike は「好き」の判定。
	ActionLike Action = "like"
	// ActionDislike は「好きではない」の判定。
	ActionDislike Action = "dislike"
)

// Valid は定義済みの判定値かどうかを返す。
func (a Action) Valid() bool {
	return a == ActionLike || a == ActionDislike
}

// Source は判定がどの画面から行われたかを表す。
type Source string

const (
	// SourceTinder はレコメンド（スワイプ）画面からの判定。
	SourceTinder Source = "tinder"
	// SourceSearch は検索画面からの判定。
	SourceSearch Source = "search"
)

// Valid は定義済みの判定元かどうかを返す。
func (s Source) Valid() bool {
	return s == SourceTinder || s == SourceSearch
}

// JudgmentEvent はユーザーの判定1件を表す。作成後は変更・削除しない。
type JudgmentEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	CocktailID string    `json:"cocktailId"`
	Action     Action    `json:"action"`
	Source     Source    `json:"source"`
	CreatedAt  time.Time `json:"createdAt"`
}
