package model

// FacetKind は絞り込み検索に使う語彙の種別。
type FacetKind string

const (
	FacetCategories FacetKind = "categories"
	FacetGlasses    FacetKind = "glasses"
	FacetAlcoholic  FacetKind = "alcoholic"
)

// FacetKinds は語彙取得時に並行して読み込む種別の一覧。
var FacetKinds = []FacetKind{FacetCategories, FacetGlasses, FacetAlcoholic}

// FacetVocabulary は絞り込み用の3種類の語彙。呼び出しごとに取得し直し、保存しない。
// 取得に失敗した種別は空配列になる。
type FacetVocabulary struct {
	Categories []string `json:"categories"`
	Glasses    []string `json:"glasses"`
	Alcoholic  []string `json:"alcoholic"`
}

// Set は種別に対応するフィールドに値を設定する。
func (v *FacetVocabulary) Set(kind FacetKind, values []string) {
	if values == nil {
		values = []string{}
	}
	switch kind {
	case FacetCategories:
		v.Categories = values
	case FacetGlasses:
		v.Glasses = values
	case FacetAlcoholic:
		v.Alcoholic = values
	}
}
