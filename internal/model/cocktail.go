package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxIngredients はカタログのレコードが持つ材料スロット数。
const maxIngredients = 15

// Ingredient は材料名と分量の組。
type Ingredient struct {
	Name    string `json:"name"`
	Measure string `json:"measure,omitempty"`
}

// Label は "材料 – 分量" 形式の表示用文字列を返す。
func (i Ingredient) Label() string {
	if i.Measure == "" {
		return i.Name
	}
	return fmt.Sprintf("%s – %s", i.Name, strings.TrimSpace(i.Measure))
}

// Cocktail はカタログプロバイダーから取得したカクテルのレコード。
// 読み取り専用で、永続化はしない。
// Rawには受信したJSONをそのまま保持し、クライアントへの応答時に再利用する。
type Cocktail struct {
	ID           string
	Name         string
	Thumb        string
	Category     string
	Alcoholic    string
	Glass        string
	Instructions string
	Ingredients  []Ingredient

	Raw json.RawMessage
}

// UnmarshalJSON はTheCocktailDB形式（idDrink, strDrink, strIngredient1..15 等）のJSONを読み込む。
func (c *Cocktail) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*c = Cocktail{
		ID:           stringField(fields, "idDrink"),
		Name:         stringField(fields, "strDrink"),
		Thumb:        stringField(fields, "strDrinkThumb"),
		Category:     stringField(fields, "strCategory"),
		Alcoholic:    stringField(fields, "strAlcoholic"),
		Glass:        stringField(fields, "strGlass"),
		Instructions: stringField(fields, "strInstructions"),
		Raw:          append(json.RawMessage(nil), data...),
	}

	for i := 1; i <= maxIngredients; i++ {
		name := stringField(fields, fmt.Sprintf("strIngredient%d", i))
		if name == "" {
			continue
		}
		c.Ingredients = append(c.Ingredients, Ingredient{
			Name:    name,
			Measure: stringField(fields, fmt.Sprintf("strMeasure%d", i)),
		})
	}

	return nil
}

// MarshalJSON は受信時のJSONがあればそのまま返し、なければTheCocktailDB形式で組み立てる。
func (c Cocktail) MarshalJSON() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}

	fields := map[string]any{
		"idDrink":         c.ID,
		"strDrink":        c.Name,
		"strDrinkThumb":   nullable(c.Thumb),
		"strCategory":     nullable(c.Category),
		"strAlcoholic":    nullable(c.Alcoholic),
		"strGlass":        nullable(c.Glass),
		"strInstructions": nullable(c.Instructions),
	}
	for i, ing := range c.Ingredients {
		if i >= maxIngredients {
			break
		}
		fields[fmt.Sprintf("strIngredient%d", i+1)] = ing.Name
		fields[fmt.Sprintf("strMeasure%d", i+1)] = nullable(ing.Measure)
	}
	return json.Marshal(fields)
}

// stringField はmapから文字列値を取り出す。数値IDは文字列に変換する。
func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
