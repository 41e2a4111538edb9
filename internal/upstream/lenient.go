package upstream

import (
	"bytes"
	"encoding/json"
	"strings"
)

var (
	emptyObject = json.RawMessage(`{}`)
	emptyArray  = json.RawMessage(`[]`)
)

// LenientObject はbodyが有効なJSONならそのまま返し、そうでなければ {} を返す。
func LenientObject(body []byte) json.RawMessage {
	return lenient(body, emptyObject)
}

// LenientArray はbodyがJSON配列ならそのまま返し、そうでなければ [] を返す。
func LenientArray(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return emptyArray
	}
	return lenient(trimmed, emptyArray)
}

func lenient(body []byte, fallback json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return fallback
	}
	return json.RawMessage(trimmed)
}

// ExtractDetail はエラーレスポンスのボディから人が読めるメッセージを取り出す。
// detail、messageの順に探し、messageが文字列配列なら "; " で連結する。
// どれも見つからない場合やボディが壊れている場合はfallbackを返す。
func ExtractDetail(body []byte, fallback string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return fallback
	}

	for _, key := range []string{"detail", "message"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return strings.Join(list, "; ")
		}
	}
	return fallback
}
