package postback

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const messageHeader = "📩 *New postback received:*\n"

var keyEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// FormatMessage renders a postback as Telegram Markdown, one line per
// field in key order.
func FormatMessage(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k != APIKeyField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(messageHeader)
	for _, k := range keys {
		fmt.Fprintf(&b, "📌 *%s*: `%s`\n", keyEscaper.Replace(k), formatValue(payload[k]))
	}
	return b.String()
}

// formatValue prints v for a code span, which cannot contain backticks.
func formatValue(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = "null"
	case string:
		s = val
	case json.Number:
		s = val.String()
	case bool:
		s = fmt.Sprint(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprint(val)
		} else {
			s = string(data)
		}
	}
	return strings.ReplaceAll(s, "`", "'")
}
