package sdata

import (
	"strings"
	"sync"
	"unicode"
)

var (
	snakeCache sync.Map // map[string]string
	camelCache sync.Map // map[string]string
)

// SnakeName converts a camelCase/PascalCase identifier to snake_case,
// memoized for the process lifetime since field/table names are
// repeatedly re-rendered into CSV headers and SQL identifiers.
func SnakeName(name string) string {
	if v, ok := snakeCache.Load(name); ok {
		return v.(string)
	}
	out := toSnake(name)
	snakeCache.Store(name, out)
	return out
}

// CamelName converts a snake_case identifier to lowerCamelCase.
func CamelName(name string) string {
	if v, ok := camelCache.Load(name); ok {
		return v.(string)
	}
	out := toCamel(name)
	camelCache.Store(name, out)
	return out
}

func toSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "_")
}

func toCamel(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(strings.ToLower(p))
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(strings.ToLower(p[1:]))
	}
	return b.String()
}
