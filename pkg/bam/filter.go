package bam

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
)

// Filter operator suffixes. A map key like "name__like" produces
// name:like('value'); a bare key produces name:'value'.
var filterOperators = map[string]string{
	"like":       "like",
	"ne":         "ne",
	"contains":   "contains",
	"startswith": "startsWith",
	"endswith":   "endsWith",
	"gt":         "gt",
	"ge":         "ge",
	"lt":         "lt",
	"le":         "le",
	"in":         "in",
}

// BuildFilter turns a field→value map into the server's filter grammar:
// terms joined by " and ", string values single-quoted with embedded
// quotes escaped, numerics and booleans bare.
//
// IPv6 string values are double-quoted instead: their colons would
// otherwise collide with the field:value separator.
func BuildFilter(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	terms := make([]string, 0, len(keys))
	for _, key := range keys {
		field, op := splitOperator(key)
		value := formatFilterValue(fields[key])
		if op == "" {
			terms = append(terms, fmt.Sprintf("%s:%s", field, value))
		} else {
			terms = append(terms, fmt.Sprintf("%s:%s(%s)", field, op, value))
		}
	}
	return strings.Join(terms, " and ")
}

// splitOperator separates a "field__op" key into field and grammar
// operator. Unknown suffixes stay part of the field name.
func splitOperator(key string) (string, string) {
	idx := strings.LastIndex(key, "__")
	if idx < 0 {
		return key, ""
	}
	op, ok := filterOperators[strings.ToLower(key[idx+2:])]
	if !ok {
		return key, ""
	}
	return key[:idx], op
}

// formatFilterValue renders one filter operand.
func formatFilterValue(v any) string {
	switch value := v.(type) {
	case nil:
		return "null"
	case bool:
		return fmt.Sprintf("%t", value)
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%d", value)
	case float32, float64:
		return fmt.Sprintf("%v", value)
	case string:
		return quoteFilterString(value)
	default:
		return quoteFilterString(fmt.Sprintf("%v", value))
	}
}

// quoteFilterString quotes a string operand. Single quotes inside the
// value are escaped as \'; IPv6 addresses switch to double quotes.
func quoteFilterString(s string) string {
	if isIPv6(s) {
		return `"` + s + `"`
	}
	escaped := strings.ReplaceAll(s, "'", `\'`)
	return "'" + escaped + "'"
}

// isIPv6 reports whether s parses as a bare IPv6 address or prefix.
func isIPv6(s string) bool {
	if !strings.Contains(s, ":") {
		return false
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Is6()
	}
	if prefix, err := netip.ParsePrefix(s); err == nil {
		return prefix.Addr().Is6()
	}
	return false
}
