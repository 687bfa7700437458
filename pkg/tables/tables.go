// Package tables extracts the set of table names a SQL statement depends on
// by scanning its FROM and JOIN clauses. It is deliberately a conservative
// regex-level extractor, not a full SQL parser: it exists only to produce
// invalidation tags, not to validate or execute SQL. A missed table name
// causes staleness bugs; a spurious extra one only causes unnecessary
// invalidation, so extraction intentionally errs toward over-matching.
package tables

import "regexp"

// tableRef matches one FROM/JOIN clause's table reference, optionally
// schema-qualified and optionally bracket- or double-quote-wrapped, and
// optionally followed by an AS alias which is discarded.
var tableRef = regexp.MustCompile(
	`(?i)\b(?:FROM|JOIN)\s+` +
		`(?:([\["]?[\w]+[\]"]?)\.)?` + // optional schema prefix
		`([\[\"]?[\w]+[\]\"]?)`, // table name
)

// Extract returns the case-insensitive set of table names referenced by
// FROM or JOIN clauses in sql, lowercased and with one level of
// schema-prefix and bracket/double-quote wrapping removed.
func Extract(sql string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, m := range tableRef.FindAllStringSubmatch(sql, -1) {
		name := m[2]
		name = unwrap(name)
		if name == "" {
			continue
		}
		out[toLower(name)] = struct{}{}
	}
	return out
}

// unwrap strips one layer of [brackets] or "double quotes" from name.
func unwrap(name string) string {
	if len(name) >= 2 {
		if (name[0] == '[' && name[len(name)-1] == ']') ||
			(name[0] == '"' && name[len(name)-1] == '"') {
			return name[1 : len(name)-1]
		}
	}
	return name
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
