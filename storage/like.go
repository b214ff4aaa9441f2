package storage

import "strings"

// likeEscaper escapes the SQL LIKE metacharacters so a caller-supplied
// prefix matches literally. All SQL adapters pass the result with
// ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike returns prefix with LIKE metacharacters escaped, ready to be
// suffixed with '%' in a LIKE pattern.
func EscapeLike(prefix string) string {
	return likeEscaper.Replace(prefix)
}
