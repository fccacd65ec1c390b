package dbx

import (
	"strconv"
	"strings"
)

// Placeholders renders n numbered Postgres placeholders starting at $start,
// e.g. Placeholders(2, 3) == "$2, $3, $4". Used for IN (...) lists so the
// arguments stay plain scalars.
func Placeholders(start, n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(start + i))
	}
	return b.String()
}
