package overlay

import (
	"fmt"
	"strings"
)

const (
	wildChunk = "*"
	wildAny   = "**"
)

// ValidateKeyExpr rejects empty expressions and chunks that mix wildcards
// with other characters.
func ValidateKeyExpr(expr string) error {
	if expr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKeyExpr)
	}
	for _, c := range strings.Split(expr, "/") {
		if c != wildChunk && c != wildAny && strings.Contains(c, "*") {
			return fmt.Errorf("%w: %q", ErrInvalidKeyExpr, expr)
		}
	}
	return nil
}

// IsWild reports whether expr contains a wildcard chunk
func IsWild(expr string) bool {
	return strings.Contains(expr, "*")
}

// Intersects reports whether some key is matched by both a and b
func Intersects(a, b string) bool {
	return intersects(strings.Split(a, "/"), strings.Split(b, "/"))
}

func intersects(a, b []string) bool {
	switch {
	case len(a) == 0 && len(b) == 0:
		return true
	case len(a) > 0 && a[0] == wildAny:
		return intersects(a[1:], b) || (len(b) > 0 && intersects(a, b[1:]))
	case len(b) > 0 && b[0] == wildAny:
		return intersects(a, b[1:]) || (len(a) > 0 && intersects(a[1:], b))
	case len(a) == 0 || len(b) == 0:
		return false
	case a[0] == wildChunk || b[0] == wildChunk || a[0] == b[0]:
		return intersects(a[1:], b[1:])
	default:
		return false
	}
}

// Includes reports whether every key matched by key is also matched by expr
func Includes(expr, key string) bool {
	return includes(strings.Split(expr, "/"), strings.Split(key, "/"))
}

func includes(e, k []string) bool {
	switch {
	case len(e) == 0:
		return len(k) == 0
	case e[0] == wildAny:
		return includes(e[1:], k) || (len(k) > 0 && includes(e, k[1:]))
	case len(k) == 0 || k[0] == wildAny:
		return false
	case e[0] == wildChunk || e[0] == k[0]:
		return includes(e[1:], k[1:])
	default:
		return false
	}
}

// Generalize returns the first expression of joins that includes key, or key
// itself when none does.
func Generalize(key string, joins []string) string {
	for _, j := range joins {
		if Includes(j, key) {
			return j
		}
	}
	return key
}
