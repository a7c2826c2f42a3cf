package routing

import (
	"slices"
	"strings"

	"github.com/zalando/scriptroute/dsl"
)

// Match matches a request path against a route pattern segment by
// segment. The segment counts must be equal, literal segments must be
// equal, and a placeholder segment, optionally with a literal prefix
// and suffix, e.g. file-{id}.json, captures the text between them. The
// placeholder must be one of args, and empty captures don't match.
//
// The captures are returned in the order of the path segments, to be
// bound positionally to the function parameters.
func Match(pattern string, args []string, path string) ([]string, bool) {
	ps := dsl.Segments(pattern)
	us := dsl.Segments(path)
	if len(ps) != len(us) {
		return nil, false
	}

	var captures []string
	for i, s := range ps {
		prefix, name, suffix, ok := dsl.SplitPlaceholder(s)
		if !ok {
			if s != us[i] {
				return nil, false
			}

			continue
		}

		if !slices.Contains(args, name) {
			return nil, false
		}

		u := us[i]
		if len(u) <= len(prefix)+len(suffix) ||
			!strings.HasPrefix(u, prefix) ||
			!strings.HasSuffix(u, suffix) {
			return nil, false
		}

		captures = append(captures, u[len(prefix):len(u)-len(suffix)])
	}

	return captures, true
}

// maps the captures to the placeholder names of the pattern
func params(pattern string, captures []string) map[string]string {
	names := dsl.Placeholders(pattern)
	if len(names) == 0 {
		return nil
	}

	p := make(map[string]string, len(names))
	for i, n := range names {
		if i < len(captures) {
			p[n] = captures[i]
		}
	}

	return p
}
