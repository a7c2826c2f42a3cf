package dsl

import "strings"

// Segments splits a path or a path template at '/'. A leading slash
// results in an empty first segment, which is kept so that segment
// counts of templates and request paths can be compared directly.
func Segments(p string) []string {
	return strings.Split(p, "/")
}

// SplitPlaceholder splits a template segment of the form
// prefix{name}suffix. It returns ok == false for literal segments and
// for segments with unbalanced or multiple braces.
func SplitPlaceholder(segment string) (prefix, name, suffix string, ok bool) {
	open := strings.IndexByte(segment, '{')
	if open < 0 {
		return "", "", "", false
	}

	end := strings.IndexByte(segment[open:], '}')
	if end < 0 {
		return "", "", "", false
	}

	end += open
	prefix, name, suffix = segment[:open], segment[open+1:end], segment[end+1:]
	if name == "" || strings.ContainsAny(prefix, "{}") || strings.ContainsAny(suffix, "{}") {
		return "", "", "", false
	}

	return prefix, name, suffix, true
}

func isPlaceholderCandidate(segment string) bool {
	return strings.ContainsAny(segment, "{}")
}

// Placeholders returns the placeholder names of a path template in
// left to right order.
func Placeholders(p string) []string {
	var names []string
	for _, s := range Segments(p) {
		if _, name, _, ok := SplitPlaceholder(s); ok {
			names = append(names, name)
		}
	}

	return names
}
