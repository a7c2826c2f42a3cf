package dsl

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
)

const bodyIndent = "    "

func escape(s string, chars string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	for i := 0; i < len(chars); i++ {
		c := chars[i : i+1]
		s = strings.ReplaceAll(s, c, "\\"+c)
	}

	return s
}

func quote(s string) string {
	return `"` + escape(s, `"`) + `"`
}

func (d *Definition) attributeString() string {
	var attrs []string
	if d.Path != "/"+d.Name {
		attrs = append(attrs, fmt.Sprintf("route(%s)", quote(d.Path)))
	}

	if len(d.Config) > 0 {
		keys := make([]string, 0, len(d.Config))
		for k := range d.Config {
			keys = append(keys, k)
		}

		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%s", k, quote(d.Config[k]))
		}

		attrs = append(attrs, fmt.Sprintf("cfg(%s)", strings.Join(pairs, ", ")))
	}

	if len(attrs) == 0 {
		return ""
	}

	return "#[" + strings.Join(attrs, ", ") + "]\n"
}

func (d *Definition) headString() string {
	switch d.Type {
	case Index:
		return IndexName
	case Status:
		return fmt.Sprintf("%03d", d.Status)
	case Wildcard:
		return "*"
	default:
		return fmt.Sprintf("%sfn %s(%s)", d.attributeString(), d.Name, strings.Join(d.Args, ", "))
	}
}

func bodyString(body string) string {
	if body == "" {
		return "{\n}"
	}

	lines := strings.Split(body, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = bodyIndent + l
		}
	}

	return "{\n" + strings.Join(lines, "\n") + "\n}"
}

// String serializes a single definition in its canonical form.
func (d *Definition) String() string {
	return d.headString() + " " + bodyString(d.Body)
}

// Fprint writes the canonical form of the definitions, separated by
// empty lines. Parsing the output results in equal definitions, except
// for the source line positions.
func Fprint(w io.Writer, defs ...*Definition) {
	for i, d := range defs {
		if i > 0 {
			fmt.Fprint(w, "\n\n")
		}

		fmt.Fprint(w, d.String())
	}

	if len(defs) > 0 {
		fmt.Fprint(w, "\n")
	}
}

// String serializes a set of definitions into a routing document.
func String(defs ...*Definition) string {
	var buf bytes.Buffer
	Fprint(&buf, defs...)
	return buf.String()
}
