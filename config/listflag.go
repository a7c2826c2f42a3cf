package config

import (
	"fmt"
	"strings"
)

// listFlag is a flag of separated values, e.g. routing files or Lua
// modules. The items are trimmed, and the empty items are dropped. When
// allowed values are set, other values are rejected.
type listFlag struct {
	sep     string
	allowed map[string]bool
	value   string
	values  []string
}

func newListFlag(sep string, allowed ...string) *listFlag {
	lf := &listFlag{
		sep:     sep,
		allowed: make(map[string]bool),
	}

	for _, a := range allowed {
		lf.allowed[a] = true
	}

	return lf
}

func commaListFlag(allowed ...string) *listFlag {
	return newListFlag(",", allowed...)
}

func (lf *listFlag) set(items []string) error {
	lf.values = nil
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		if len(lf.allowed) > 0 && !lf.allowed[item] {
			return fmt.Errorf("value not allowed: %s", item)
		}

		lf.values = append(lf.values, item)
	}

	lf.value = strings.Join(lf.values, lf.sep)
	return nil
}

func (lf *listFlag) Set(value string) error {
	if lf == nil {
		return nil
	}

	return lf.set(strings.Split(value, lf.sep))
}

// UnmarshalYAML accepts a list, or a single string of separated values.
func (lf *listFlag) UnmarshalYAML(unmarshal func(any) error) error {
	var value string
	if err := unmarshal(&value); err == nil {
		return lf.Set(value)
	}

	var items []string
	if err := unmarshal(&items); err != nil {
		return err
	}

	return lf.set(items)
}

func (lf *listFlag) String() string {
	if lf == nil {
		return ""
	}

	return lf.value
}
