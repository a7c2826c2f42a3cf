package config

import (
	"errors"
	"strings"
)

var errEmptyDocument = errors.New("empty routing document")

// documentsFlag collects inline routing documents. The flag can be
// repeated. In the config file, it accepts either a single document or
// a list of documents.
type documentsFlag []string

func (f *documentsFlag) String() string {
	if f == nil {
		return ""
	}

	return strings.Join(*f, "\n")
}

func (f *documentsFlag) Set(value string) error {
	if strings.TrimSpace(value) == "" {
		return errEmptyDocument
	}

	*f = append(*f, value)
	return nil
}

func (f *documentsFlag) UnmarshalYAML(unmarshal func(any) error) error {
	var docs []string
	var single string
	if err := unmarshal(&single); err == nil {
		docs = []string{single}
	} else if err := unmarshal(&docs); err != nil {
		return err
	}

	*f = nil
	for _, d := range docs {
		if err := f.Set(d); err != nil {
			return err
		}
	}

	return nil
}
