package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"
)

// yamlFlag sets options from a YAML document passed on the command
// line. Unknown keys are rejected, and an empty value unsets the
// options.
type yamlFlag[T any] struct {
	ptr   **T
	value string
}

func newYamlFlag[T any](ptr **T) *yamlFlag[T] {
	return &yamlFlag[T]{ptr: ptr}
}

func (yf *yamlFlag[T]) Set(value string) error {
	yf.value = value
	if strings.TrimSpace(value) == "" {
		*yf.ptr = nil
		return nil
	}

	opts := new(T)
	if err := yaml.UnmarshalStrict([]byte(value), opts); err != nil {
		return fmt.Errorf("failed to parse yaml: %w", err)
	}

	*yf.ptr = opts
	return nil
}

func (yf *yamlFlag[T]) UnmarshalYAML(unmarshal func(any) error) error {
	opts := new(T)
	if err := unmarshal(opts); err != nil {
		return err
	}

	*yf.ptr = opts
	return nil
}

func (yf *yamlFlag[T]) String() string {
	if yf == nil {
		return ""
	}

	return yf.value
}
