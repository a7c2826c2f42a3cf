package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestListFlagSet(t *testing.T) {
	for _, tc := range []struct {
		name     string
		flag     *listFlag
		value    string
		expected []string
		str      string
		fail     bool
	}{{
		name:     "comma separated",
		flag:     commaListFlag(),
		value:    "routes.sr,more.sr",
		expected: []string{"routes.sr", "more.sr"},
		str:      "routes.sr,more.sr",
	}, {
		name:     "custom separator",
		flag:     newListFlag(":"),
		value:    "base:json:url",
		expected: []string{"base", "json", "url"},
		str:      "base:json:url",
	}, {
		name:     "spaces and empty items",
		flag:     commaListFlag(),
		value:    " routes.sr, ,more.sr ,",
		expected: []string{"routes.sr", "more.sr"},
		str:      "routes.sr,more.sr",
	}, {
		name:  "empty value",
		flag:  commaListFlag(),
		value: "",
	}, {
		name:     "allowed values",
		flag:     commaListFlag("base", "json", "url"),
		value:    "json,base",
		expected: []string{"json", "base"},
		str:      "json,base",
	}, {
		name:  "not allowed value",
		flag:  commaListFlag("base", "json"),
		value: "base,http",
		fail:  true,
	}} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.flag.Set(tc.value)
			if tc.fail {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			if d := cmp.Diff(tc.expected, tc.flag.values); d != "" {
				t.Errorf("unexpected values:\n%s", d)
			}

			assert.Equal(t, tc.str, tc.flag.String())
		})
	}
}

func TestListFlagYaml(t *testing.T) {
	for _, tc := range []struct {
		name     string
		flag     *listFlag
		input    string
		expected []string
		str      string
		fail     bool
	}{{
		name:     "list",
		flag:     commaListFlag(),
		input:    "- routes.sr\n- more.sr",
		expected: []string{"routes.sr", "more.sr"},
		str:      "routes.sr,more.sr",
	}, {
		name:     "list joined with custom separator",
		flag:     newListFlag(":"),
		input:    "- base\n- json",
		expected: []string{"base", "json"},
		str:      "base:json",
	}, {
		name:     "separated string",
		flag:     commaListFlag(),
		input:    "routes.sr, more.sr",
		expected: []string{"routes.sr", "more.sr"},
		str:      "routes.sr,more.sr",
	}, {
		name:  "not allowed value in list",
		flag:  commaListFlag("base"),
		input: "- base\n- http",
		fail:  true,
	}, {
		name:  "mapping",
		flag:  commaListFlag(),
		input: "foo: bar",
		fail:  true,
	}} {
		t.Run(tc.name, func(t *testing.T) {
			err := yaml.Unmarshal([]byte(tc.input), tc.flag)
			if tc.fail {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			if d := cmp.Diff(tc.expected, tc.flag.values); d != "" {
				t.Errorf("unexpected values:\n%s", d)
			}

			assert.Equal(t, tc.str, tc.flag.String())
		})
	}
}

func TestListFlagNil(t *testing.T) {
	var lf *listFlag
	assert.NoError(t, lf.Set("foo"))
	assert.Equal(t, "", lf.String())
}
