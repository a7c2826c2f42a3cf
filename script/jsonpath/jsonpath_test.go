package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

const testJSON = `{"users": [{"name": "Sam", "age": 42, "admin": true}, {"name": "Kim", "tags": ["a", "b"]}]}`

func TestJSONPath(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	L.PreloadModule("jsonpath", Loader)
	L.SetGlobal("doc", lua.LString(testJSON))

	require.NoError(t, L.DoString(`
		local jsonpath = require("jsonpath")
		name = jsonpath.get(doc, "users.0.name")
		age = jsonpath.get(doc, "users.0.age")
		admin = jsonpath.get(doc, "users.0.admin")
		missing = jsonpath.get(doc, "users.5.name")
		tags = jsonpath.get(doc, "users.1.tags")
		count = jsonpath.get(doc, "users.#")
		names = jsonpath.raw(doc, "users.#.name")
		rawMissing = jsonpath.raw(doc, "nope")
		exists = jsonpath.exists(doc, "users.1.tags")
		notExists = jsonpath.exists(doc, "users.1.age")
		valid = jsonpath.valid(doc)
		invalid = jsonpath.valid("{")
	`))

	assert.Equal(t, "Sam", L.GetGlobal("name").String())
	assert.Equal(t, lua.LNumber(42), L.GetGlobal("age"))
	assert.Equal(t, lua.LTrue, L.GetGlobal("admin"))
	assert.Equal(t, lua.LNil, L.GetGlobal("missing"))
	assert.Equal(t, lua.LNumber(2), L.GetGlobal("count"))
	assert.Equal(t, `["Sam","Kim"]`, L.GetGlobal("names").String())
	assert.Equal(t, lua.LNil, L.GetGlobal("rawMissing"))
	assert.Equal(t, lua.LTrue, L.GetGlobal("exists"))
	assert.Equal(t, lua.LFalse, L.GetGlobal("notExists"))
	assert.Equal(t, lua.LTrue, L.GetGlobal("valid"))
	assert.Equal(t, lua.LFalse, L.GetGlobal("invalid"))

	tags, ok := L.GetGlobal("tags").(*lua.LTable)
	require.True(t, ok)
	assert.Equal(t, 2, tags.Len())
	assert.Equal(t, "b", tags.RawGetInt(2).String())
}
