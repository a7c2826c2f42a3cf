// Package jsonpath provides the jsonpath Lua module, querying JSON
// documents by gjson paths, e.g.
//
//	local jsonpath = require("jsonpath")
//	local name = jsonpath.get(body, "users.0.name")
package jsonpath

import (
	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"
)

func Loader(L *lua.LState) int {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"get":    get,
		"raw":    raw,
		"exists": exists,
		"valid":  valid,
	})
	L.Push(mod)
	return 1
}

func toLua(L *lua.LState, r gjson.Result) (lua.LValue, error) {
	switch r.Type {
	case gjson.String:
		return lua.LString(r.Str), nil
	case gjson.Number:
		return lua.LNumber(r.Num), nil
	case gjson.True:
		return lua.LTrue, nil
	case gjson.False:
		return lua.LFalse, nil
	case gjson.JSON:
		return luajson.Decode(L, []byte(r.Raw))
	default:
		return lua.LNil, nil
	}
}

// get(json, path) returns the value at the path, objects and arrays as
// tables
func get(L *lua.LState) int {
	r := gjson.Get(L.CheckString(1), L.CheckString(2))
	v, err := toLua(L, r)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}

	L.Push(v)
	return 1
}

// raw(json, path) returns the JSON text of the value at the path
func raw(L *lua.LState) int {
	r := gjson.Get(L.CheckString(1), L.CheckString(2))
	if !r.Exists() {
		L.Push(lua.LNil)
		return 1
	}

	L.Push(lua.LString(r.Raw))
	return 1
}

func exists(L *lua.LState) int {
	L.Push(lua.LBool(gjson.Get(L.CheckString(1), L.CheckString(2)).Exists()))
	return 1
}

func valid(L *lua.LState) int {
	L.Push(lua.LBool(gjson.Valid(L.CheckString(1))))
	return 1
}
