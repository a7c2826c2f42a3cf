// Package base64 provides the base64 Lua module. Besides the standard
// encoding, it supports the URL safe encoding used in path segments:
//
//	local base64 = require("base64")
//	local id = base64.decode_url(slug)
package base64

import (
	"encoding/base64"

	lua "github.com/yuin/gopher-lua"
)

func Loader(L *lua.LState) int {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"encode":     encoder(base64.StdEncoding),
		"decode":     decoder(base64.StdEncoding),
		"encode_url": encoder(base64.RawURLEncoding),
		"decode_url": decoder(base64.RawURLEncoding),
	})
	L.Push(mod)
	return 1
}

func encoder(enc *base64.Encoding) lua.LGFunction {
	return func(L *lua.LState) int {
		L.Push(lua.LString(enc.EncodeToString([]byte(L.CheckString(1)))))
		return 1
	}
}

// decoders return nil and the error message on invalid input
func decoder(enc *base64.Encoding) lua.LGFunction {
	return func(L *lua.LState) int {
		b, err := enc.DecodeString(L.CheckString(1))
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}

		L.Push(lua.LString(b))
		return 1
	}
}
