package script

import (
	"net/http"

	lua "github.com/yuin/gopher-lua"

	"github.com/zalando/scriptroute/routing"
)

func stringTable(L *lua.LState, m map[string]string) *lua.LTable {
	t := L.NewTable()
	for k, v := range m {
		t.RawSetString(k, lua.LString(v))
	}

	return t
}

// the header table reads through to the request headers
func headerTable(L *lua.LState, h http.Header) *lua.LTable {
	t := L.NewTable()
	mt := L.NewTable()
	mt.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(h.Get(L.CheckString(2))))
		return 1
	}))

	L.SetMetatable(t, mt)
	return t
}

func requestTable(L *lua.LState, req *http.Request, r *routing.Result) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("params", stringTable(L, r.Params))
	t.RawSetString("fn_name", lua.LString(r.FnName))
	if req == nil {
		t.RawSetString("header", L.NewTable())
		t.RawSetString("query", L.NewTable())
		return t
	}

	t.RawSetString("method", lua.LString(req.Method))
	t.RawSetString("url", lua.LString(req.URL.String()))
	t.RawSetString("path", lua.LString(req.URL.Path))
	t.RawSetString("remote_addr", lua.LString(req.RemoteAddr))
	t.RawSetString("header", headerTable(L, req.Header))

	q := make(map[string]string)
	for k, v := range req.URL.Query() {
		if len(v) > 0 {
			q[k] = v[0]
		}
	}

	t.RawSetString("query", stringTable(L, q))
	return t
}
