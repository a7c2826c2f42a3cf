package script

import (
	"fmt"
	"net/http"

	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"
)

const (
	responseTypeName = "scriptroute.response"

	textContentType = "text/plain; charset=utf-8"
	htmlContentType = "text/html; charset=utf-8"
	jsonContentType = "application/json"
)

func registerHelpers(L *lua.LState) {
	L.NewTypeMetatable(responseTypeName)
	L.SetGlobal("text", L.NewFunction(contentHelper(textContentType)))
	L.SetGlobal("html", L.NewFunction(contentHelper(htmlContentType)))
	L.SetGlobal("json", L.NewFunction(jsonHelper))
	L.SetGlobal("response", L.NewFunction(responseHelper))
}

func newResponse(L *lua.LState, body lua.LValue, contentType string, status int) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("body", body)
	t.RawSetString("content_type", lua.LString(contentType))
	t.RawSetString("status", lua.LNumber(status))
	t.RawSetString("headers", L.NewTable())
	L.SetMetatable(t, L.GetTypeMetatable(responseTypeName))
	return t
}

// text(body[, status]), html(body[, status])
func contentHelper(contentType string) lua.LGFunction {
	return func(L *lua.LState) int {
		body := L.ToStringMeta(L.Get(1))
		L.Push(newResponse(L, body, contentType, L.OptInt(2, http.StatusOK)))
		return 1
	}
}

// json(value[, status])
func jsonHelper(L *lua.LState) int {
	b, err := luajson.Encode(L.Get(1))
	if err != nil {
		L.RaiseError("failed to encode json: %v", err)
		return 0
	}

	L.Push(newResponse(L, lua.LString(b), jsonContentType, L.OptInt(2, http.StatusOK)))
	return 1
}

// response(body, content_type[, status])
func responseHelper(L *lua.LState) int {
	body := L.ToStringMeta(L.Get(1))
	contentType := L.OptString(2, textContentType)
	L.Push(newResponse(L, body, contentType, L.OptInt(3, http.StatusOK)))
	return 1
}

func isResponse(L *lua.LState, t *lua.LTable) bool {
	return L.GetMetatable(t) == L.GetTypeMetatable(responseTypeName)
}

func fromResponseTable(L *lua.LState, t *lua.LTable) (*Response, error) {
	rsp := &Response{
		Status:      http.StatusOK,
		ContentType: textContentType,
		Header:      make(http.Header),
	}

	if s, ok := t.RawGetString("status").(lua.LNumber); ok {
		rsp.Status = int(s)
	}

	if rsp.Status < 100 || rsp.Status > 999 {
		return nil, fmt.Errorf("invalid status code: %d", rsp.Status)
	}

	if ct, ok := t.RawGetString("content_type").(lua.LString); ok && ct != "" {
		rsp.ContentType = string(ct)
	}

	if h, ok := t.RawGetString("headers").(*lua.LTable); ok {
		h.ForEach(func(k, v lua.LValue) {
			rsp.Header.Add(k.String(), v.String())
		})
	}

	if b := t.RawGetString("body"); b != lua.LNil {
		rsp.Body = []byte(L.ToStringMeta(b).String())
	}

	return rsp, nil
}

func toResponse(L *lua.LState, v lua.LValue) (*Response, error) {
	switch v.Type() {
	case lua.LTNil:
		return &Response{Status: http.StatusOK, ContentType: textContentType, Header: make(http.Header)}, nil
	case lua.LTString, lua.LTNumber, lua.LTBool:
		return &Response{
			Status:      http.StatusOK,
			ContentType: textContentType,
			Header:      make(http.Header),
			Body:        []byte(v.String()),
		}, nil
	case lua.LTTable:
		t := v.(*lua.LTable)
		if isResponse(L, t) {
			return fromResponseTable(L, t)
		}

		b, err := luajson.Encode(t)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}

		return &Response{
			Status:      http.StatusOK,
			ContentType: jsonContentType,
			Header:      make(http.Header),
			Body:        b,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported result type: %s", v.Type())
	}
}
