package script

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/zalando/scriptroute/logging"
	"github.com/zalando/scriptroute/routing"
)

// DefaultPoolSize is the default number of idle Lua states kept for
// reuse.
const DefaultPoolSize = 16

// Response is the outcome of executing the function of a route.
type Response struct {
	Status      int
	ContentType string
	Header      http.Header
	Body        []byte
}

// Executor runs the function of a looked up route for a request.
type Executor interface {
	Execute(ctx context.Context, r *routing.Result, req *http.Request) (*Response, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(context.Context, *routing.Result, *http.Request) (*Response, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, r *routing.Result, req *http.Request) (*Response, error) {
	return f(ctx, r, req)
}

// Error is returned when the function of a route fails to compile or to
// run.
type Error struct {
	FnName string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("error executing %s: %v", e.FnName, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// LuaOptions to create a Lua executor.
type LuaOptions struct {

	// Modules enables only the listed standard modules, or the listed
	// symbols of them, and preloads only the listed additional modules.
	// E.g. "base.print", "string", "json". When empty, every module is
	// enabled.
	Modules []string

	// Maximum number of idle states kept for reuse. Defaults to
	// DefaultPoolSize.
	PoolSize int

	// Client used by the http module. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	Log logging.Logger
}

// Lua executes the route functions as Lua code. A body that is a single
// expression is returned as the result, e.g. "hi " .. name, otherwise
// the body is taken as a block of statements, that can return the
// result explicitly.
//
// The parameters of the route are bound to the captured path segments
// in order. The helpers text, html, json and response create a response
// with the content type and optionally the status set. Other return
// values are rendered as text, and tables without a helper as JSON. The
// global request table provides method, url, path, query, params,
// header and remote_addr.
type Lua struct {
	modules    []string
	httpClient *http.Client
	log        logging.Logger
	pool       chan *luaState

	mu     sync.Mutex
	protos map[string]*lua.FunctionProto
}

type luaState struct {
	*lua.LState
	functions map[string]*lua.LFunction
}

var _ Executor = &Lua{}

// NewLua creates a Lua executor.
func NewLua(o LuaOptions) *Lua {
	if o.PoolSize <= 0 {
		o.PoolSize = DefaultPoolSize
	}

	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}

	if o.Log == nil {
		o.Log = logging.New()
	}

	return &Lua{
		modules:    o.Modules,
		httpClient: o.HTTPClient,
		log:        o.Log,
		pool:       make(chan *luaState, o.PoolSize),
		protos:     make(map[string]*lua.FunctionProto),
	}
}

func (l *Lua) newState() *luaState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	additional := additionalModules(l.httpClient)
	if len(l.modules) == 0 {
		for _, m := range standardModules {
			m.load(L)
		}

		for _, m := range additional {
			m.preload(L)
		}
	} else {
		config := moduleConfig(l.modules)
		for _, m := range standardModules {
			if symbols, ok := config[m.name]; ok {
				if len(symbols) > 0 {
					m = m.withSymbols(symbols)
				}

				m.load(L)
			}
		}

		for _, m := range additional {
			if _, ok := config[m.name]; ok {
				m.preload(L)
			}
		}
	}

	registerHelpers(L)
	return &luaState{LState: L, functions: make(map[string]*lua.LFunction)}
}

func (l *Lua) getState() *luaState {
	select {
	case s := <-l.pool:
		return s
	default:
		return l.newState()
	}
}

func (l *Lua) putState(s *luaState) {
	s.SetTop(0)
	select {
	case l.pool <- s:
	default:
		s.Close()
	}
}

// the hash doesn't cover the parameters
func functionKey(r *routing.Result) string {
	return r.Route.Hash + "(" + strings.Join(r.Route.Args, ",") + ")"
}

func chunk(args []string, body string) string {
	return fmt.Sprintf("return function(%s)\n%s\nend", strings.Join(args, ", "), body)
}

// callable splits a function declaration, fn name(a, b){body}, into its
// parameters and body.
func callable(source string) ([]string, string, error) {
	rest, ok := strings.CutPrefix(source, "fn ")
	open := strings.IndexByte(rest, '(')
	end := strings.IndexByte(rest, ')')
	if !ok || open < 0 || end < open || !strings.HasPrefix(rest[end+1:], "{") || !strings.HasSuffix(rest, "}") {
		return nil, "", fmt.Errorf("invalid function declaration: %q", source)
	}

	var args []string
	for _, a := range strings.Split(rest[open+1:end], ",") {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, a)
		}
	}

	return args, rest[end+2 : len(rest)-1], nil
}

func compile(name string, args []string, body string) (*lua.FunctionProto, error) {
	stmts, err := parse.Parse(strings.NewReader(chunk(args, "return "+body)), name)
	if err != nil {
		stmts, err = parse.Parse(strings.NewReader(chunk(args, body)), name)
		if err != nil {
			return nil, err
		}
	}

	return lua.Compile(stmts, name)
}

func (l *Lua) proto(r *routing.Result) (*lua.FunctionProto, error) {
	key := functionKey(r)

	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.protos[key]; ok {
		return p, nil
	}

	args, body := r.Route.Args, r.Route.FnBody
	if r.Source != "" {
		var err error
		if args, body, err = callable(r.Source); err != nil {
			return nil, err
		}
	}

	p, err := compile(r.FnName, args, body)
	if err != nil {
		return nil, err
	}

	l.protos[key] = p
	l.log.Debugf("compiled function %s", r.FnName)
	return p, nil
}

func (s *luaState) function(key string, p *lua.FunctionProto) (*lua.LFunction, error) {
	if fn, ok := s.functions[key]; ok {
		return fn, nil
	}

	s.Push(s.NewFunctionFromProto(p))
	if err := s.PCall(0, 1, nil); err != nil {
		return nil, err
	}

	fn, ok := s.Get(-1).(*lua.LFunction)
	s.Pop(1)
	if !ok {
		return nil, fmt.Errorf("chunk of %s did not return a function", key)
	}

	s.functions[key] = fn
	return fn, nil
}

// Execute runs the function of the route with the captured arguments.
func (l *Lua) Execute(ctx context.Context, r *routing.Result, req *http.Request) (*Response, error) {
	p, err := l.proto(r)
	if err != nil {
		return nil, &Error{FnName: r.FnName, Err: err}
	}

	s := l.getState()
	defer l.putState(s)

	fn, err := s.function(functionKey(r), p)
	if err != nil {
		return nil, &Error{FnName: r.FnName, Err: err}
	}

	s.SetContext(ctx)
	defer s.RemoveContext()

	s.SetGlobal("request", requestTable(s.LState, req, r))
	defer s.SetGlobal("request", lua.LNil)

	args := make([]lua.LValue, len(r.Args))
	for i, a := range r.Args {
		args[i] = lua.LString(a)
	}

	if err := s.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return nil, &Error{FnName: r.FnName, Err: err}
	}

	ret := s.Get(-1)
	s.Pop(1)

	rsp, err := toResponse(s.LState, ret)
	if err != nil {
		return nil, &Error{FnName: r.FnName, Err: err}
	}

	return rsp, nil
}

// Close releases the idle states.
func (l *Lua) Close() {
	for {
		select {
		case s := <-l.pool:
			s.Close()
		default:
			return
		}
	}
}
