package zerorpc

import (
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc is a unary (ReqRep) procedure: it receives the request's
// positional arguments, already decoded by the Serializer, and returns
// a single result or an error.
type HandlerFunc func(args []interface{}) (interface{}, error)

// StreamHandlerFunc is a streaming (ReqStream) procedure: it returns a
// channel of chunks, closed once the stream (or an error) is final.
type StreamHandlerFunc func(args []interface{}) (<-chan StreamItem, error)

// Procedure is one registered, callable method: its pattern, its
// handler, and the metadata exposed through _zerorpc_inspect.
type Procedure struct {
	Name          string
	Doc           string
	ArgNames      []string
	Pattern       Pattern
	Handler       HandlerFunc
	StreamHandler StreamHandlerFunc
}

// Registry is the set of procedures a Server exposes, plus the
// builtin introspection procedures every zerorpc service carries
// (_zerorpc_list, _zerorpc_ping, _zerorpc_name, _zerorpc_help,
// _zerorpc_args, _zerorpc_inspect).
type Registry struct {
	mu    sync.RWMutex
	name  string
	procs map[string]*Procedure
}

// NewRegistry creates an empty registry under the given service name
// (as returned by _zerorpc_name and reported in _zerorpc_inspect).
func NewRegistry(name string) *Registry {
	r := &Registry{name: name, procs: make(map[string]*Procedure)}
	r.injectBuiltins()
	return r
}

// Register adds a unary procedure under name, replacing any procedure
// already registered with that name.
func (r *Registry) Register(name, doc string, argNames []string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[name] = &Procedure{
		Name: name, Doc: doc, ArgNames: argNames,
		Pattern: ReqRep{}, Handler: handler,
	}
}

// RegisterStream adds a streaming procedure under name.
func (r *Registry) RegisterStream(name, doc string, argNames []string, handler StreamHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[name] = &Procedure{
		Name: name, Doc: doc, ArgNames: argNames,
		Pattern: ReqStream{}, StreamHandler: handler,
	}
}

// Lookup returns the procedure registered under name, if any.
func (r *Registry) Lookup(name string) (*Procedure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[name]
	return p, ok
}

// Names lists every non-builtin procedure name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.procs))
	for n := range r.procs {
		if len(n) > 0 && n[0] != '_' {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

type procedureArgSpec struct {
	Name string `codec:"name"`
}

type procedureInspect struct {
	Args []procedureArgSpec `codec:"args"`
	Doc  string             `codec:"doc"`
}

type serviceInspect struct {
	Name    string                      `codec:"name"`
	Methods map[string]procedureInspect `codec:"methods"`
}

func (r *Registry) injectBuiltins() {
	r.procs["_zerorpc_list"] = &Procedure{
		Name: "_zerorpc_list", Pattern: ReqRep{},
		Handler: func(args []interface{}) (interface{}, error) {
			return r.Names(), nil
		},
	}
	r.procs["_zerorpc_name"] = &Procedure{
		Name: "_zerorpc_name", Pattern: ReqRep{},
		Handler: func(args []interface{}) (interface{}, error) {
			return r.name, nil
		},
	}
	r.procs["_zerorpc_ping"] = &Procedure{
		Name: "_zerorpc_ping", Pattern: ReqRep{},
		Handler: func(args []interface{}) (interface{}, error) {
			return []interface{}{"pong", r.name}, nil
		},
	}
	r.procs["_zerorpc_help"] = &Procedure{
		Name: "_zerorpc_help", Pattern: ReqRep{},
		Handler: func(args []interface{}) (interface{}, error) {
			p, err := r.argProc(args)
			if err != nil {
				return nil, err
			}
			return p.Doc, nil
		},
	}
	r.procs["_zerorpc_args"] = &Procedure{
		Name: "_zerorpc_args", Pattern: ReqRep{},
		Handler: func(args []interface{}) (interface{}, error) {
			p, err := r.argProc(args)
			if err != nil {
				return nil, err
			}
			return p.ArgNames, nil
		},
	}
	r.procs["_zerorpc_inspect"] = &Procedure{
		Name: "_zerorpc_inspect", Pattern: ReqRep{},
		Handler: func(args []interface{}) (interface{}, error) {
			r.mu.RLock()
			defer r.mu.RUnlock()
			methods := make(map[string]procedureInspect, len(r.procs))
			for n, p := range r.procs {
				if len(n) == 0 || n[0] == '_' {
					continue
				}
				specs := make([]procedureArgSpec, len(p.ArgNames))
				for i, a := range p.ArgNames {
					specs[i] = procedureArgSpec{Name: a}
				}
				methods[n] = procedureInspect{Args: specs, Doc: p.Doc}
			}
			return serviceInspect{Name: r.name, Methods: methods}, nil
		},
	}
}

func (r *Registry) argProc(args []interface{}) (*Procedure, error) {
	if len(args) == 0 {
		return nil, &ProtocolError{Reason: "missing method name argument"}
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, &ProtocolError{Reason: "method name argument is not a string"}
	}
	p, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown method: %s", name)
	}
	return p, nil
}
