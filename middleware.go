package zerorpc

// Middleware is any object carrying zero or more of the hook
// interfaces below. Registering a middleware scans it once (via type
// assertions) and appends each hook it implements to the matching
// chain, mirroring how the original Python implementation scans an
// arbitrary object's attributes for hook methods.
type Middleware interface{}

// EndpointResolver rewrites a bind/connect endpoint string before use,
// e.g. resolving "some_service" to "ipc:///tmp/some_service".
// Hooks are chained left to right: the output of one feeds the next.
type EndpointResolver interface {
	ResolveEndpoint(endpoint string) string
}

// TaskContextLoader is invoked on receipt of an event, before
// dispatch, purely for its side effect (e.g. restoring a trace id
// into goroutine-local state).
type TaskContextLoader interface {
	LoadTaskContext(header map[string]interface{})
}

// TaskContextProvider is invoked before sending an event; results from
// every registered provider are merged into the outgoing header.
type TaskContextProvider interface {
	GetTaskContext() map[string]interface{}
}

// ServerExecHooks wraps server-side dispatch.
type ServerExecHooks interface {
	ServerBeforeExec(req *Event)
	ServerAfterExec(req, rep *Event)
}

// ServerExceptionInspector is invoked when a server handler raised an
// error, before the ERR reply is emitted.
type ServerExceptionInspector interface {
	ServerInspectException(req, rep *Event, taskCtx map[string]interface{}, err error)
}

// ClientRequestHooks wraps a client call.
type ClientRequestHooks interface {
	ClientBeforeRequest(req *Event)
	ClientAfterRequest(req, rep *Event, err error)
}

// ClientRemoteErrorHandler reconstructs a richer exception from an ERR
// event. Hooks are chained; the last non-nil result wins. When no
// hook produces a result, the default RemoteError construction is
// used instead.
type ClientRemoteErrorHandler interface {
	ClientHandleRemoteError(rep *Event) error
}

// ClientPatternsListFilter allows a middleware to add custom reply
// patterns when the client is selecting how to interpret a reply.
type ClientPatternsListFilter interface {
	ClientPatternsList(patterns []Pattern) []Pattern
}

// hookChain holds the typed sub-slices a Context dispatches through.
type hookChain struct {
	endpointResolvers   []EndpointResolver
	taskContextLoaders  []TaskContextLoader
	taskContextProviders []TaskContextProvider
	serverExecHooks     []ServerExecHooks
	serverInspectors    []ServerExceptionInspector
	clientRequestHooks  []ClientRequestHooks
	remoteErrorHandlers []ClientRemoteErrorHandler
	patternsListFilters []ClientPatternsListFilter
}

func (h *hookChain) register(mw Middleware) {
	if v, ok := mw.(EndpointResolver); ok {
		h.endpointResolvers = append(h.endpointResolvers, v)
	}
	if v, ok := mw.(TaskContextLoader); ok {
		h.taskContextLoaders = append(h.taskContextLoaders, v)
	}
	if v, ok := mw.(TaskContextProvider); ok {
		h.taskContextProviders = append(h.taskContextProviders, v)
	}
	if v, ok := mw.(ServerExecHooks); ok {
		h.serverExecHooks = append(h.serverExecHooks, v)
	}
	if v, ok := mw.(ServerExceptionInspector); ok {
		h.serverInspectors = append(h.serverInspectors, v)
	}
	if v, ok := mw.(ClientRequestHooks); ok {
		h.clientRequestHooks = append(h.clientRequestHooks, v)
	}
	if v, ok := mw.(ClientRemoteErrorHandler); ok {
		h.remoteErrorHandlers = append(h.remoteErrorHandlers, v)
	}
	if v, ok := mw.(ClientPatternsListFilter); ok {
		h.patternsListFilters = append(h.patternsListFilters, v)
	}
}

func (h *hookChain) resolveEndpoint(endpoint string) string {
	for _, r := range h.endpointResolvers {
		endpoint = r.ResolveEndpoint(endpoint)
	}
	return endpoint
}

func (h *hookChain) loadTaskContext(header map[string]interface{}) {
	for _, l := range h.taskContextLoaders {
		l.LoadTaskContext(header)
	}
}

func (h *hookChain) getTaskContext() map[string]interface{} {
	merged := map[string]interface{}{}
	for _, p := range h.taskContextProviders {
		for k, v := range p.GetTaskContext() {
			merged[k] = v
		}
	}
	return merged
}

func (h *hookChain) serverBeforeExec(req *Event) {
	for _, s := range h.serverExecHooks {
		s.ServerBeforeExec(req)
	}
}

func (h *hookChain) serverAfterExec(req, rep *Event) {
	for _, s := range h.serverExecHooks {
		s.ServerAfterExec(req, rep)
	}
}

func (h *hookChain) serverInspectException(req, rep *Event, taskCtx map[string]interface{}, err error) {
	for _, s := range h.serverInspectors {
		s.ServerInspectException(req, rep, taskCtx, err)
	}
}

func (h *hookChain) clientBeforeRequest(req *Event) {
	for _, c := range h.clientRequestHooks {
		c.ClientBeforeRequest(req)
	}
}

func (h *hookChain) clientAfterRequest(req, rep *Event, err error) {
	for _, c := range h.clientRequestHooks {
		c.ClientAfterRequest(req, rep, err)
	}
}

// handleRemoteError runs the chained handlers and falls back to the
// default RemoteError construction when none of them produce a result.
func (h *hookChain) handleRemoteError(rep *Event) error {
	var result error
	for _, r := range h.remoteErrorHandlers {
		if e := r.ClientHandleRemoteError(rep); e != nil {
			result = e
		}
	}
	if result != nil {
		return result
	}
	return NewRemoteErrorFromArgs(rep.Args)
}

func (h *hookChain) clientPatternsList(patterns []Pattern) []Pattern {
	for _, f := range h.patternsListFilters {
		patterns = f.ClientPatternsList(patterns)
	}
	return patterns
}
