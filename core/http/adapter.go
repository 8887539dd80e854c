package http

// DispatchFunc builds and sends the response for a completed request. It
// may clear req.KeepAlive to force the connection closed afterwards.
type DispatchFunc func(req *Request) error

// Adapter binds parser events to one connection's Request record and
// dispatches every completed message synchronously.
type Adapter struct {
	parser   *Parser
	req      *Request
	dispatch DispatchFunc
}

// NewAdapter wires parser events into req.
func NewAdapter(parser *Parser, req *Request, dispatch DispatchFunc) *Adapter {
	return &Adapter{parser: parser, req: req, dispatch: dispatch}
}

// Reset prepares the adapter for a new connection.
func (a *Adapter) Reset() {
	a.parser.Reset()
	a.req.Reset()
}

// Request returns the record the adapter fills.
func (a *Adapter) Request() *Request {
	return a.req
}

// Feed pushes one receive worth of bytes through the parser. It returns
// closeConn when a dispatched message was not keep-alive; bytes after that
// message are discarded. Errors are either a *ParseError or whatever
// dispatch returned, and always come with closeConn set.
func (a *Adapter) Feed(data []byte) (closeConn bool, err error) {
	events, perr := a.parser.Feed(data)

	for i := range events {
		ev := &events[i]
		switch ev.Type {
		case EventMessageBegin:
			a.req.Reset()
		case EventURL:
			a.req.AppendURL(ev.Data)
		case EventHeadersComplete:
			a.req.Method = ev.Method
			a.req.MethodName = ev.MethodName
			a.req.KeepAlive = ev.KeepAlive
		case EventBody:
			// Request bodies are not used.
		case EventMessageComplete:
			if err := a.dispatch(a.req); err != nil {
				a.req.Complete = true
				return true, err
			}
			a.req.Complete = true
			if !a.req.KeepAlive {
				return true, nil
			}
		}
	}

	if perr != nil {
		return true, perr
	}
	return false, nil
}
