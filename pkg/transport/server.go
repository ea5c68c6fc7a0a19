package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Waiter is a handle for a response that is not ready yet.
type Waiter interface {
	// Ready is closed once the response can be fetched with GetResponse.
	Ready() <-chan struct{}
}

// Handler answers requests for a Server. HandleRequest either returns a
// response at once or a Waiter; in the latter case the server calls
// GetResponse after Ready closes, or Abandon if the connection goes away
// first. Exactly one of the two is called per Waiter.
type Handler interface {
	HandleRequest(req []byte) (resp []byte, w Waiter, err error)
	GetResponse(w Waiter) ([]byte, error)
	Abandon(w Waiter) error
}

type connState int

const (
	stateAwaitingRequest connState = iota
	stateDispatched
	stateAwaitingCompletion
	stateResponseSent
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateAwaitingRequest:
		return "awaiting-request"
	case stateDispatched:
		return "dispatched"
	case stateAwaitingCompletion:
		return "awaiting-completion"
	case stateResponseSent:
		return "response-sent"
	default:
		return "closed"
	}
}

// Server serves requests on one transport.
type Server struct {
	tr        Transport
	handler   Handler
	listeners []Listener
	location  string

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group

	closeOnce sync.Once
	closeErr  error
}

// NewServer listens on each of addrs (any available address when addrs is
// empty) and starts serving. The server stops when ctx ends or Close is
// called.
func NewServer(ctx context.Context, tr Transport, addrs []string, h Handler) (*Server, error) {
	if len(addrs) == 0 {
		addrs = []string{""}
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &Server{tr: tr, handler: h, ctx: sctx, cancel: cancel}

	var advertised []string
	for _, a := range addrs {
		l, err := tr.Listen(sctx, a)
		if err != nil {
			cancel()
			for _, prev := range s.listeners {
				_ = prev.Close()
			}
			return nil, err
		}
		s.listeners = append(s.listeners, l)
		advertised = append(advertised, l.Addresses()...)
	}
	s.location = Location{Scheme: tr.Kind().String(), Addresses: advertised}.String()

	g, gctx := errgroup.WithContext(sctx)
	s.g = g
	for _, l := range s.listeners {
		l := l
		g.Go(func() error { return s.acceptLoop(gctx, l) })
	}
	zap.L().Info("server listening", zap.String("location", s.location))
	return s, nil
}

// Location returns "scheme:addr1,addr2,..." for clients.
func (s *Server) Location() string { return s.location }

// Close stops accepting, ends idle connections, abandons pending waits and
// waits for in-flight responses to be written.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		for _, l := range s.listeners {
			_ = l.Close()
		}
		s.closeErr = s.g.Wait()
		zap.L().Info("server closed", zap.String("location", s.location))
	})
	return s.closeErr
}

func (s *Server) acceptLoop(ctx context.Context, l Listener) error {
	for {
		c, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrListenerClosed) {
				return nil
			}
			zap.L().Warn("accept failed", zap.String("addr", l.Addr().String()), zap.Error(err))
			return err
		}
		s.g.Go(func() error {
			s.serveConn(ctx, c)
			return nil
		})
	}
}

func (s *Server) serveConn(ctx context.Context, c Conn) {
	remote := addrString(c.RemoteAddr())
	log := zap.L().With(zap.String("remote", remote))
	log.Debug("connection accepted")

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer func() {
		close(done)
		_ = c.Close()
		log.Debug("connection closed", zap.Stringer("state", stateClosed))
	}()
	go func() {
		for {
			b, err := c.RecvBytes()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- b:
			case <-done:
				return
			}
		}
	}()

	state := stateAwaitingRequest
	for {
		var req []byte
		select {
		case req = <-frames:
		case err := <-readErr:
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn("protocol error", zap.Stringer("state", state), zap.Error(&ProtocolError{Op: "read request", Err: err}))
			}
			return
		case <-ctx.Done():
			return
		}

		state = stateDispatched
		resp, w, err := s.handler.HandleRequest(req)
		if err != nil {
			log.Warn("protocol error", zap.Stringer("state", state), zap.Error(&ProtocolError{Op: "handle request", Err: err}))
			return
		}
		if w != nil {
			state = stateAwaitingCompletion
			select {
			case <-w.Ready():
				if resp, err = s.handler.GetResponse(w); err != nil {
					log.Warn("deferred response failed", zap.Error(err))
					return
				}
			case err := <-readErr:
				s.abandon(log, w, "client disconnected", err)
				return
			case <-frames:
				s.abandon(log, w, "request while awaiting completion", nil)
				return
			case <-ctx.Done():
				s.abandon(log, w, "server closing", nil)
				return
			}
		}

		if err := c.SendBytes(resp); err != nil {
			log.Warn("protocol error", zap.Stringer("state", state), zap.Error(&ProtocolError{Op: "write response", Err: err}))
			return
		}
		state = stateResponseSent
		log.Debug("response sent", zap.Int("bytes", len(resp)), zap.Stringer("state", state))
		state = stateAwaitingRequest
	}
}

func (s *Server) abandon(log *zap.Logger, w Waiter, reason string, cause error) {
	if err := s.handler.Abandon(w); err != nil {
		log.Warn("abandon failed", zap.String("reason", reason), zap.Error(err))
		return
	}
	log.Debug("pending response abandoned", zap.String("reason", reason), zap.NamedError("cause", cause))
}

func addrString(a net.Addr) string {
	if a == nil {
		return "unknown"
	}
	return a.String()
}
