package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/go-psyncd/psyncd/internal/admission"
)

// Handler is invoked once per admitted connection, on its own goroutine.
type Handler func(conn *Conn)

// Server is the TLS WebSocket-style accept loop.
type Server struct {
	log       *logrus.Entry
	allowlist []string
	handle    Handler

	httpSrv  *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// New builds a Server bound to addr with the given TLS cert/key, rejecting
// any peer not in allowlist at the upgrade handshake.
func New(log *logrus.Entry, addr, certPath, keyPath string, allowlist []string, handle Handler) (*Server, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}

	s := &Server{
		log:       log,
		allowlist: allowlist,
		handle:    handle,
		conns:     make(map[*Conn]struct{}),
		upgrader:  websocket.Upgrader{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveHTTP)

	s.httpSrv = &http.Server{
		Addr:      addr,
		Handler:   mux,
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}},
	}

	return s, nil
}

// Serve listens and accepts connections until the server is shut down.
// It blocks until Shutdown is called or a fatal accept error occurs.
func (s *Server) Serve() error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.httpSrv.Addr, err)
	}
	s.listener = ln

	tlsLn := tls.NewListener(ln, s.httpSrv.TLSConfig)
	err = s.httpSrv.Serve(tlsLn)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	peer := HostOnly(r.RemoteAddr)
	if err := admission.Check(peer, s.allowlist); err != nil {
		s.log.WithField("peer", peer).Warn("transport: rejecting unrecognized client address")
		http.Error(w, "Client address not recognized.", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("transport: websocket upgrade failed")
		return
	}

	conn := NewConn(ws, peer)
	s.track(conn)
	defer s.untrack(conn)

	s.handle(conn)
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// Shutdown closes the listener and every live connection, for the graceful
// shutdown path.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)

	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	return err
}
