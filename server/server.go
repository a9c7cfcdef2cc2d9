package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xianghua-2/MYDB/catalog"
	"github.com/xianghua-2/MYDB/evaluate"
)

var ErrServerClosed = errors.New("server: closed")

// Handler runs an interactive console session reading statements from rr.
type Handler func(ses *evaluate.Session, rr io.RuneReader, w io.Writer)

type closer interface {
	Close() error
	Shutdown(ctx context.Context) error
}

// Server serves sessions against one catalog over any number of listeners.
type Server struct {
	Handler Handler
	Manager *catalog.Manager

	mutex    sync.Mutex
	servers  map[closer]struct{}
	shutdown bool
}

func (svr *Server) addServer(c closer) bool {
	svr.mutex.Lock()
	defer svr.mutex.Unlock()

	if svr.shutdown {
		return false
	}
	if svr.servers == nil {
		svr.servers = map[closer]struct{}{}
	}
	svr.servers[c] = struct{}{}
	return true
}

// HandleSession runs fn with a new session and closes the session when fn returns.
func (svr *Server) HandleSession(fn evaluate.SessionHandler, user, typ, addr string) {
	ses := evaluate.NewSession(svr.Manager, user, typ, addr)
	entry := log.WithFields(log.Fields{
		"session": ses.String(),
		"user":    user,
		"type":    typ,
		"addr":    addr,
	})
	entry.Info("session started")

	defer func() {
		err := ses.Close()
		if err != nil {
			entry.WithField("error", err.Error()).Error("session close")
		}
		entry.Info("session done")
	}()

	fn(ses)
}

// Handle runs the console Handler for a session reading from rr and writing to w.
func (svr *Server) Handle(rr io.RuneReader, w io.Writer, user, typ, addr string) {
	svr.HandleSession(
		func(ses *evaluate.Session) {
			svr.Handler(ses, rr, w)
		}, user, typ, addr)
}

func (svr *Server) Close() error {
	svr.mutex.Lock()
	svr.shutdown = true
	servers := svr.servers
	svr.servers = nil
	svr.mutex.Unlock()

	var err error
	for c := range servers {
		cerr := c.Close()
		if err == nil {
			err = cerr
		}
	}
	return err
}

// Shutdown stops accepting connections and waits for the active ones to finish or for ctx to
// be done.
func (svr *Server) Shutdown(ctx context.Context) error {
	svr.mutex.Lock()
	svr.shutdown = true
	servers := svr.servers
	svr.mutex.Unlock()

	var err error
	for c := range servers {
		serr := c.Shutdown(ctx)
		if err == nil {
			err = serr
		}
	}
	return err
}

// tcpServer tracks the listener and the connections of one protocol.
type tcpServer struct {
	mutex      sync.Mutex
	protocol   string
	listener   net.Listener
	activeConn map[net.Conn]struct{}
	connCount  int32
	shutdown   bool
	closed     bool
}

func newTCPServer(protocol string, l net.Listener) *tcpServer {
	return &tcpServer{
		protocol:   protocol,
		listener:   l,
		activeConn: map[net.Conn]struct{}{},
	}
}

func (ts *tcpServer) accept() (net.Conn, error) {
	conn, err := ts.listener.Accept()
	if err != nil {
		ts.mutex.Lock()
		if ts.shutdown {
			err = ErrServerClosed
		}
		ts.mutex.Unlock()
		if err != ErrServerClosed {
			log.WithField("error", err.Error()).Errorf("%s accept", ts.protocol)
		}
		return nil, err
	}
	return conn, nil
}

func (ts *tcpServer) trackConn(conn net.Conn, add bool) bool {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	if ts.closed {
		return false
	}
	if add {
		ts.activeConn[conn] = struct{}{}
	} else {
		delete(ts.activeConn, conn)
	}
	return true
}

// serveConn runs fn for conn and closes conn when fn returns.
func (ts *tcpServer) serveConn(conn net.Conn, fn func(conn net.Conn, entry *log.Entry)) {
	atomic.AddInt32(&ts.connCount, 1)
	defer atomic.AddInt32(&ts.connCount, -1)

	entry := log.WithField("addr", conn.RemoteAddr().String())
	entry.Infof("%s connected", ts.protocol)
	defer entry.Infof("%s disconnected", ts.protocol)

	if !ts.trackConn(conn, true) {
		conn.Close()
		return
	}
	defer func() {
		if ts.trackConn(conn, false) {
			conn.Close()
		}
	}()

	fn(conn, entry)
}

func (ts *tcpServer) Close() error {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	if ts.closed {
		return nil
	}
	ts.closed = true

	var err error
	if !ts.shutdown {
		err = ts.listener.Close()
		ts.shutdown = true
	}

	for conn := range ts.activeConn {
		conn.Close()
		delete(ts.activeConn, conn)
	}
	return err
}

func (ts *tcpServer) Shutdown(ctx context.Context) error {
	ts.mutex.Lock()
	if ts.closed {
		ts.mutex.Unlock()
		return nil
	}
	var err error
	if !ts.shutdown {
		err = ts.listener.Close()
		ts.shutdown = true
	}
	ts.mutex.Unlock()

	return waitForConns(ctx, ts.protocol, &ts.connCount, err)
}

func waitForConns(ctx context.Context, protocol string, connCount *int32, err error) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	last := int32(-1)
	for {
		cc := atomic.LoadInt32(connCount)
		if cc == 0 {
			return err
		}
		if cc != last {
			log.WithField("connections", cc).Infof("%s: waiting for active connections", protocol)
			last = cc
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("server: %s shutdown: %w", protocol, ctx.Err())
		case <-ticker.C:
		}
	}
}
