package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/terminal"
)

const (
	banner = "mydb 0.1\n"
	prompt = "mydb: "
)

type SSHConfig struct {
	Address         string
	HostKeysBytes   [][]byte
	AuthorizedBytes []byte
	CheckPassword   func(user, password string) error
}

type sshServer struct {
	mutex      sync.Mutex
	cfg        *ssh.ServerConfig
	listener   net.Listener
	activeConn map[*ssh.ServerConn]struct{}
	connCount  int32
	shutdown   bool
	closed     bool
}

func authLog(md ssh.ConnMetadata, method string, err error) {
	if method == "none" {
		return
	}
	entry := log.WithFields(log.Fields{
		"user":   md.User(),
		"addr":   md.RemoteAddr().String(),
		"method": method,
	})
	if err != nil {
		entry.WithField("error", err.Error()).Error("ssh authentication failed")
	} else {
		entry.Info("ssh authentication succeeded")
	}
}

// parseAuthorizedKeys parses the contents of an authorized_keys file into a set of marshaled
// public keys.
func parseAuthorizedKeys(b []byte) (map[string]struct{}, error) {
	keys := map[string]struct{}{}
	for len(b) > 0 {
		key, _, _, rest, err := ssh.ParseAuthorizedKey(b)
		if err != nil {
			return nil, fmt.Errorf("server: authorized keys: %s", err)
		}
		keys[string(key.Marshal())] = struct{}{}
		b = rest
	}
	return keys, nil
}

func newSSHServer(sshCfg SSHConfig) (*sshServer, error) {
	cfg := ssh.ServerConfig{
		AuthLogCallback: authLog,
		BannerCallback: func(md ssh.ConnMetadata) string {
			return banner
		},
	}

	for _, keyBytes := range sshCfg.HostKeysBytes {
		key, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("server: host key: %s", err)
		}
		cfg.AddHostKey(key)
	}

	authorizedKeys, err := parseAuthorizedKeys(sshCfg.AuthorizedBytes)
	if err != nil {
		return nil, err
	}

	switch {
	case sshCfg.CheckPassword == nil && len(authorizedKeys) == 0:
		cfg.NoClientAuth = true
		log.Warn("ssh client auth: none")
	case sshCfg.CheckPassword != nil:
		checkPassword := sshCfg.CheckPassword
		cfg.PasswordCallback =
			func(md ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
				return nil, checkPassword(md.User(), string(pass))
			}
		log.Info("ssh client auth: password")
	}

	if len(authorizedKeys) > 0 {
		cfg.PublicKeyCallback =
			func(md ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
				if _, ok := authorizedKeys[string(key.Marshal())]; !ok {
					return nil, fmt.Errorf("server: unknown public key for %s", md.User())
				}
				return nil, nil
			}
		log.Info("ssh client auth: public key")
	}

	return &sshServer{
		cfg:        &cfg,
		activeConn: map[*ssh.ServerConn]struct{}{},
	}, nil
}

func (svr *Server) ListenAndServeSSH(sshCfg SSHConfig) error {
	l, err := net.Listen("tcp", sshCfg.Address)
	if err != nil {
		return err
	}
	return svr.ServeSSH(l, sshCfg)
}

// ServeSSH accepts ssh connections on l; each session channel runs the console Handler.
func (svr *Server) ServeSSH(l net.Listener, sshCfg SSHConfig) error {
	ss, err := newSSHServer(sshCfg)
	if err != nil {
		l.Close()
		return err
	}
	ss.listener = l
	if !svr.addServer(ss) {
		l.Close()
		return ErrServerClosed
	}

	for {
		tcp, err := ss.listener.Accept()
		if err != nil {
			ss.mutex.Lock()
			if ss.shutdown {
				err = ErrServerClosed
			}
			ss.mutex.Unlock()
			if err != ErrServerClosed {
				log.WithField("error", err.Error()).Error("ssh accept")
			}
			return err
		}
		go ss.handshake(tcp, svr)
	}
}

func (ss *sshServer) handshake(tcp net.Conn, svr *Server) {
	conn, chans, reqs, err := ssh.NewServerConn(tcp, ss.cfg)
	if err != nil {
		log.WithFields(log.Fields{
			"addr":  tcp.RemoteAddr().String(),
			"error": err.Error(),
		}).Error("ssh handshake")
		tcp.Close()
		return
	}
	entry := log.WithFields(log.Fields{
		"user": conn.User(),
		"addr": conn.RemoteAddr().String(),
	})
	entry.Info("ssh connected")

	go ssh.DiscardRequests(reqs)
	ss.handleConn(conn, chans, svr, entry)
}

func (ss *sshServer) trackConn(conn *ssh.ServerConn, add bool) bool {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()

	if ss.closed {
		return false
	}
	if add {
		ss.activeConn[conn] = struct{}{}
	} else {
		delete(ss.activeConn, conn)
	}
	return true
}

func (ss *sshServer) handleConn(conn *ssh.ServerConn, chans <-chan ssh.NewChannel,
	svr *Server, entry *log.Entry) {

	atomic.AddInt32(&ss.connCount, 1)
	defer atomic.AddInt32(&ss.connCount, -1)

	if ss.trackConn(conn, true) {
		for ch := range chans {
			go ss.handleChannel(conn, ch, svr, entry)
		}
		if ss.trackConn(conn, false) {
			conn.Close()
		}
	} else {
		conn.Close()
	}
	entry.Info("ssh disconnected")
}

type termReader struct {
	term *terminal.Terminal
	line []byte
}

func (tr *termReader) Read(d []byte) (int, error) {
	if len(tr.line) == 0 {
		line, err := tr.term.ReadLine()
		if err != nil {
			return 0, err
		}
		tr.line = []byte(line + "\n")
	}

	n := len(d)
	if n > len(tr.line) {
		n = len(tr.line)
	}

	copy(d, tr.line[:n])
	tr.line = tr.line[n:]
	return n, nil
}

func (ss *sshServer) handleChannel(conn *ssh.ServerConn, nch ssh.NewChannel, svr *Server,
	entry *log.Entry) {

	typ := nch.ChannelType()
	if typ != "session" {
		nch.Reject(ssh.UnknownChannelType, typ)
		entry.WithField("channel-type", typ).Error("unknown channel type")
		return
	}
	entry.WithField("channel-type", typ).Debug("new channel")

	ch, reqs, err := nch.Accept()
	if err != nil {
		entry.WithField("error", err.Error()).Error("new channel accept")
		return
	}
	defer ch.Close()

	go func() {
		for req := range reqs {
			entry.WithFields(log.Fields{
				"request-type": req.Type,
				"want-reply":   req.WantReply,
				"payload":      len(req.Payload),
			}).Debug("channel request")
			if req.WantReply {
				req.Reply(true, nil)
			}
		}
		entry.Debug("channel requests done")
	}()

	t := terminal.NewTerminal(ch, prompt)
	tr := termReader{
		term: t,
	}
	svr.Handle(bufio.NewReader(&tr), t, conn.User(), "ssh", conn.RemoteAddr().String())
}

func (ss *sshServer) Close() error {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()

	if ss.closed {
		return nil
	}
	ss.closed = true

	var err error
	if !ss.shutdown {
		err = ss.listener.Close()
		ss.shutdown = true
	}

	for conn := range ss.activeConn {
		conn.Close()
		delete(ss.activeConn, conn)
	}
	return err
}

func (ss *sshServer) Shutdown(ctx context.Context) error {
	var err error

	ss.mutex.Lock()
	if ss.closed {
		ss.mutex.Unlock()
		return nil
	}
	if !ss.shutdown {
		err = ss.listener.Close()
		ss.shutdown = true
	}
	ss.mutex.Unlock()

	return waitForConns(ctx, "ssh", &ss.connCount, err)
}
