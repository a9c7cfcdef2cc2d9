package server

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/xianghua-2/MYDB/evaluate"
	"github.com/xianghua-2/MYDB/parser"
)

const (
	DataFlag  byte = 0
	ErrorFlag byte = 1

	maxLine = 1 << 24
)

var (
	ErrBadPackage   = errors.New("server: bad package")
	ErrEmptyRequest = errors.New("server: empty request")
)

// WritePackage writes one line: the hex encoding of flag followed by payload.
func WritePackage(w io.Writer, flag byte, payload []byte) error {
	buf := make([]byte, hex.EncodedLen(len(payload)+1)+1)
	hex.Encode(buf, append([]byte{flag}, payload...))
	buf[len(buf)-1] = '\n'
	_, err := w.Write(buf)
	return err
}

// readLine reads up to and including the next newline. A line longer than maxLine is
// skipped without being held in memory and returns ErrBadPackage.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	var n int
	for {
		buf, err := r.ReadSlice('\n')
		n += len(buf)
		if n <= maxLine {
			line = append(line, buf...)
		} else {
			line = nil
		}
		if err == bufio.ErrBufferFull {
			continue
		} else if err == io.EOF && n > 0 {
			err = nil
		}
		if err != nil {
			return nil, err
		}
		if n > maxLine {
			return nil, fmt.Errorf("%w: line of %d bytes", ErrBadPackage, n)
		}
		return line, nil
	}
}

// ReadPackage reads one line written by WritePackage. A line that is not a package returns
// ErrBadPackage; the next package can still be read.
func ReadPackage(r *bufio.Reader) (byte, []byte, error) {
	line, err := readLine(r)
	if err != nil {
		return 0, nil, err
	}

	buf, err := hex.DecodeString(strings.TrimRight(string(line), "\r\n"))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s", ErrBadPackage, err)
	}
	if len(buf) == 0 {
		return 0, nil, fmt.Errorf("%w: empty", ErrBadPackage)
	}
	return buf[0], buf[1:], nil
}

type NativeConfig struct {
	Address string
}

func (svr *Server) ListenAndServeNative(cfg NativeConfig) error {
	l, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return err
	}
	return svr.ServeNative(l)
}

// ServeNative accepts connections speaking the native protocol on l: each request is a
// package holding statement text, answered by a package holding the encoded response of the
// last statement or the first error.
func (svr *Server) ServeNative(l net.Listener) error {
	ts := newTCPServer("native", l)
	if !svr.addServer(ts) {
		l.Close()
		return ErrServerClosed
	}

	for {
		conn, err := ts.accept()
		if err != nil {
			return err
		}

		go ts.serveConn(conn,
			func(conn net.Conn, entry *log.Entry) {
				svr.HandleSession(
					func(ses *evaluate.Session) {
						handleNativeSession(ses, conn, entry)
					}, "native", "native", conn.RemoteAddr().String())
			})
	}
}

func executeText(ctx context.Context, ses *evaluate.Session, s string) ([]byte, error) {
	stmts, err := parser.ParseString(s)
	if err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		return nil, ErrEmptyRequest
	}

	var buf []byte
	for _, stmt := range stmts {
		buf, err = ses.Execute(ctx, stmt)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func handleNativeSession(ses *evaluate.Session, conn net.Conn, entry *log.Entry) {
	ctx := context.Background()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		flag, payload, err := ReadPackage(r)
		if err == io.EOF {
			return
		} else if err != nil && !errors.Is(err, ErrBadPackage) {
			entry.WithField("error", err.Error()).Error("native receive")
			return
		} else if err == nil && flag != DataFlag {
			err = fmt.Errorf("%w: flag %d", ErrBadPackage, flag)
		}

		var buf []byte
		if err == nil {
			buf, err = executeText(ctx, ses, string(payload))
		}
		if err != nil {
			err = WritePackage(w, ErrorFlag, []byte(err.Error()))
		} else {
			err = WritePackage(w, DataFlag, buf)
		}
		if err == nil {
			err = w.Flush()
		}
		if err != nil {
			entry.WithField("error", err.Error()).Error("native send")
			return
		}
	}
}
