// Package client speaks the native protocol to a mydb server.
package client

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/xianghua-2/MYDB/catalog"
	"github.com/xianghua-2/MYDB/repl"
	"github.com/xianghua-2/MYDB/server"
)

// ServerError is an error returned by the server for a request.
type ServerError struct {
	Msg string
}

func (se *ServerError) Error() string {
	return se.Msg
}

type Client struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	log.WithField("addr", addr).Debug("client connected")

	return &Client{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}, nil
}

// Execute sends the statements in s and returns the response to the last one.
func (c *Client) Execute(s string) (*catalog.Response, error) {
	err := server.WritePackage(c.w, server.DataFlag, []byte(s))
	if err == nil {
		err = c.w.Flush()
	}
	if err != nil {
		return nil, fmt.Errorf("client: send: %w", err)
	}

	flag, payload, err := server.ReadPackage(c.r)
	if err != nil {
		return nil, fmt.Errorf("client: receive: %w", err)
	}
	switch flag {
	case server.DataFlag:
		return catalog.DecodeResponse(payload)
	case server.ErrorFlag:
		return nil, &ServerError{Msg: string(payload)}
	}
	return nil, fmt.Errorf("client: unexpected flag %d", flag)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Run executes each line returned by next and renders the response or the error to w. It
// returns when next returns io.EOF or the connection fails.
func (c *Client) Run(next func() (string, error), w io.Writer) error {
	for {
		line, err := next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r, err := c.Execute(line)
		if _, ok := err.(*ServerError); ok {
			fmt.Fprintln(w, err)
			continue
		} else if err != nil {
			return err
		}
		repl.Render(w, r)
	}
}
