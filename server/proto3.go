package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	pgproto3 "github.com/jackc/pgproto3/v2"
	"github.com/lib/pq/oid"
	log "github.com/sirupsen/logrus"

	"github.com/xianghua-2/MYDB/catalog"
	"github.com/xianghua-2/MYDB/evaluate"
	"github.com/xianghua-2/MYDB/parser"
	"github.com/xianghua-2/MYDB/sql"
)

type Proto3Config struct {
	Address string
}

func (svr *Server) ListenAndServeProto3(p3Cfg Proto3Config) error {
	l, err := net.Listen("tcp", p3Cfg.Address)
	if err != nil {
		return err
	}
	return svr.ServeProto3(l)
}

// ServeProto3 accepts connections speaking the PostgreSQL wire protocol v3 on l. Only the
// simple query protocol is supported.
func (svr *Server) ServeProto3(l net.Listener) error {
	ts := newTCPServer("proto3", l)
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
				svr.handleProto3Conn(conn, entry)
			})
	}
}

func (svr *Server) handleProto3Conn(conn net.Conn, entry *log.Entry) {
	be := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)

	var user string
	for user == "" {
		msg, err := be.ReceiveStartupMessage()
		if err != nil {
			entry.Errorf("receive startup message: %s", err)
			return
		}

		switch msg := msg.(type) {
		case *pgproto3.StartupMessage:
			entry.Debugf("protocol version: %d", msg.ProtocolVersion)
			for nam, val := range msg.Parameters {
				entry.Debugf("parameter: %s = %s", nam, val)
			}
			user = msg.Parameters["user"]
			if user == "" {
				user = "proto3"
			}

			buf := (&pgproto3.AuthenticationOk{}).Encode(nil)
			buf = (&pgproto3.ParameterStatus{Name: "server_version", Value: "10.0"}).Encode(buf)
			buf = (&pgproto3.ParameterStatus{Name: "client_encoding", Value: "UTF8"}).Encode(buf)
			_, err := conn.Write(buf)
			if err != nil {
				entry.Errorf("send authentication ok: %s", err)
				return
			}
		case *pgproto3.SSLRequest:
			_, err := conn.Write([]byte("N"))
			if err != nil {
				entry.Errorf("send deny SSL request: %s", err)
				return
			}
		default:
			entry.Errorf("unknown startup message: %v", msg)
			return
		}
	}

	svr.HandleSession(
		func(ses *evaluate.Session) {
			handleProto3Session(ses, be, conn, entry.WithField("user", user))
		}, user, "proto3", conn.RemoteAddr().String())
}

func dataType(t sql.Type) (oid.Oid, int16) {
	switch t {
	case sql.Int32Type:
		return oid.T_int4, 4
	case sql.Int64Type:
		return oid.T_int8, 8
	default:
		return oid.T_text, -1
	}
}

func handleProto3Session(ses *evaluate.Session, be *pgproto3.Backend, conn net.Conn,
	entry *log.Entry) {

	for {
		var ch byte
		if ses.ActiveTx() {
			ch = 'T'
		} else {
			ch = 'I'
		}
		_, err := conn.Write((&pgproto3.ReadyForQuery{TxStatus: ch}).Encode(nil))
		if err != nil {
			entry.Errorf("send ready for query: %s", err)
			return
		}

		msg, err := be.Receive()
		if err != nil {
			if err != io.EOF {
				entry.Errorf("receive: %s", err)
			}
			return
		}

		switch msg := msg.(type) {
		case *pgproto3.Query:
			err = proto3Query(ses, conn, msg)
			if err != nil {
				entry.Errorf("send: %s", err)
				return
			}
		case *pgproto3.Terminate:
			return
		default:
			buf, _ := json.Marshal(msg)
			entry.Errorf("backend unexpected message: %s", string(buf))
			err = proto3ErrorResponse(conn,
				fmt.Errorf("server: unsupported message %T", msg))
			if err != nil {
				return
			}
		}
	}
}

func proto3Query(ses *evaluate.Session, conn net.Conn, msg *pgproto3.Query) error {
	stmts, err := parser.ParseString(msg.String)
	if err != nil {
		return proto3ErrorResponse(conn, err)
	}
	if len(stmts) == 0 {
		_, err := conn.Write((&pgproto3.EmptyQueryResponse{}).Encode(nil))
		return err
	}

	for _, stmt := range stmts {
		r, err := ses.Run(context.Background(), stmt)
		if err != nil {
			return proto3ErrorResponse(conn, err)
		}
		err = proto3Response(conn, r)
		if err != nil {
			return err
		}
	}
	return nil
}

func rowDescription(cols []catalog.Column) *pgproto3.RowDescription {
	var fields []pgproto3.FieldDescription
	for _, col := range cols {
		oid, sz := dataType(col.Type)
		fields = append(fields,
			pgproto3.FieldDescription{
				Name:         []byte(col.Name),
				DataTypeOID:  uint32(oid),
				DataTypeSize: sz,
				TypeModifier: -1,
				Format:       0, // Text format; binary format = 1
			})
	}
	return &pgproto3.RowDescription{Fields: fields}
}

func proto3Response(conn net.Conn, r *catalog.Response) error {
	var cols []catalog.Column
	var rows [][]sql.Value
	switch r.Tag {
	case catalog.SelectTag:
		cols = r.Columns
		rows = r.Rows
	case catalog.ShowTag:
		cols = catalog.ShowColumns
		rows = r.ShowRows()
	default:
		return proto3CommandComplete(conn, r.Tag, r.Count)
	}

	buf := rowDescription(cols).Encode(nil)
	values := make([][]byte, len(cols))
	for _, row := range rows {
		for vdx, v := range row {
			if v == nil {
				values[vdx] = nil
			} else {
				values[vdx] = []byte(sql.Format(v))
			}
		}
		buf = (&pgproto3.DataRow{Values: values}).Encode(buf)
	}
	_, err := conn.Write(buf)
	if err != nil {
		return err
	}
	return proto3CommandComplete(conn, r.Tag, int64(len(rows)))
}

// sqlState maps an error to the closest PostgreSQL error code.
func sqlState(err error) string {
	switch catalog.Class(err) {
	case "client":
		if errors.Is(err, catalog.ErrNoSuchTable) {
			return "42P01" // undefined_table
		} else if errors.Is(err, catalog.ErrFieldMismatch) {
			return "42804" // datatype_mismatch
		}
		return "42601" // syntax_error
	case "schema":
		return "42P07" // duplicate_table
	case "conflict":
		return "40001" // serialization_failure
	case "fatal":
		return "58030" // io_error
	}
	return "XX000" // internal_error
}

func proto3ErrorResponse(conn net.Conn, err error) error {
	_, werr := conn.Write((&pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     sqlState(err),
		Message:  err.Error(),
	}).Encode(nil))
	return werr
}

func proto3CommandComplete(conn net.Conn, tag string, n int64) error {
	var cmdTag string
	switch tag {
	case catalog.InsertTag:
		cmdTag = fmt.Sprintf("%s 0 %d", tag, n)
	case catalog.SelectTag, catalog.ShowTag, catalog.UpdateTag, catalog.DeleteTag:
		cmdTag = fmt.Sprintf("%s %d", tag, n)
	case catalog.AbortTag:
		cmdTag = "ROLLBACK"
	default:
		cmdTag = tag
	}
	_, err := conn.Write((&pgproto3.CommandComplete{CommandTag: []byte(cmdTag)}).Encode(nil))
	return err
}
