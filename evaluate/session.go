package evaluate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xianghua-2/MYDB/catalog"
	"github.com/xianghua-2/MYDB/stmt"
	"github.com/xianghua-2/MYDB/storage"
)

var (
	ErrNoTransaction = errors.New("evaluate: no active transaction")
	ErrSessionClosed = errors.New("evaluate: session closed")

	lastSessionID uint64
)

type SessionHandler func(ses *Session)

// Session runs the statements of one client, in order. Without an explicit begin, each
// statement runs in its own transaction which is committed if the statement succeeds.
type Session struct {
	User   string
	Type   string
	Addr   string
	m      *catalog.Manager
	sesid  uint64
	xid    storage.TxID
	active bool
	closed bool
}

func NewSession(m *catalog.Manager, user, typ, addr string) *Session {
	sessionsGauge.Inc()
	return &Session{
		User:  user,
		Type:  typ,
		Addr:  addr,
		m:     m,
		sesid: atomic.AddUint64(&lastSessionID, 1),
	}
}

func (ses *Session) String() string {
	return fmt.Sprintf("session-%d", ses.sesid)
}

func (ses *Session) ActiveTx() bool {
	return ses.active
}

func (ses *Session) logEntry() *log.Entry {
	return log.WithFields(log.Fields{
		"session": ses.String(),
		"user":    ses.User,
		"addr":    ses.Addr,
	})
}

// Execute runs s and returns the encoded response.
func (ses *Session) Execute(ctx context.Context, s stmt.Stmt) ([]byte, error) {
	if ses.closed {
		return nil, ErrSessionClosed
	}

	kind := stmt.Kind(s)
	statementsTotal.WithLabelValues(kind).Inc()
	start := time.Now()
	buf, err := ses.execute(ctx, s)
	statementDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		class := catalog.Class(err)
		statementErrors.WithLabelValues(kind, class).Inc()
		ses.logEntry().WithFields(log.Fields{
			"kind":  kind,
			"class": class,
			"error": err.Error(),
		}).Debug("statement failed")
	}
	return buf, err
}

// Run runs s and decodes the response.
func (ses *Session) Run(ctx context.Context, s stmt.Stmt) (*catalog.Response, error) {
	buf, err := ses.Execute(ctx, s)
	if err != nil {
		return nil, err
	}
	return catalog.DecodeResponse(buf)
}

func (ses *Session) execute(ctx context.Context, s stmt.Stmt) ([]byte, error) {
	err := Validate(s)
	if err != nil {
		return nil, err
	}

	if ses.active {
		ses.m.NextStmt(ses.xid)
		buf, err := Dispatch(ctx, ses.m, ses.xid, s)
		switch s.(type) {
		case *stmt.Commit:
			ses.active = false
			ses.committed(ctx, err)
		case *stmt.Abort:
			ses.active = false
		}
		return buf, err
	}

	switch s := s.(type) {
	case *stmt.Begin:
		xid, buf, err := ses.m.Begin(s.Isolation)
		if err != nil {
			return nil, err
		}
		ses.xid = xid
		ses.active = true
		return buf, nil
	case *stmt.Commit, *stmt.Abort:
		return nil, &catalog.ClientInputError{
			Err: fmt.Errorf("%w: %s", ErrNoTransaction, s),
		}
	}

	xid, _, err := ses.m.Begin(storage.RepeatableRead)
	if err != nil {
		return nil, err
	}
	buf, err := Dispatch(ctx, ses.m, xid, s)
	if err != nil {
		if _, aerr := ses.m.Abort(xid); aerr != nil {
			ses.logEntry().WithFields(log.Fields{
				"xid":   xid,
				"error": aerr.Error(),
			}).Error("abort of failed statement")
		}
		return nil, err
	}
	_, err = ses.m.Commit(ctx, xid)
	ses.committed(ctx, err)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// committed accounts for the result of a commit. After a FatalIOError the transaction is
// committed but the root pointer file is behind, so it is reconciled once; the error is
// still returned to the client.
func (ses *Session) committed(ctx context.Context, err error) {
	if err == nil {
		commitsTotal.Inc()
		return
	}

	switch catalog.Class(err) {
	case "conflict":
		commitConflicts.Inc()
	case "fatal":
		rerr := ses.m.Reconcile(ctx)
		entry := ses.logEntry().WithField("error", err.Error())
		if rerr != nil {
			entry.WithField("reconcile", rerr.Error()).Error("root pointer not reconciled")
		} else {
			entry.Warn("root pointer reconciled after commit")
		}
	}
}

// Close aborts the active transaction, if any.
func (ses *Session) Close() error {
	if ses.closed {
		return nil
	}
	ses.closed = true
	sessionsGauge.Dec()

	if ses.active {
		ses.active = false
		ses.logEntry().WithField("xid", ses.xid).Info("aborting transaction of closed session")
		_, err := ses.m.Abort(ses.xid)
		return err
	}
	return nil
}
