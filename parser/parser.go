package parser

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/xianghua-2/MYDB/parser/scanner"
	"github.com/xianghua-2/MYDB/parser/token"
	"github.com/xianghua-2/MYDB/sql"
	"github.com/xianghua-2/MYDB/stmt"
	"github.com/xianghua-2/MYDB/storage"
)

type Parser interface {
	// Parse returns the next statement, or io.EOF when there are no more.
	Parse() (stmt.Stmt, error)
}

type parser struct {
	scanner   scanner.Scanner
	sctx      *scanner.ScanCtx
	unscanned bool
}

func NewParser(rr io.RuneReader, fn string) Parser {
	var p parser
	p.scanner.Init(rr, fn)
	p.sctx = &scanner.ScanCtx{}
	return &p
}

// ParseString parses every statement in s.
func ParseString(s string) ([]stmt.Stmt, error) {
	p := NewParser(strings.NewReader(s), "")
	var stmts []stmt.Stmt
	for {
		st, err := p.Parse()
		if err == io.EOF {
			return stmts, nil
		} else if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
	}
}

func (p *parser) Parse() (st stmt.Stmt, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(runtime.Error); ok {
				panic(r)
			}
			err = r.(error)
			st = nil
			p.skipStatement()
		}
	}()

	for {
		t := p.scan()
		if t == token.EOF {
			return nil, io.EOF
		} else if t != token.EndOfStatement {
			break
		}
	}
	p.unscan()

	st = p.parseStmt()
	p.expectEndOfStatement()
	return
}

func (p *parser) skipStatement() {
	p.unscanned = false
	for p.sctx.Token != token.EOF && p.sctx.Token != token.EndOfStatement {
		p.scanner.Scan(p.sctx)
		if p.sctx.Token == token.Error {
			return
		}
	}
}

func (p *parser) error(msg string) {
	panic(fmt.Errorf("parser: %s: %s", p.sctx.Position, msg))
}

func (p *parser) scan() rune {
	if p.unscanned {
		p.unscanned = false
		return p.sctx.Token
	}

	p.scanner.Scan(p.sctx)
	if p.sctx.Token == token.Error {
		p.error(p.sctx.Error.Error())
	}
	return p.sctx.Token
}

func (p *parser) unscan() {
	p.unscanned = true
}

func (p *parser) got() string {
	switch p.sctx.Token {
	case token.EOF:
		return "end of input"
	case token.EndOfStatement:
		return "end of statement"
	case token.Identifier:
		return fmt.Sprintf("identifier %s", p.sctx.Identifier)
	case token.Reserved:
		return fmt.Sprintf("keyword %s", p.sctx.Identifier)
	case token.String:
		return fmt.Sprintf("string %q", p.sctx.String)
	case token.Integer:
		return fmt.Sprintf("integer %d", p.sctx.Integer)
	}
	return token.Format(p.sctx.Token)
}

func (p *parser) expectReserved(kws ...string) string {
	t := p.scan()
	if t == token.Reserved {
		for _, kw := range kws {
			if kw == p.sctx.Identifier {
				return kw
			}
		}
	}

	var msg string
	if len(kws) == 1 {
		msg = kws[0]
	} else {
		for i, kw := range kws {
			if i == len(kws)-1 {
				msg += ", or "
			} else if i > 0 {
				msg += ", "
			}
			msg += kw
		}
	}

	p.error(fmt.Sprintf("expected keyword %s got %s", msg, p.got()))
	return ""
}

func (p *parser) optionalReserved(kws ...string) bool {
	t := p.scan()
	if t == token.Reserved {
		for _, kw := range kws {
			if kw == p.sctx.Identifier {
				return true
			}
		}
	}

	p.unscan()
	return false
}

func (p *parser) expectIdentifier(msg string) string {
	t := p.scan()
	if t != token.Identifier {
		p.error(fmt.Sprintf("%s got %s", msg, p.got()))
	}
	return p.sctx.Identifier
}

func (p *parser) expectTokens(tokens ...rune) rune {
	t := p.scan()
	for _, r := range tokens {
		if t == r {
			return r
		}
	}

	var msg string
	if len(tokens) == 1 {
		msg = token.Format(tokens[0])
	} else {
		for i, r := range tokens {
			if i == len(tokens)-1 {
				msg += ", or "
			} else if i > 0 {
				msg += ", "
			}
			msg += token.Format(r)
		}
	}

	p.error(fmt.Sprintf("expected %s got %s", msg, p.got()))
	return 0
}

func (p *parser) maybeToken(mr rune) bool {
	if p.scan() == mr {
		return true
	}
	p.unscan()
	return false
}

func (p *parser) atEndOfStatement() bool {
	t := p.scan()
	p.unscan()
	return t == token.EOF || t == token.EndOfStatement
}

func (p *parser) expectEndOfStatement() {
	t := p.scan()
	if t != token.EOF && t != token.EndOfStatement {
		p.error(fmt.Sprintf("expected the end of the statement got %s", p.got()))
	}
}

func (p *parser) parseStmt() stmt.Stmt {
	switch p.expectReserved("BEGIN", "COMMIT", "ABORT", "ROLLBACK", "SHOW", "CREATE", "INSERT",
		"SELECT", "UPDATE", "DELETE") {
	case "BEGIN":
		// BEGIN [ISOLATION LEVEL (READ COMMITTED | REPEATABLE READ)] [READ WRITE]
		return p.parseBegin()
	case "COMMIT":
		return &stmt.Commit{}
	case "ABORT", "ROLLBACK":
		return &stmt.Abort{}
	case "SHOW":
		return &stmt.Show{}
	case "CREATE":
		// CREATE TABLE
		p.expectReserved("TABLE")
		return p.parseCreate()
	case "INSERT":
		// INSERT INTO
		p.expectReserved("INTO")
		return p.parseInsert()
	case "SELECT":
		return p.parseSelect()
	case "UPDATE":
		return p.parseUpdate()
	case "DELETE":
		// DELETE FROM
		p.expectReserved("FROM")
		return p.parseDelete()
	}

	return nil
}

func (p *parser) parseBegin() stmt.Stmt {
	var s stmt.Begin
	for {
		if p.optionalReserved("ISOLATION") {
			p.expectReserved("LEVEL")
			if p.expectReserved("READ", "REPEATABLE") == "READ" {
				p.expectReserved("COMMITTED")
				s.Isolation = storage.ReadCommitted
			} else {
				p.expectReserved("READ")
				s.Isolation = storage.RepeatableRead
			}
		} else if p.optionalReserved("READ") {
			switch strings.ToUpper(p.expectIdentifier("expected WRITE or ONLY")) {
			case "WRITE":
			case "ONLY":
				p.error("read only transactions are not supported")
			default:
				p.error(fmt.Sprintf("expected WRITE or ONLY got %s", p.got()))
			}
		} else {
			break
		}
		p.maybeToken(token.Comma)
	}
	return &s
}

func (p *parser) parseCreate() stmt.Stmt {
	// CREATE TABLE table field type [, field type] ... [, (INDEX field [field] ...)]
	var s stmt.Create
	s.Table = p.expectIdentifier("expected a table")

	if p.atEndOfStatement() {
		return &s
	}

	for {
		var fd stmt.FieldDef
		fd.Name = p.expectIdentifier("expected a field")
		fd.Type = p.expectIdentifier("expected a field type")
		s.Fields = append(s.Fields, fd)

		if !p.maybeToken(token.Comma) {
			break
		}
		if p.maybeToken(token.LParen) {
			p.expectReserved("INDEX")
			for {
				s.Indexes = append(s.Indexes, p.expectIdentifier("expected a field to index"))
				if p.maybeToken(token.RParen) {
					break
				}
				p.maybeToken(token.Comma)
			}
			break
		}
	}

	return &s
}

func (p *parser) parseValue() sql.Value {
	switch p.scan() {
	case token.Integer:
		return sql.Int64Value(p.sctx.Integer)
	case token.String:
		return sql.StringValue(p.sctx.String)
	}

	p.error(fmt.Sprintf("expected a value got %s", p.got()))
	return nil
}

func (p *parser) parseInsert() stmt.Stmt {
	// INSERT INTO table VALUES value [value] ...
	var s stmt.Insert
	s.Table = p.expectIdentifier("expected a table")
	p.expectReserved("VALUES")

	for !p.atEndOfStatement() {
		s.Values = append(s.Values, p.parseValue())
		p.maybeToken(token.Comma)
	}
	return &s
}

func (p *parser) parseSelect() stmt.Stmt {
	// SELECT (* | field [, field] ...) FROM table [WHERE cond]
	var s stmt.Select
	if !p.maybeToken(token.Star) {
		for {
			s.Fields = append(s.Fields, p.expectIdentifier("expected a field or *"))
			if !p.maybeToken(token.Comma) {
				break
			}
		}
	}

	p.expectReserved("FROM")
	s.Table = p.expectIdentifier("expected a table")
	s.Where = p.parseWhere()
	return &s
}

func (p *parser) parseUpdate() stmt.Stmt {
	// UPDATE table SET field = value [, field = value] ... [WHERE cond]
	var s stmt.Update
	s.Table = p.expectIdentifier("expected a table")
	p.expectReserved("SET")

	for {
		var a stmt.Assignment
		a.Field = p.expectIdentifier("expected a field")
		p.expectTokens(token.Equal)
		a.Value = p.parseValue()
		s.Set = append(s.Set, a)

		if !p.maybeToken(token.Comma) {
			break
		}
	}

	s.Where = p.parseWhere()
	return &s
}

func (p *parser) parseDelete() stmt.Stmt {
	// DELETE FROM table [WHERE cond]
	var s stmt.Delete
	s.Table = p.expectIdentifier("expected a table")
	s.Where = p.parseWhere()
	return &s
}

var ops = map[rune]stmt.Op{
	token.Equal:        stmt.EqualOp,
	token.Less:         stmt.LessOp,
	token.Greater:      stmt.GreaterOp,
	token.LessEqual:    stmt.LessEqualOp,
	token.GreaterEqual: stmt.GreaterEqualOp,
}

func (p *parser) parseCond() stmt.Cond {
	var c stmt.Cond
	c.Field = p.expectIdentifier("expected a field")
	c.Op = ops[p.expectTokens(token.Equal, token.Less, token.Greater, token.LessEqual,
		token.GreaterEqual)]
	c.Value = p.parseValue()
	return c
}

func (p *parser) parseWhere() *stmt.Where {
	// WHERE field op value [(AND | OR) field op value]
	if !p.optionalReserved("WHERE") {
		return nil
	}

	w := stmt.Where{
		Left: p.parseCond(),
	}
	if p.optionalReserved("AND") {
		w.Logic = stmt.AndLogic
	} else if p.optionalReserved("OR") {
		w.Logic = stmt.OrLogic
	} else {
		return &w
	}
	right := p.parseCond()
	w.Right = &right
	return &w
}
