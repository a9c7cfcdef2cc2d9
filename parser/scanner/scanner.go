package scanner

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"unicode"

	"github.com/xianghua-2/MYDB/parser/token"
)

type Position struct {
	Filename string
	Line     int
	Column   int
}

type ScanCtx struct {
	Token      rune
	Error      error
	Identifier string // Identifier and Reserved; upper case for Reserved
	String     string
	Integer    int64
	Position
}

type Scanner struct {
	initialized bool
	rr          io.RuneReader
	unread      bool
	read        rune
	filename    string
	line        int
	column      int
	buffer      bytes.Buffer
}

func (pos Position) String() string {
	s := pos.Filename
	if pos.Line > 0 {
		s += fmt.Sprintf(":%d:%d", pos.Line, pos.Column)
	}
	return s
}

func (s *Scanner) Init(rr io.RuneReader, fn string) {
	if s.initialized {
		panic("scanner already initialized")
	}
	s.initialized = true

	s.rr = rr
	s.filename = fn
	s.line = 1
}

func (s *Scanner) Scan(sctx *ScanCtx) {
	s.buffer.Reset()
	sctx.Filename = s.filename
	sctx.Line = s.line
	sctx.Column = s.column
	sctx.Token = s.scan(sctx)
}

func (s *Scanner) scan(sctx *ScanCtx) rune {
SkipWhitespace:
	r := s.readRune(sctx)

	for {
		if r < 0 {
			return r
		}
		if !unicode.IsSpace(r) {
			break
		}

		r = s.readRune(sctx)
	}

	if r == ';' {
		return token.EndOfStatement
	}

	sctx.Column = s.column
	sctx.Line = s.line

	if r == '-' {
		r2 := s.readRune(sctx)
		if r2 == '-' {
			for {
				r2 = s.readRune(sctx)
				if r2 < 0 {
					return r2
				}
				if r2 == '\n' {
					break
				}
			}

			goto SkipWhitespace
		} else if unicode.IsDigit(r2) {
			return s.scanNumber(sctx, r2, -1)
		} else if r2 == token.Error {
			return r2
		}
		sctx.Error = fmt.Errorf("scanner: unexpected character '-'")
		return token.Error
	}

	if unicode.IsLetter(r) || r == '_' {
		return s.scanIdentifier(sctx, r)
	} else if unicode.IsDigit(r) {
		return s.scanNumber(sctx, r, 1)
	} else if r == '\'' || r == '"' {
		return s.scanString(sctx, r)
	} else if r == '<' || r == '>' {
		r2 := s.readRune(sctx)
		if r2 == '=' {
			if r == '<' {
				return token.LessEqual
			}
			return token.GreaterEqual
		} else if r2 == token.Error {
			return r2
		}
		if r2 != token.EOF {
			s.unreadRune()
		}
		return r
	} else if r == '=' || r == '*' || r == ',' || r == '(' || r == ')' {
		return r
	}

	sctx.Error = fmt.Errorf("scanner: unexpected character '%c'", r)
	return token.Error
}

func (s *Scanner) readRune(sctx *ScanCtx) rune {
	if s.unread {
		s.unread = false
		return s.read
	}

	var err error
	s.read, _, err = s.rr.ReadRune()
	if err == io.EOF {
		s.read = token.EOF
		return token.EOF
	} else if err != nil {
		sctx.Error = err
		return token.Error
	}

	if s.read == '\n' {
		s.line += 1
		s.column = 0
	} else {
		s.column += 1
	}

	return s.read
}

func (s *Scanner) unreadRune() {
	s.unread = true
}

func (s *Scanner) scanIdentifier(sctx *ScanCtx, r rune) rune {
	for {
		s.buffer.WriteRune(r)
		r = s.readRune(sctx)
		if r == token.EOF {
			break
		} else if r == token.Error {
			return token.Error
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			s.unreadRune()
			break
		}
	}

	if kw, ok := token.Keyword(s.buffer.String()); ok {
		sctx.Identifier = kw
		return token.Reserved
	}
	sctx.Identifier = s.buffer.String()
	return token.Identifier
}

func (s *Scanner) scanNumber(sctx *ScanCtx, r rune, sign int64) rune {
	if sign < 0 {
		s.buffer.WriteRune('-')
	}
	for {
		s.buffer.WriteRune(r)
		r = s.readRune(sctx)
		if r == token.EOF {
			break
		} else if r == token.Error {
			return token.Error
		}
		if !unicode.IsDigit(r) {
			s.unreadRune()
			break
		}
	}

	var err error
	sctx.Integer, err = strconv.ParseInt(s.buffer.String(), 10, 64)
	if err != nil {
		sctx.Error = fmt.Errorf("scanner: %w", err)
		return token.Error
	}
	return token.Integer
}

// scanString reads a string delimited by delim; a doubled delimiter stands for itself.
func (s *Scanner) scanString(sctx *ScanCtx, delim rune) rune {
	for {
		r := s.readRune(sctx)
		if r == token.EOF {
			sctx.Error = fmt.Errorf("scanner: string missing terminating %c", delim)
			return token.Error
		}
		if r == token.Error {
			return token.Error
		}
		if r == delim {
			r = s.readRune(sctx)
			if r == token.Error {
				return token.Error
			} else if r != delim {
				if r != token.EOF {
					s.unreadRune()
				}
				break
			}
		}
		s.buffer.WriteRune(r)
	}

	sctx.String = s.buffer.String()
	return token.String
}
