package token

import (
	"fmt"
	"strings"
)

const (
	EOF = -(iota + 1)
	EndOfStatement
	Error
	Identifier
	Reserved
	String
	Integer

	LessEqual
	GreaterEqual
)

const (
	Comma  = ','
	LParen = '('
	RParen = ')'
	Star   = '*'
	Equal  = '='
	Less   = '<'

	Greater = '>'
)

var operators = map[rune]string{
	LessEqual:    "<=",
	GreaterEqual: ">=",
}

var keywords = map[string]struct{}{}

func init() {
	for _, kw := range []string{
		"ABORT", "AND", "BEGIN", "COMMIT", "COMMITTED", "CREATE", "DELETE", "FROM", "INDEX",
		"INSERT", "INTO", "ISOLATION", "LEVEL", "OR", "READ", "REPEATABLE", "ROLLBACK",
		"SELECT", "SET", "SHOW", "TABLE", "UPDATE", "VALUES", "WHERE",
	} {
		keywords[kw] = struct{}{}
	}
}

// Keyword returns the canonical (upper case) form of s if it is a keyword; keywords are
// not case sensitive.
func Keyword(s string) (string, bool) {
	kw := strings.ToUpper(s)
	_, ok := keywords[kw]
	return kw, ok
}

func Format(r rune) string {
	if r > 0 {
		return fmt.Sprintf("rune %c", r)
	}
	if s, ok := operators[r]; ok {
		return s
	}
	switch r {
	case EOF:
		return "end of statement"
	case EndOfStatement:
		return "rune ;"
	case Identifier:
		return "identifier"
	case String:
		return "string"
	case Integer:
		return "integer"
	}
	return fmt.Sprintf("token %d", r)
}
