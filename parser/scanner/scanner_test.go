package scanner_test

import (
	"fmt"
	"strings"
	"testing"

	. "github.com/xianghua-2/MYDB/parser/scanner"
	"github.com/xianghua-2/MYDB/parser/token"
)

func TestScan(t *testing.T) {
	cases := []struct {
		s string
		r rune
	}{
		{"", token.EOF},
		{"   ", token.EOF},
		{";", token.EndOfStatement},
		{"abc", token.Identifier},
		{"create", token.Reserved},
		{"CrEaTe", token.Reserved},
		{"'create'", token.String},
		{"\"create\"", token.String},
		{"12345", token.Integer},
		{"-12345", token.Integer},
		{", ", token.Comma},
		{"(123", token.LParen},
		{")", token.RParen},
		{"*", token.Star},
		{"=123", token.Equal},
		{"<123", token.Less},
		{">123", token.Greater},
		{"<=", token.LessEqual},
		{">=", token.GreaterEqual},
		{"-- comment\nabc", token.Identifier},
		{"-- comment", token.EOF},
		{"-abc", token.Error},
		{"'abc", token.Error},
		{"!", token.Error},
		{"99999999999999999999", token.Error},
	}

	for i, c := range cases {
		var s Scanner
		s.Init(strings.NewReader(c.s), fmt.Sprintf("cases[%d]", i))
		var sctx ScanCtx
		s.Scan(&sctx)
		if sctx.Token != c.r {
			t.Errorf("Scan(%q) got %s want %s", c.s, token.Format(sctx.Token),
				token.Format(c.r))
		}
	}

	stringCases := []struct {
		s   string
		ret string
	}{
		{"'abc'", "abc"},
		{"\"abc\" 123", "abc"},
		{"'isn''t'", "isn't"},
		{"\"say \"\"hi\"\"\"", "say \"hi\""},
		{"'a \"b\" c'", "a \"b\" c"},
		{"''", ""},
	}

	for i, c := range stringCases {
		var s Scanner
		s.Init(strings.NewReader(c.s), fmt.Sprintf("stringCases[%d]", i))
		var sctx ScanCtx
		s.Scan(&sctx)
		if sctx.Token != token.String {
			t.Errorf("Scan(%q) got %s want string", c.s, token.Format(sctx.Token))
		} else if sctx.String != c.ret {
			t.Errorf("Scan(%q) got %q want %q", c.s, sctx.String, c.ret)
		}
	}

	identCases := []struct {
		s   string
		tok rune
		id  string
	}{
		{"Table1", token.Identifier, "Table1"},
		{"table", token.Reserved, "TABLE"},
		{"_x_9", token.Identifier, "_x_9"},
		{"where", token.Reserved, "WHERE"},
	}

	for i, c := range identCases {
		var s Scanner
		s.Init(strings.NewReader(c.s), fmt.Sprintf("identCases[%d]", i))
		var sctx ScanCtx
		s.Scan(&sctx)
		if sctx.Token != c.tok || sctx.Identifier != c.id {
			t.Errorf("Scan(%q) got %s %q want %s %q", c.s, token.Format(sctx.Token),
				sctx.Identifier, token.Format(c.tok), c.id)
		}
	}
}

func TestScanSequence(t *testing.T) {
	src := "select id, name from t where id >= -3 and name = 'a';\nshow"
	want := []rune{token.Reserved, token.Identifier, token.Comma, token.Identifier,
		token.Reserved, token.Identifier, token.Reserved, token.Identifier, token.GreaterEqual,
		token.Integer, token.Reserved, token.Identifier, token.Equal, token.String,
		token.EndOfStatement, token.Reserved, token.EOF}

	var s Scanner
	s.Init(strings.NewReader(src), "sequence")
	var sctx ScanCtx
	for i, r := range want {
		s.Scan(&sctx)
		if sctx.Token != r {
			t.Fatalf("Scan(%d) got %s want %s", i, token.Format(sctx.Token), token.Format(r))
		}
	}
	if sctx.Line != 2 {
		t.Errorf("Line got %d want 2", sctx.Line)
	}
}
