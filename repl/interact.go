package repl

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/xianghua-2/MYDB/evaluate"
	"github.com/xianghua-2/MYDB/parser"
)

const (
	Prompt = "mydb: "

	mydbHistory = ".mydb_history"
)

type lineReader struct {
	line *liner.State
	r    *strings.Reader
}

func (lr *lineReader) ReadRune() (r rune, size int, err error) {
	for {
		if lr.r == nil {
			s, err := lr.line.Prompt(Prompt)
			if err != nil {
				return 0, 0, err
			}
			lr.line.AppendHistory(s)
			lr.r = strings.NewReader(s + "\n")
		}

		r, sz, err := lr.r.ReadRune()
		if err == io.EOF {
			lr.r = nil
		} else if err != nil {
			return 0, 0, err
		} else {
			return r, sz, nil
		}
	}
}

// Console reads lines from the terminal, with history kept in .mydb_history, and passes each
// one to fn until the input ends.
type Console struct {
	line *liner.State
}

func NewConsole() *Console {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(mydbHistory); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return &Console{line: line}
}

func (c *Console) RuneReader() io.RuneReader {
	return &lineReader{line: c.line}
}

// Prompt returns the next line; io.EOF at the end of input.
func (c *Console) Prompt() (string, error) {
	s, err := c.line.Prompt(Prompt)
	if err == liner.ErrPromptAborted {
		return "", io.EOF
	} else if err != nil {
		return "", err
	}
	c.line.AppendHistory(s)
	return s, nil
}

func (c *Console) Close() {
	if f, err := os.Create(mydbHistory); err != nil {
		fmt.Fprintf(os.Stderr, "mydb: error writing history file, %s: %s\n", mydbHistory, err)
	} else {
		c.line.WriteHistory(f)
		f.Close()
	}
	c.line.Close()
}

// Interact runs a console session on the terminal.
func Interact() evaluate.SessionHandler {
	return func(ses *evaluate.Session) {
		c := NewConsole()
		defer c.Close()

		ReplSQL(ses, parser.NewParser(c.RuneReader(), "console"), os.Stdout)
	}
}
