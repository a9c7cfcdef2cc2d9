package testutil

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// FileLineNumber is the position of a test statement, for messages from helpers.
type FileLineNumber struct {
	File string
	Line int
}

func (fln FileLineNumber) String() string {
	if fln.File == "" || fln.Line == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d: ", filepath.Base(fln.File), fln.Line)
}

// Caller returns the position skip frames above its caller.
func Caller(skip int) FileLineNumber {
	_, fn, ln, ok := runtime.Caller(skip + 1)
	if !ok {
		return FileLineNumber{}
	}
	return FileLineNumber{File: fn, Line: ln}
}

// MakeFileLineNumber returns the position of the call to the helper which called it.
func MakeFileLineNumber() FileLineNumber {
	return Caller(2)
}
