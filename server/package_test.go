package server

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"
)

type zeroReader struct {
	n int
}

func (zr *zeroReader) Read(p []byte) (int, error) {
	if zr.n == 0 {
		return 0, io.EOF
	}
	if len(p) > zr.n {
		p = p[:zr.n]
	}
	for i := range p {
		p[i] = '0'
	}
	zr.n -= len(p)
	return len(p), nil
}

func TestReadLongLine(t *testing.T) {
	var b bytes.Buffer
	err := WritePackage(&b, DataFlag, []byte("show"))
	if err != nil {
		t.Fatal(err)
	}

	r := bufio.NewReader(io.MultiReader(&zeroReader{n: maxLine + 100},
		bytes.NewReader([]byte{'\n'}), &b))
	_, _, err = ReadPackage(r)
	if !errors.Is(err, ErrBadPackage) {
		t.Errorf("ReadPackage(long line) got %v want %s", err, ErrBadPackage)
	}
	flag, payload, err := ReadPackage(r)
	if err != nil || flag != DataFlag || string(payload) != "show" {
		t.Errorf("ReadPackage() after long line got %d, %q, %v", flag, payload, err)
	}
}
