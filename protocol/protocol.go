// Package protocol implements the line framing used by Yeelight bulbs.
//
// TCP is a byte stream, so message boundaries must be restored by the
// receiver. The bulb terminates every message with CRLF:
//
//	{"id":1,"method":"toggle","params":[]}\r\n
//	{"id":1,"result":["ok"]}\r\n
//
// Lines never contain raw CR or LF because string values are JSON-escaped by
// the codec. A bare LF terminator is accepted on read.
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// Terminator ends every line on the wire.
	Terminator = "\r\n"

	// MaxLineSize bounds a single inbound line. Real bulbs send a few hundred
	// bytes at most; anything larger means the stream is not a bulb.
	MaxLineSize = 64 * 1024
)

var (
	// ErrEmbeddedTerminator is returned by Encode for a line that would break
	// framing.
	ErrEmbeddedTerminator = errors.New("protocol: line contains CR or LF")

	// ErrLineTooLong is returned by ReadLine when a line exceeds MaxLineSize.
	ErrLineTooLong = errors.New("protocol: line too long")
)

// Encode writes line followed by the terminator in a single Write call.
// The caller must hold a write lock if multiple goroutines share w, otherwise
// lines from different requests interleave.
func Encode(w io.Writer, line []byte) error {
	if bytes.ContainsAny(line, "\r\n") {
		return ErrEmbeddedTerminator
	}
	buf := make([]byte, 0, len(line)+len(Terminator))
	buf = append(buf, line...)
	buf = append(buf, Terminator...)
	_, err := w.Write(buf)
	return err
}

// Reader splits a byte stream into lines. It is not safe for concurrent use;
// each connection has exactly one reading goroutine.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), MaxLineSize)
	return &Reader{scanner: s}
}

// ReadLine returns the next non-empty line without its terminator. The
// returned slice is only valid until the next call. At end of stream it
// returns io.EOF.
func (r *Reader) ReadLine() ([]byte, error) {
	for r.scanner.Scan() {
		line := bytes.TrimRight(r.scanner.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
	if err := r.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: limit %d bytes", ErrLineTooLong, MaxLineSize)
		}
		return nil, err
	}
	return nil, io.EOF
}
