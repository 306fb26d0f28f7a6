// Package codec converts between message values and single wire lines.
//
// A codec never adds or strips line terminators; framing is the protocol
// package's job. Encoded output is guaranteed not to contain CR or LF.
package codec

import (
	"errors"

	"yeectl/message"
)

var (
	// ErrDecode is returned for a line that is neither a response nor a
	// notification. It is recoverable: the connection skips the line.
	ErrDecode = errors.New("codec: malformed line")

	// ErrUnsupportedParam is returned when a request parameter is not an
	// integer or a string.
	ErrUnsupportedParam = errors.New("codec: unsupported parameter type")
)

// Codec encodes outgoing messages and decodes incoming lines. The client side
// uses EncodeRequest and Decode; the emulator uses the other three.
type Codec interface {
	EncodeRequest(req *message.Request) ([]byte, error)
	Decode(line []byte) (*message.Envelope, error)

	DecodeRequest(line []byte) (*message.Request, error)
	EncodeResponse(resp *message.Response) ([]byte, error)
	EncodeNotification(n *message.Notification) ([]byte, error)
}

// New returns the codec spoken by Yeelight bulbs.
func New() Codec {
	return &JSONCodec{}
}
