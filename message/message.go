// Package message defines the messages exchanged with a bulb.
//
// Every line on the wire is one of three shapes:
//
//	request:       {"id":1,"method":"toggle","params":[]}
//	response:      {"id":1,"result":["ok"]}  or  {"id":1,"error":{"code":-1,"message":"..."}}
//	notification:  {"method":"props","params":{"power":"on"}}
//
// Requests flow client → bulb; responses and notifications flow bulb → client.
package message

import "fmt"

// MethodProps is the method name carried by property-change notifications.
const MethodProps = "props"

// Request is a single method call sent to the bulb.
type Request struct {
	ID     uint64 // Correlation id, unique among outstanding requests on a connection
	Method string // Device method, e.g. "set_ct_abx" or "bg_toggle"
	Params []any  // Integers and strings only, in wire order
}

// Result is the ordered list of values returned by a successful call.
type Result []string

// IsOK reports whether the result is the single value "ok" that the bulb
// returns for most mutating methods.
func (r Result) IsOK() bool {
	return len(r) == 1 && r[0] == "ok"
}

// ErrorObject is the error payload of a failed call.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response answers the request with the same ID. Exactly one of Result and
// Error is meaningful: Error is nil on success.
type Response struct {
	ID     uint64
	Result Result
	Error  *ErrorObject
}

// Err converts an error response into a *ProtocolError, or returns nil.
func (r *Response) Err() error {
	if r == nil || r.Error == nil {
		return nil
	}
	return &ProtocolError{Code: r.Error.Code, Message: r.Error.Message}
}

// Notification is an unsolicited property change pushed by the bulb. It never
// carries a correlation id.
type Notification struct {
	Method string
	Params map[string]string
}

// Envelope holds one decoded inbound line: either a Response or a
// Notification, never both.
type Envelope struct {
	Response     *Response
	Notification *Notification
}

// ProtocolError is returned when the bulb answers with an error object. The
// device's code and message are preserved verbatim.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("Error (code %d): %s", e.Code, e.Message)
}
