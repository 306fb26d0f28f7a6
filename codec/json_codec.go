package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"yeectl/message"
)

// JSONCodec implements the bulb's JSON line format on top of encoding/json.
// Numbers are handled through json.Number so integer parameters keep their
// exact textual form in both directions.
type JSONCodec struct{}

type wireRequest struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type wireResponse struct {
	ID     uint64               `json:"id"`
	Result *[]string            `json:"result,omitempty"`
	Error  *message.ErrorObject `json:"error,omitempty"`
}

type wireNotification struct {
	Method string            `json:"method"`
	Params map[string]string `json:"params"`
}

// wireInbound is the union of every shape the client can receive. Pointer
// fields distinguish "absent" from "zero".
type wireInbound struct {
	ID     *uint64              `json:"id"`
	Method *string              `json:"method"`
	Params json.RawMessage      `json:"params"`
	Result *[]json.RawMessage   `json:"result"`
	Error  *message.ErrorObject `json:"error"`
}

func (c *JSONCodec) EncodeRequest(req *message.Request) ([]byte, error) {
	params := make([]any, len(req.Params))
	for i, p := range req.Params {
		n, err := normalizeParam(p)
		if err != nil {
			return nil, fmt.Errorf("%s param %d: %w", req.Method, i, err)
		}
		params[i] = n
	}
	return marshalLine(wireRequest{ID: req.ID, Method: req.Method, Params: params})
}

func (c *JSONCodec) Decode(line []byte) (*message.Envelope, error) {
	var in wireInbound
	if err := json.Unmarshal(line, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if in.ID != nil {
		resp := &message.Response{ID: *in.ID}
		switch {
		case in.Error != nil:
			resp.Error = in.Error
		case in.Result != nil:
			resp.Result = make(message.Result, len(*in.Result))
			for i, raw := range *in.Result {
				resp.Result[i] = rawText(raw)
			}
		default:
			return nil, fmt.Errorf("%w: id %d without result or error", ErrDecode, *in.ID)
		}
		return &message.Envelope{Response: resp}, nil
	}

	if in.Method != nil && *in.Method != "" {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(in.Params, &raw); err != nil || raw == nil {
			return nil, fmt.Errorf("%w: notification %q without parameter object", ErrDecode, *in.Method)
		}
		params := make(map[string]string, len(raw))
		for k, v := range raw {
			params[k] = rawText(v)
		}
		return &message.Envelope{Notification: &message.Notification{Method: *in.Method, Params: params}}, nil
	}

	return nil, fmt.Errorf("%w: neither response nor notification", ErrDecode)
}

func (c *JSONCodec) DecodeRequest(line []byte) (*message.Request, error) {
	var in struct {
		ID     *uint64 `json:"id"`
		Method string  `json:"method"`
		Params []any   `json:"params"`
	}
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if in.ID == nil || in.Method == "" {
		return nil, fmt.Errorf("%w: request without id or method", ErrDecode)
	}
	if in.Params == nil {
		in.Params = []any{}
	}
	return &message.Request{ID: *in.ID, Method: in.Method, Params: in.Params}, nil
}

func (c *JSONCodec) EncodeResponse(resp *message.Response) ([]byte, error) {
	out := wireResponse{ID: resp.ID, Error: resp.Error}
	if resp.Error == nil {
		// a success always carries a result list, even an empty one
		result := []string(resp.Result)
		if result == nil {
			result = []string{}
		}
		out.Result = &result
	}
	return marshalLine(out)
}

func (c *JSONCodec) EncodeNotification(n *message.Notification) ([]byte, error) {
	params := n.Params
	if params == nil {
		params = map[string]string{}
	}
	return marshalLine(wireNotification{Method: n.Method, Params: params})
}

// normalizeParam accepts every integer kind, integral json.Numbers and
// strings. Floats are refused: the bulb compares some values as exact text.
func normalizeParam(p any) (any, error) {
	switch v := p.(type) {
	case string:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint32:
		return uint64(v), nil
	case uint64:
		return v, nil
	case json.Number:
		if _, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return v, nil
		}
		if _, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
			return v, nil
		}
		return nil, fmt.Errorf("%w: non-integer number %s", ErrUnsupportedParam, v)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedParam, p)
	}
}

// marshalLine encodes v without HTML escaping and without the trailing
// newline json.Encoder appends.
func marshalLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// rawText returns a JSON string's value, or the compact JSON text of any
// other value.
func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
