package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yeectl/message"
)

func TestEncodeRequest(t *testing.T) {
	c := New()

	line, err := c.EncodeRequest(&message.Request{ID: 1, Method: "toggle"})
	require.NoError(t, err)
	assert.Equal(t, `{"id":1,"method":"toggle","params":[]}`, string(line))

	line, err = c.EncodeRequest(&message.Request{
		ID:     2,
		Method: "set_ct_abx",
		Params: []any{uint16(4000), "smooth", 500},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"id":2,"method":"set_ct_abx","params":[4000,"smooth",500]}`, string(line))
}

func TestEncodeRequestEscapesStrings(t *testing.T) {
	c := New()

	name := "living \"room\"\r\nlamp <1> & co"
	line, err := c.EncodeRequest(&message.Request{ID: 7, Method: "set_name", Params: []any{name}})
	require.NoError(t, err)

	assert.False(t, bytes.ContainsAny(line, "\r\n"), "encoded line must not contain terminators: %q", line)

	req, err := c.DecodeRequest(line)
	require.NoError(t, err)
	assert.Equal(t, []any{name}, req.Params)
}

func TestEncodeRequestRejectsFloats(t *testing.T) {
	c := New()

	_, err := c.EncodeRequest(&message.Request{ID: 1, Method: "set_bright", Params: []any{50.5}})
	assert.True(t, errors.Is(err, ErrUnsupportedParam))

	_, err = c.EncodeRequest(&message.Request{ID: 1, Method: "set_bright", Params: []any{json.Number("1.5")}})
	assert.True(t, errors.Is(err, ErrUnsupportedParam))

	_, err = c.EncodeRequest(&message.Request{ID: 1, Method: "set_bright", Params: []any{true}})
	assert.True(t, errors.Is(err, ErrUnsupportedParam))
}

func TestRequestRoundTrip(t *testing.T) {
	c := New()

	cases := []*message.Request{
		{ID: 1, Method: "toggle", Params: []any{}},
		{ID: 2, Method: "set_rgb", Params: []any{uint32(0xFFFFFF), "sudden", uint64(30)}},
		{ID: 3, Method: "start_cf", Params: []any{uint8(4), uint8(2), "1000,2,2700,100,500,1,255,10"}},
		{ID: 4, Method: "adjust_bright", Params: []any{int8(-100), uint64(500)}},
		{ID: 18446744073709551615, Method: "cron_add", Params: []any{uint64(18446744073709551615)}},
	}

	for _, want := range cases {
		line, err := c.EncodeRequest(want)
		require.NoError(t, err)

		got, err := c.DecodeRequest(line)
		require.NoError(t, err)

		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Method, got.Method)
		require.Len(t, got.Params, len(want.Params))
		for i, p := range want.Params {
			switch v := p.(type) {
			case string:
				assert.Equal(t, v, got.Params[i])
			default:
				n, ok := got.Params[i].(json.Number)
				require.True(t, ok, "param %d decoded as %T", i, got.Params[i])
				assert.Equal(t, jsonText(t, v), n.String())
			}
		}
	}
}

func TestDecodeResponse(t *testing.T) {
	c := New()

	env, err := c.Decode([]byte(`{"id":1,"result":["ok"]}`))
	require.NoError(t, err)
	require.NotNil(t, env.Response)
	assert.Nil(t, env.Notification)
	assert.Equal(t, uint64(1), env.Response.ID)
	assert.Equal(t, message.Result{"ok"}, env.Response.Result)
	assert.Nil(t, env.Response.Error)

	env, err = c.Decode([]byte(`{"id":2,"error":{"code":-1,"message":"invalid params"}}`))
	require.NoError(t, err)
	require.NotNil(t, env.Response)
	assert.Equal(t, &message.ErrorObject{Code: -1, Message: "invalid params"}, env.Response.Error)

	env, err = c.Decode([]byte(`{"id":3,"result":[{"type": 0, "delay": 15, "mix": 0}, 42]}`))
	require.NoError(t, err)
	assert.Equal(t, message.Result{`{"type":0,"delay":15,"mix":0}`, "42"}, env.Response.Result)

	env, err = c.Decode([]byte(`{"id":4,"result":[]}`))
	require.NoError(t, err)
	assert.Empty(t, env.Response.Result)
}

func TestDecodeNotification(t *testing.T) {
	c := New()

	env, err := c.Decode([]byte(`{"method":"props","params":{"power":"on","bright":10}}`))
	require.NoError(t, err)
	assert.Nil(t, env.Response)
	require.NotNil(t, env.Notification)
	assert.Equal(t, message.MethodProps, env.Notification.Method)
	assert.Equal(t, map[string]string{"power": "on", "bright": "10"}, env.Notification.Params)
}

func TestDecodeMalformed(t *testing.T) {
	c := New()

	lines := []string{
		``,
		`not json`,
		`{"id":1}`,
		`{"id":"1","result":["ok"]}`,
		`{"id":1,"result":null}`,
		`{"method":"props"}`,
		`{"method":"props","params":["on"]}`,
		`{"result":["ok"]}`,
		`[1,2,3]`,
	}
	for _, l := range lines {
		_, err := c.Decode([]byte(l))
		assert.True(t, errors.Is(err, ErrDecode), "line %q: got %v", l, err)
	}
}

func TestEncodeResponseAndNotification(t *testing.T) {
	c := New()

	line, err := c.EncodeResponse(&message.Response{ID: 5, Result: message.Result{"on", "100"}})
	require.NoError(t, err)
	assert.Equal(t, `{"id":5,"result":["on","100"]}`, string(line))

	line, err = c.EncodeResponse(&message.Response{ID: 6})
	require.NoError(t, err)
	assert.Equal(t, `{"id":6,"result":[]}`, string(line))
	env, err := c.Decode(line)
	require.NoError(t, err)
	require.NotNil(t, env.Response)
	assert.Empty(t, env.Response.Result)
	assert.NoError(t, env.Response.Err())

	line, err = c.EncodeResponse(&message.Response{ID: 6, Result: message.Result{}})
	require.NoError(t, err)
	assert.Equal(t, `{"id":6,"result":[]}`, string(line))

	line, err = c.EncodeResponse(&message.Response{ID: 7, Error: &message.ErrorObject{Code: -1, Message: "method not supported"}})
	require.NoError(t, err)
	assert.Equal(t, `{"id":7,"error":{"code":-1,"message":"method not supported"}}`, string(line))

	line, err = c.EncodeNotification(&message.Notification{Method: message.MethodProps, Params: map[string]string{"power": "off"}})
	require.NoError(t, err)
	assert.Equal(t, `{"method":"props","params":{"power":"off"}}`, string(line))

	env, err = c.Decode(line)
	require.NoError(t, err)
	assert.Equal(t, "off", env.Notification.Params["power"])
}

func jsonText(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
