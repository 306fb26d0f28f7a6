package message

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultIsOK(t *testing.T) {
	assert.True(t, Result{"ok"}.IsOK())
	assert.False(t, Result{"on", "100"}.IsOK())
	assert.False(t, Result{}.IsOK())
	assert.False(t, Result(nil).IsOK())
}

func TestResponseErr(t *testing.T) {
	ok := &Response{ID: 1, Result: Result{"ok"}}
	assert.NoError(t, ok.Err())

	var nilResp *Response
	assert.NoError(t, nilResp.Err())

	failed := &Response{ID: 2, Error: &ErrorObject{Code: -1, Message: "invalid params"}}
	err := failed.Err()
	require.Error(t, err)

	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, -1, perr.Code)
	assert.Equal(t, "invalid params", perr.Message)
	assert.Equal(t, "Error (code -1): invalid params", err.Error())
}
