package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVariants(t *testing.T) {
	e, err := ParseEffect("Smooth")
	require.NoError(t, err)
	assert.Equal(t, Smooth, e)

	m, err := ParseMode("night")
	require.NoError(t, err)
	assert.Equal(t, ModeNight, m)
	assert.Equal(t, 5, int(m), "mode is sent as its ordinal")

	a, err := ParseCfAction("off")
	require.NoError(t, err)
	assert.Equal(t, 2, int(a))

	c, err := ParseClass("auto_delay_off")
	require.NoError(t, err)
	assert.Equal(t, ClassAutoDelayOff, c)

	p, err := ParseProperty("BG_FLOW_PARAMS")
	require.NoError(t, err)
	assert.Equal(t, "bg_flow_params", p.String())

	_, err = ParseProp("volume")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "bright, ct, color")
}

func TestValuesListEveryVariant(t *testing.T) {
	for i, name := range ModeValues() {
		m, err := ParseMode(name)
		require.NoError(t, err)
		assert.Equal(t, i, int(m))
		assert.Equal(t, name, m.String())
	}
	assert.Len(t, PropertyValues(), 23)
	assert.Equal(t, []string{"main", "bg", "dev"}, TargetValues())
	assert.Equal(t, "invalid(9)", Mode(9).String())
}

func TestTargetMethod(t *testing.T) {
	assert.Equal(t, "set_rgb", Main.method("set_rgb"))
	assert.Equal(t, "bg_set_rgb", Background.method("set_rgb"))
	assert.Equal(t, "dev_toggle", Device.method("toggle"))
}

func TestFlowExpressionString(t *testing.T) {
	expr := FlowExpression{
		{Duration: 1000 * time.Millisecond, Mode: FlowColor, Value: 16711680, Brightness: 100},
		{Duration: 500 * time.Millisecond, Mode: FlowSleep, Value: 0, Brightness: -1},
	}
	assert.Equal(t, "1000,1,16711680,100,500,7,0,-1", expr.String())
	require.NoError(t, expr.Validate())
}

func TestParseFlowExpression(t *testing.T) {
	expr, err := ParseFlowExpression("1000, 2, 2700, 100, 50,1,255,10")
	require.NoError(t, err)
	assert.Equal(t, FlowExpression{
		{Duration: time.Second, Mode: FlowCT, Value: 2700, Brightness: 100},
		{Duration: 50 * time.Millisecond, Mode: FlowColor, Value: 255, Brightness: 10},
	}, expr)

	bad := []string{
		"",
		"1000,1,255",
		"1000,3,255,100",   // unknown mode
		"10,1,255,100",     // step too short
		"1000,2,1000,100",  // ct out of range
		"1000,1,255,101",   // brightness
		"1000,1,x,100",
	}
	for _, s := range bad {
		_, err := ParseFlowExpression(s)
		assert.ErrorIs(t, err, ErrInvalidArgument, s)
	}
}
