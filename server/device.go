package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"yeectl/message"
)

// Error replies sent by the emulated bulb. They match what real firmware
// sends.
var (
	errInvalidParams   = message.ErrorObject{Code: -1, Message: "invalid params"}
	errUnsupported     = message.ErrorObject{Code: -1, Message: "method not supported"}
	errQuotaExceeded   = message.ErrorObject{Code: -1, Message: "client quota exceeded"}
	errInternalFailure = message.ErrorObject{Code: -1, Message: "general error"}
)

func reply(e message.ErrorObject) *message.ErrorObject { return &e }

var okResult = message.Result{"ok"}

// color_mode values reported by the bulb.
const (
	colorModeRGB = 1
	colorModeCT  = 2
	colorModeHSV = 3
)

// light is one addressable light: the main light or the background light.
type light struct {
	prefix     string // property name prefix, "" or "bg_"
	power      bool
	bright     int64
	ct         int64
	rgb        int64
	hue        int64
	sat        int64
	colorMode  int64
	flowing    bool
	flowParams string
}

func newLight(prefix string) light {
	return light{prefix: prefix, bright: 100, ct: 4000, rgb: 0xFFFFFF, sat: 100, colorMode: colorModeCT}
}

func (l *light) props(into map[string]string) {
	p := l.prefix
	into[p+"power"] = onOff(l.power)
	into[p+"bright"] = itoa(l.bright)
	into[p+"ct"] = itoa(l.ct)
	into[p+"rgb"] = itoa(l.rgb)
	into[p+"hue"] = itoa(l.hue)
	into[p+"sat"] = itoa(l.sat)
	into[p+"flowing"] = bit(l.flowing)
	into[p+"flow_params"] = l.flowParams
	if p == "" {
		into["color_mode"] = itoa(l.colorMode)
	} else {
		into[p+"lmode"] = itoa(l.colorMode)
	}
}

// Device is the emulated bulb state. Every method call is applied under one
// lock, and the returned change set is what the bulb would announce in a
// props notification.
type Device struct {
	mu         sync.Mutex
	main       light
	bg         light
	defaults   [2]light
	name       string
	musicOn    bool
	nlBright   int64
	activeMode int64
	offAt      time.Time
	timer      *time.Timer
	timerGen   uint64
	now        func() time.Time

	// onTimer receives the changes made when a power-off timer fires.
	onTimer func(changes map[string]string)
}

// NewDevice returns a bulb that is off, at full brightness and 4000K.
func NewDevice() *Device {
	d := &Device{main: newLight(""), bg: newLight("bg_"), nlBright: 1, now: time.Now}
	d.defaults = [2]light{d.main, d.bg}
	return d
}

// Props returns every property with its current value.
func (d *Device) Props() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.propsLocked()
}

func (d *Device) propsLocked() map[string]string {
	m := make(map[string]string, 24)
	d.main.props(m)
	d.bg.props(m)
	m["name"] = d.name
	m["music_on"] = bit(d.musicOn)
	m["nl_br"] = itoa(d.nlBright)
	m["active_mode"] = itoa(d.activeMode)
	m["delayoff"] = itoa(d.delayOffLocked())
	return m
}

func (d *Device) delayOffLocked() int64 {
	if d.offAt.IsZero() {
		return 0
	}
	left := d.offAt.Sub(d.now())
	if left <= 0 {
		return 0
	}
	// the bulb rounds remaining minutes up
	return int64((left + time.Minute - 1) / time.Minute)
}

// Apply executes method with p and returns the result, the properties that
// changed, or the error reply.
func (d *Device) Apply(method string, p []any) (message.Result, map[string]string, *message.ErrorObject) {
	d.mu.Lock()
	defer d.mu.Unlock()

	before := d.propsLocked()
	res, e := d.applyLocked(method, params(p))
	if e != nil {
		return nil, nil, e
	}
	return res, diff(before, d.propsLocked()), nil
}

func (d *Device) applyLocked(method string, p params) (message.Result, *message.ErrorObject) {
	switch {
	case method == "dev_toggle":
		if len(p) != 0 {
			return nil, reply(errInvalidParams)
		}
		on := !(d.main.power || d.bg.power)
		d.main.power, d.bg.power = on, on
		return okResult, nil
	case strings.HasPrefix(method, "bg_"):
		return d.applyLight(&d.bg, 1, strings.TrimPrefix(method, "bg_"), p)
	}

	switch method {
	case "set_name":
		name, valid := p.str(0)
		if !valid || len(p) != 1 {
			return nil, reply(errInvalidParams)
		}
		d.name = name
		return okResult, nil
	case "get_prop":
		if len(p) == 0 {
			return nil, reply(errInvalidParams)
		}
		all := d.propsLocked()
		res := make(message.Result, len(p))
		for i := range p {
			name, valid := p.str(i)
			if !valid {
				return nil, reply(errInvalidParams)
			}
			res[i] = all[name]
		}
		return res, nil
	case "set_music":
		action, valid := p.intIn(0, 0, 1)
		if !valid {
			return nil, reply(errInvalidParams)
		}
		if action == 1 {
			if _, valid := p.str(1); !valid {
				return nil, reply(errInvalidParams)
			}
			if _, valid := p.intIn(2, 1, 65535); !valid {
				return nil, reply(errInvalidParams)
			}
		}
		d.musicOn = action == 1
		return okResult, nil
	case "cron_add":
		minutes, valid := p.intIn(1, 1, 24*60)
		if _, typeOK := p.intIn(0, 0, 0); !typeOK || !valid {
			return nil, reply(errInvalidParams)
		}
		d.scheduleOffLocked(time.Duration(minutes) * time.Minute)
		return okResult, nil
	case "cron_get":
		if _, valid := p.intIn(0, 0, 0); !valid {
			return nil, reply(errInvalidParams)
		}
		left := d.delayOffLocked()
		if left == 0 {
			return message.Result{}, nil
		}
		return message.Result{fmt.Sprintf(`{"type":0,"delay":%d,"mix":0}`, left)}, nil
	case "cron_del":
		if _, valid := p.intIn(0, 0, 0); !valid {
			return nil, reply(errInvalidParams)
		}
		d.cancelOffLocked()
		return okResult, nil
	}
	return d.applyLight(&d.main, 0, method, p)
}

// applyLight handles the methods that exist for both lights. slot indexes
// the saved defaults.
func (d *Device) applyLight(l *light, slot int, method string, p params) (message.Result, *message.ErrorObject) {
	switch method {
	case "set_power":
		power, valid := p.oneOf(0, "on", "off")
		if !valid || len(p) < 3 || len(p) > 4 || !p.transition(1) {
			return nil, reply(errInvalidParams)
		}
		if len(p) == 4 {
			mode, valid := p.intIn(3, 0, 5)
			if !valid {
				return nil, reply(errInvalidParams)
			}
			d.enterModeLocked(l, mode)
		}
		l.power = power == "on"
	case "toggle":
		if len(p) != 0 {
			return nil, reply(errInvalidParams)
		}
		l.power = !l.power
	case "set_ct_abx":
		ct, valid := p.intIn(0, 1700, 6500)
		if !valid || len(p) != 3 || !p.transition(1) {
			return nil, reply(errInvalidParams)
		}
		l.ct, l.colorMode = ct, colorModeCT
	case "set_rgb":
		rgb, valid := p.intIn(0, 0, 0xFFFFFF)
		if !valid || len(p) != 3 || !p.transition(1) {
			return nil, reply(errInvalidParams)
		}
		l.rgb, l.colorMode = rgb, colorModeRGB
	case "set_hsv":
		hue, hueOK := p.intIn(0, 0, 359)
		sat, satOK := p.intIn(1, 0, 100)
		if !hueOK || !satOK || len(p) != 4 || !p.transition(2) {
			return nil, reply(errInvalidParams)
		}
		l.hue, l.sat, l.colorMode = hue, sat, colorModeHSV
	case "set_bright":
		bright, valid := p.intIn(0, 1, 100)
		if !valid || len(p) != 3 || !p.transition(1) {
			return nil, reply(errInvalidParams)
		}
		l.bright = bright
	case "set_scene":
		if !d.sceneLocked(l, p) {
			return nil, reply(errInvalidParams)
		}
	case "set_default":
		if len(p) != 0 {
			return nil, reply(errInvalidParams)
		}
		d.defaults[slot] = *l
	case "start_cf":
		_, countOK := p.intIn(0, 0, 1<<31-1)
		_, actionOK := p.intIn(1, 0, 2)
		expr, exprOK := p.str(2)
		if !countOK || !actionOK || !exprOK || len(p) != 3 || !validFlow(expr) {
			return nil, reply(errInvalidParams)
		}
		l.flowing, l.flowParams, l.power = true, expr, true
	case "stop_cf":
		if len(p) != 0 {
			return nil, reply(errInvalidParams)
		}
		l.flowing, l.flowParams = false, ""
	case "set_adjust":
		action, actionOK := p.oneOf(0, "increase", "decrease", "circle")
		prop, propOK := p.oneOf(1, "bright", "ct", "color")
		if !actionOK || !propOK || len(p) != 2 || (prop == "color" && action != "circle") {
			return nil, reply(errInvalidParams)
		}
		adjustStep(l, action, prop)
	case "adjust_bright", "adjust_ct", "adjust_color":
		percent, valid := p.intIn(0, -100, 100)
		if dur, durOK := p.int(1); !valid || !durOK || dur < 0 || len(p) != 2 {
			return nil, reply(errInvalidParams)
		}
		adjustPercent(l, strings.TrimPrefix(method, "adjust_"), percent)
	default:
		return nil, reply(errUnsupported)
	}
	return okResult, nil
}

func (d *Device) enterModeLocked(l *light, mode int64) {
	switch mode {
	case 1:
		l.colorMode = colorModeCT
	case 2:
		l.colorMode = colorModeRGB
	case 3:
		l.colorMode = colorModeHSV
	case 4:
		l.flowing = true
	}
	if l == &d.main {
		if mode == 5 {
			d.activeMode = 1
		} else {
			d.activeMode = 0
		}
	}
}

func (d *Device) sceneLocked(l *light, p params) bool {
	class, valid := p.oneOf(0, "color", "hsv", "ct", "cf", "auto_delay_off")
	if !valid || len(p) < 2 || len(p) > 4 {
		return false
	}
	switch class {
	case "color":
		rgb, rgbOK := p.intIn(1, 0, 0xFFFFFF)
		bright, brightOK := p.intIn(2, 1, 100)
		if !rgbOK || !brightOK {
			return false
		}
		l.rgb, l.bright, l.colorMode = rgb, bright, colorModeRGB
	case "hsv":
		hue, hueOK := p.intIn(1, 0, 359)
		sat, satOK := p.intIn(2, 0, 100)
		bright, brightOK := p.intIn(3, 1, 100)
		if !hueOK || !satOK || !brightOK {
			return false
		}
		l.hue, l.sat, l.bright, l.colorMode = hue, sat, bright, colorModeHSV
	case "ct":
		ct, ctOK := p.intIn(1, 1700, 6500)
		bright, brightOK := p.intIn(2, 1, 100)
		if !ctOK || !brightOK {
			return false
		}
		l.ct, l.bright, l.colorMode = ct, bright, colorModeCT
	case "cf":
		_, countOK := p.intIn(1, 0, 1<<31-1)
		_, actionOK := p.intIn(2, 0, 2)
		expr, exprOK := p.str(3)
		if !countOK || !actionOK || !exprOK || !validFlow(expr) {
			return false
		}
		l.flowing, l.flowParams = true, expr
	case "auto_delay_off":
		bright, brightOK := p.intIn(1, 1, 100)
		minutes, minOK := p.intIn(2, 1, 24*60)
		if !brightOK || !minOK || l != &d.main {
			return false
		}
		l.bright = bright
		d.scheduleOffLocked(time.Duration(minutes) * time.Minute)
	}
	l.power = true
	return true
}

func (d *Device) scheduleOffLocked(after time.Duration) {
	d.cancelOffLocked()
	d.timerGen++
	gen := d.timerGen
	d.offAt = d.now().Add(after)
	d.timer = time.AfterFunc(after, func() { d.fireTimer(gen) })
}

func (d *Device) cancelOffLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.offAt = time.Time{}
}

func (d *Device) fireTimer(gen uint64) {
	d.mu.Lock()
	if gen != d.timerGen || d.timer == nil {
		// cancelled or replaced while waiting for the lock
		d.mu.Unlock()
		return
	}
	before := d.propsLocked()
	d.main.power = false
	d.timer, d.offAt = nil, time.Time{}
	changes := diff(before, d.propsLocked())
	cb := d.onTimer
	d.mu.Unlock()

	if cb != nil && len(changes) > 0 {
		cb(changes)
	}
}

// stop cancels a pending power-off timer.
func (d *Device) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelOffLocked()
}

func adjustStep(l *light, action, prop string) {
	step := int64(10)
	if action == "decrease" {
		step = -step
	}
	switch prop {
	case "bright":
		if action == "circle" {
			l.bright = l.bright%100 + 10
			if l.bright > 100 {
				l.bright = 100
			}
			return
		}
		l.bright = clamp(l.bright+step, 1, 100)
	case "ct":
		if action == "circle" {
			l.ct += 500
			if l.ct > 6500 {
				l.ct = 1700
			}
			return
		}
		l.ct = clamp(l.ct+step*50, 1700, 6500)
	case "color":
		l.hue = (l.hue + 60) % 360
		l.colorMode = colorModeHSV
	}
}

func adjustPercent(l *light, prop string, percent int64) {
	switch prop {
	case "bright":
		l.bright = clamp(l.bright+percent, 1, 100)
	case "ct":
		l.ct = clamp(l.ct+percent*(6500-1700)/100, 1700, 6500)
	case "color":
		l.hue = ((l.hue+percent*360/100)%360 + 360) % 360
		l.colorMode = colorModeHSV
	}
}

// validFlow checks a flow expression: comma-separated quadruples of
// duration (>= 50ms), mode (1, 2 or 7), value and brightness (-1..100).
func validFlow(expr string) bool {
	fields := strings.Split(expr, ",")
	if expr == "" || len(fields)%4 != 0 {
		return false
	}
	for i := 0; i < len(fields); i += 4 {
		q := make(params, 4)
		for j := range q {
			q[j] = numberOrString(fields[i+j])
		}
		if _, valid := q.intIn(0, 50, 1<<31-1); !valid {
			return false
		}
		mode, valid := q.int(1)
		if !valid || (mode != 1 && mode != 2 && mode != 7) {
			return false
		}
		if _, valid := q.intIn(2, 0, 0xFFFFFF); !valid {
			return false
		}
		if _, valid := q.intIn(3, -1, 100); !valid {
			return false
		}
	}
	return true
}

func diff(before, after map[string]string) map[string]string {
	changes := make(map[string]string)
	for k, v := range after {
		if before[k] != v {
			changes[k] = v
		}
	}
	return changes
}

func clamp(v, lo, hi int64) int64 {
	return max(lo, min(v, hi))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func bit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
