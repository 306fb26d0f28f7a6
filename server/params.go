package server

import (
	"encoding/json"
	"strconv"
	"strings"
)

// params reads positional request parameters. Numbers arrive as json.Number.
type params []any

func (p params) int(i int) (int64, bool) {
	if i >= len(p) {
		return 0, false
	}
	switch v := p[i].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func (p params) intIn(i int, lo, hi int64) (int64, bool) {
	n, ok := p.int(i)
	return n, ok && n >= lo && n <= hi
}

func (p params) str(i int) (string, bool) {
	if i >= len(p) {
		return "", false
	}
	s, ok := p[i].(string)
	return s, ok
}

func (p params) oneOf(i int, values ...string) (string, bool) {
	s, ok := p.str(i)
	if !ok {
		return "", false
	}
	for _, v := range values {
		if s == v {
			return s, true
		}
	}
	return "", false
}

// transition validates an effect/duration pair starting at index i.
func (p params) transition(i int) bool {
	effect, ok := p.oneOf(i, "sudden", "smooth")
	if !ok {
		return false
	}
	d, ok := p.int(i + 1)
	if !ok || d < 0 {
		return false
	}
	return effect == "sudden" || d >= 30
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// numberOrString lets values split out of a flow expression go through the
// same checks as request parameters.
func numberOrString(s string) any {
	return json.Number(strings.TrimSpace(s))
}
