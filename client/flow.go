package client

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlowMode is the kind of a single color flow step.
type FlowMode int

const (
	FlowColor FlowMode = 1
	FlowCT    FlowMode = 2
	FlowSleep FlowMode = 7
)

// MinFlowStep is the shortest step duration the bulb accepts.
const MinFlowStep = 50 * time.Millisecond

// FlowTuple is one step of a color flow. Value is an RGB value for FlowColor
// or a color temperature for FlowCT and is ignored for FlowSleep. A
// Brightness of -1 leaves brightness unchanged.
type FlowTuple struct {
	Duration   time.Duration
	Mode       FlowMode
	Value      uint32
	Brightness int
}

// FlowExpression is an ordered list of flow steps.
type FlowExpression []FlowTuple

func (f FlowTuple) validate() error {
	if f.Duration < MinFlowStep {
		return fmt.Errorf("%w: flow step duration %s below %s", ErrInvalidArgument, f.Duration, MinFlowStep)
	}
	switch f.Mode {
	case FlowColor:
		if f.Value > maxRGB {
			return fmt.Errorf("%w: flow color %#x out of range", ErrInvalidArgument, f.Value)
		}
	case FlowCT:
		if f.Value < minCT || f.Value > maxCT {
			return fmt.Errorf("%w: flow color temperature %d out of range", ErrInvalidArgument, f.Value)
		}
	case FlowSleep:
	default:
		return fmt.Errorf("%w: flow mode %d", ErrInvalidArgument, f.Mode)
	}
	if f.Brightness < -1 || f.Brightness > 100 {
		return fmt.Errorf("%w: flow brightness %d out of range", ErrInvalidArgument, f.Brightness)
	}
	return nil
}

// Validate checks every step.
func (e FlowExpression) Validate() error {
	if len(e) == 0 {
		return fmt.Errorf("%w: empty flow expression", ErrInvalidArgument)
	}
	for i, t := range e {
		if err := t.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// String renders the expression in wire form: comma-joined quadruples of
// duration in milliseconds, mode, value and brightness.
func (e FlowExpression) String() string {
	parts := make([]string, 0, len(e)*4)
	for _, t := range e {
		parts = append(parts,
			strconv.FormatInt(t.Duration.Milliseconds(), 10),
			strconv.Itoa(int(t.Mode)),
			strconv.FormatUint(uint64(t.Value), 10),
			strconv.Itoa(t.Brightness),
		)
	}
	return strings.Join(parts, ",")
}

// ParseFlowExpression parses the wire form produced by String.
func ParseFlowExpression(s string) (FlowExpression, error) {
	fields := strings.Split(strings.TrimSpace(s), ",")
	if len(fields)%4 != 0 || s == "" {
		return nil, fmt.Errorf("%w: flow expression needs groups of 4 values, got %d", ErrInvalidArgument, len(fields))
	}
	expr := make(FlowExpression, 0, len(fields)/4)
	for i := 0; i < len(fields); i += 4 {
		var nums [4]int64
		for j := range nums {
			n, err := strconv.ParseInt(strings.TrimSpace(fields[i+j]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: flow value %q: %v", ErrInvalidArgument, fields[i+j], err)
			}
			nums[j] = n
		}
		if nums[2] < 0 || nums[2] > maxRGB {
			return nil, fmt.Errorf("%w: flow value %d out of range", ErrInvalidArgument, nums[2])
		}
		expr = append(expr, FlowTuple{
			Duration:   time.Duration(nums[0]) * time.Millisecond,
			Mode:       FlowMode(nums[1]),
			Value:      uint32(nums[2]),
			Brightness: int(nums[3]),
		})
	}
	if err := expr.Validate(); err != nil {
		return nil, err
	}
	return expr, nil
}
