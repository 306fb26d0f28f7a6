package client

import (
	"fmt"
	"strings"
)

// The variant types below are the closed sets of values the bulb accepts.
// Each has String, a case-insensitive Parse function and a Values function
// listing the accepted names, in wire order.

func parseName[T ~int](kind string, names []string, s string) (T, error) {
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return T(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown %s %q (want one of %s)", ErrInvalidArgument, kind, s, strings.Join(names, ", "))
}

func nameOf(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("invalid(%d)", i)
	}
	return names[i]
}

func valid(names []string, i int) bool {
	return i >= 0 && i < len(names)
}

// Target selects which addressable unit of the bulb a command applies to.
type Target int

const (
	Main Target = iota
	Background
	Device
)

var targetNames = []string{"main", "bg", "dev"}

func (t Target) String() string            { return nameOf(targetNames, int(t)) }
func ParseTarget(s string) (Target, error) { return parseName[Target]("target", targetNames, s) }
func TargetValues() []string               { return append([]string(nil), targetNames...) }

// method returns the wire method for base on target t.
func (t Target) method(base string) string {
	switch t {
	case Background:
		return "bg_" + base
	case Device:
		return "dev_" + base
	default:
		return base
	}
}

type Power int

const (
	On Power = iota
	Off
)

var powerNames = []string{"on", "off"}

func (p Power) String() string           { return nameOf(powerNames, int(p)) }
func ParsePower(s string) (Power, error) { return parseName[Power]("power", powerNames, s) }
func PowerValues() []string              { return append([]string(nil), powerNames...) }

// Effect is the transition style; Smooth uses the supplied duration.
type Effect int

const (
	Sudden Effect = iota
	Smooth
)

var effectNames = []string{"sudden", "smooth"}

func (e Effect) String() string            { return nameOf(effectNames, int(e)) }
func ParseEffect(s string) (Effect, error) { return parseName[Effect]("effect", effectNames, s) }
func EffectValues() []string               { return append([]string(nil), effectNames...) }

// Mode is the light mode to switch to when powering on. Its wire value is
// its ordinal.
type Mode int

const (
	ModeNormal Mode = iota
	ModeCT
	ModeRGB
	ModeHSV
	ModeCF
	ModeNight
)

var modeNames = []string{"normal", "ct", "rgb", "hsv", "cf", "night"}

func (m Mode) String() string          { return nameOf(modeNames, int(m)) }
func ParseMode(s string) (Mode, error) { return parseName[Mode]("mode", modeNames, s) }
func ModeValues() []string             { return append([]string(nil), modeNames...) }

// Class is the scene type for SetScene.
type Class int

const (
	ClassColor Class = iota
	ClassHSV
	ClassCT
	ClassCF
	ClassAutoDelayOff
)

var classNames = []string{"color", "hsv", "ct", "cf", "auto_delay_off"}

func (c Class) String() string           { return nameOf(classNames, int(c)) }
func ParseClass(s string) (Class, error) { return parseName[Class]("class", classNames, s) }
func ClassValues() []string              { return append([]string(nil), classNames...) }

// Prop is an adjustable property.
type Prop int

const (
	PropBright Prop = iota
	PropCT
	PropColor
)

var propNames = []string{"bright", "ct", "color"}

func (p Prop) String() string          { return nameOf(propNames, int(p)) }
func ParseProp(s string) (Prop, error) { return parseName[Prop]("prop", propNames, s) }
func PropValues() []string             { return append([]string(nil), propNames...) }

type AdjustAction int

const (
	Increase AdjustAction = iota
	Decrease
	Circle
)

var adjustNames = []string{"increase", "decrease", "circle"}

func (a AdjustAction) String() string { return nameOf(adjustNames, int(a)) }
func ParseAdjustAction(s string) (AdjustAction, error) {
	return parseName[AdjustAction]("adjust action", adjustNames, s)
}
func AdjustActionValues() []string { return append([]string(nil), adjustNames...) }

// CfAction is what the bulb does when a color flow ends. Its wire value is
// its ordinal.
type CfAction int

const (
	CfRecover CfAction = iota
	CfStay
	CfOff
)

var cfActionNames = []string{"recover", "stay", "off"}

func (a CfAction) String() string { return nameOf(cfActionNames, int(a)) }
func ParseCfAction(s string) (CfAction, error) {
	return parseName[CfAction]("flow action", cfActionNames, s)
}
func CfActionValues() []string { return append([]string(nil), cfActionNames...) }

// MusicAction starts or stops music mode. Its wire value is its ordinal.
type MusicAction int

const (
	MusicOff MusicAction = iota
	MusicOn
)

var musicNames = []string{"off", "on"}

func (a MusicAction) String() string { return nameOf(musicNames, int(a)) }
func ParseMusicAction(s string) (MusicAction, error) {
	return parseName[MusicAction]("music action", musicNames, s)
}
func MusicActionValues() []string { return append([]string(nil), musicNames...) }

// CronType identifies a timer job. The bulb only implements power-off.
type CronType int

const (
	CronOff CronType = iota
)

var cronNames = []string{"off"}

func (c CronType) String() string { return nameOf(cronNames, int(c)) }
func ParseCronType(s string) (CronType, error) {
	return parseName[CronType]("cron type", cronNames, s)
}
func CronTypeValues() []string { return append([]string(nil), cronNames...) }

// Property is a readable bulb property for GetProp.
type Property int

const (
	PropertyPower Property = iota
	PropertyBright
	PropertyCT
	PropertyRGB
	PropertyHue
	PropertySat
	PropertyColorMode
	PropertyFlowing
	PropertyDelayOff
	PropertyFlowParams
	PropertyMusicOn
	PropertyName
	PropertyBgPower
	PropertyBgFlowing
	PropertyBgFlowParams
	PropertyBgCT
	PropertyBgLMode
	PropertyBgBright
	PropertyBgRGB
	PropertyBgHue
	PropertyBgSat
	PropertyNlBr
	PropertyActiveMode
)

var propertyNames = []string{
	"power", "bright", "ct", "rgb", "hue", "sat", "color_mode", "flowing",
	"delayoff", "flow_params", "music_on", "name", "bg_power", "bg_flowing",
	"bg_flow_params", "bg_ct", "bg_lmode", "bg_bright", "bg_rgb", "bg_hue",
	"bg_sat", "nl_br", "active_mode",
}

func (p Property) String() string { return nameOf(propertyNames, int(p)) }
func ParseProperty(s string) (Property, error) {
	return parseName[Property]("property", propertyNames, s)
}
func PropertyValues() []string { return append([]string(nil), propertyNames...) }
