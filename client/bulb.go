// Package client is the typed façade over a bulb connection.
//
// Each Bulb method validates its arguments, builds the wire method name for the
// requested target and sends one request through the middleware chain. Results
// are returned as the bulb sent them; error responses come back as
// *message.ProtocolError.
package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"yeectl/message"
	"yeectl/metrics"
	"yeectl/middleware"
	"yeectl/transport"
)

// MinSmoothDuration is the shortest transition the bulb accepts for Smooth.
const MinSmoothDuration = 30 * time.Millisecond

const (
	minCT  = 1700
	maxCT  = 6500
	maxRGB = 0xFFFFFF
)

// Bulb controls one bulb over a single connection. It is safe for concurrent
// use.
type Bulb struct {
	transport *transport.ClientTransport
	invoke    middleware.Invoker
}

// Connect dials the bulb at address:port.
func Connect(ctx context.Context, address string, port uint16, opts ...Option) (*Bulb, error) {
	o := buildOptions(opts)
	t, err := transport.Dial(ctx, address, port, o.transportOptions()...)
	if err != nil {
		return nil, err
	}
	return newBulb(t, o), nil
}

// New wraps an open transport. Transport options passed here are ignored.
func New(t *transport.ClientTransport, opts ...Option) *Bulb {
	return newBulb(t, buildOptions(opts))
}

func newBulb(t *transport.ClientTransport, o options) *Bulb {
	base := func(ctx context.Context, req *message.Request) (*message.Response, error) {
		return t.Call(ctx, req.Method, req.Params)
	}
	return &Bulb{
		transport: t,
		invoke:    middleware.Chain(o.middlewares()...)(base),
	}
}

func (b *Bulb) call(ctx context.Context, method string, params ...any) (message.Result, error) {
	// a closed connection fails fast, before any middleware can wait
	select {
	case <-b.transport.Done():
		return nil, fmt.Errorf("%w: %s: %v", transport.ErrDisconnected, method, b.transport.Err())
	default:
	}
	if params == nil {
		params = []any{}
	}
	resp, err := b.invoke(ctx, &message.Request{Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// targeted returns the wire method for base on target, or
// ErrUnsupportedTarget when base has no variant for it.
func targeted(target Target, base string, allowed ...Target) (string, error) {
	for _, a := range allowed {
		if a == target {
			return target.method(base), nil
		}
	}
	return "", fmt.Errorf("%w: %s has no %s variant", ErrUnsupportedTarget, base, target)
}

// lights are the targets most commands accept.
var lights = []Target{Main, Background}

func transition(effect Effect, d time.Duration) (string, int64, error) {
	if !valid(effectNames, int(effect)) {
		return "", 0, fmt.Errorf("%w: effect %d", ErrInvalidArgument, effect)
	}
	if d < 0 {
		return "", 0, fmt.Errorf("%w: negative duration %s", ErrInvalidArgument, d)
	}
	if effect == Smooth && d < MinSmoothDuration {
		d = MinSmoothDuration
	}
	return effect.String(), d.Milliseconds(), nil
}

// SetPower switches the light on or off, optionally entering mode.
func (b *Bulb) SetPower(ctx context.Context, target Target, power Power, effect Effect, d time.Duration, mode Mode) (message.Result, error) {
	method, err := targeted(target, "set_power", lights...)
	if err != nil {
		return nil, err
	}
	if !valid(powerNames, int(power)) || !valid(modeNames, int(mode)) {
		return nil, fmt.Errorf("%w: power %d mode %d", ErrInvalidArgument, power, mode)
	}
	eff, ms, err := transition(effect, d)
	if err != nil {
		return nil, err
	}
	return b.call(ctx, method, power.String(), eff, ms, int(mode))
}

// Toggle flips the power state. Device toggles both lights.
func (b *Bulb) Toggle(ctx context.Context, target Target) (message.Result, error) {
	method, err := targeted(target, "toggle", Main, Background, Device)
	if err != nil {
		return nil, err
	}
	return b.call(ctx, method)
}

// SetCT sets the color temperature in Kelvin.
func (b *Bulb) SetCT(ctx context.Context, target Target, ct uint32, effect Effect, d time.Duration) (message.Result, error) {
	method, err := targeted(target, "set_ct_abx", lights...)
	if err != nil {
		return nil, err
	}
	if ct < minCT || ct > maxCT {
		return nil, fmt.Errorf("%w: color temperature %d not in %d..%d", ErrInvalidArgument, ct, minCT, maxCT)
	}
	eff, ms, err := transition(effect, d)
	if err != nil {
		return nil, err
	}
	return b.call(ctx, method, ct, eff, ms)
}

// SetRGB sets the color as 0xRRGGBB.
func (b *Bulb) SetRGB(ctx context.Context, target Target, rgb uint32, effect Effect, d time.Duration) (message.Result, error) {
	method, err := targeted(target, "set_rgb", lights...)
	if err != nil {
		return nil, err
	}
	if rgb > maxRGB {
		return nil, fmt.Errorf("%w: rgb %#x exceeds %#x", ErrInvalidArgument, rgb, maxRGB)
	}
	eff, ms, err := transition(effect, d)
	if err != nil {
		return nil, err
	}
	return b.call(ctx, method, rgb, eff, ms)
}

// SetHSV sets hue (0..359) and saturation (0..100).
func (b *Bulb) SetHSV(ctx context.Context, target Target, hue, sat uint16, effect Effect, d time.Duration) (message.Result, error) {
	method, err := targeted(target, "set_hsv", lights...)
	if err != nil {
		return nil, err
	}
	if hue > 359 || sat > 100 {
		return nil, fmt.Errorf("%w: hue %d sat %d", ErrInvalidArgument, hue, sat)
	}
	eff, ms, err := transition(effect, d)
	if err != nil {
		return nil, err
	}
	return b.call(ctx, method, hue, sat, eff, ms)
}

// SetBright sets brightness in percent (1..100).
func (b *Bulb) SetBright(ctx context.Context, target Target, bright uint8, effect Effect, d time.Duration) (message.Result, error) {
	method, err := targeted(target, "set_bright", lights...)
	if err != nil {
		return nil, err
	}
	if bright < 1 || bright > 100 {
		return nil, fmt.Errorf("%w: brightness %d not in 1..100", ErrInvalidArgument, bright)
	}
	eff, ms, err := transition(effect, d)
	if err != nil {
		return nil, err
	}
	return b.call(ctx, method, bright, eff, ms)
}

// SetName stores a name on the device.
func (b *Bulb) SetName(ctx context.Context, name string) (message.Result, error) {
	return b.call(ctx, "set_name", name)
}

// SetScene sets the light directly into a state. The meaning of vals depends
// on class; the bulb takes between one and three.
func (b *Bulb) SetScene(ctx context.Context, target Target, class Class, vals ...uint64) (message.Result, error) {
	method, err := targeted(target, "set_scene", lights...)
	if err != nil {
		return nil, err
	}
	if !valid(classNames, int(class)) {
		return nil, fmt.Errorf("%w: scene class %d", ErrInvalidArgument, class)
	}
	if len(vals) < 1 || len(vals) > 3 {
		return nil, fmt.Errorf("%w: scene takes 1 to 3 values, got %d", ErrInvalidArgument, len(vals))
	}
	params := make([]any, 0, len(vals)+1)
	params = append(params, class.String())
	for _, v := range vals {
		params = append(params, v)
	}
	return b.call(ctx, method, params...)
}

// SetDefault saves the current state as the power-on default.
func (b *Bulb) SetDefault(ctx context.Context, target Target) (message.Result, error) {
	method, err := targeted(target, "set_default", lights...)
	if err != nil {
		return nil, err
	}
	return b.call(ctx, method)
}

// GetProp reads properties. The result holds one value per property, in
// order; the bulb reports unknown properties as "".
func (b *Bulb) GetProp(ctx context.Context, props ...Property) (message.Result, error) {
	if len(props) == 0 {
		return nil, fmt.Errorf("%w: no properties requested", ErrInvalidArgument)
	}
	params := make([]any, 0, len(props))
	for _, p := range props {
		if !valid(propertyNames, int(p)) {
			return nil, fmt.Errorf("%w: property %d", ErrInvalidArgument, p)
		}
		params = append(params, p.String())
	}
	return b.call(ctx, "get_prop", params...)
}

// StartCF starts a color flow. A count of 0 runs it forever.
func (b *Bulb) StartCF(ctx context.Context, target Target, count uint32, action CfAction, expr FlowExpression) (message.Result, error) {
	method, err := targeted(target, "start_cf", lights...)
	if err != nil {
		return nil, err
	}
	if !valid(cfActionNames, int(action)) {
		return nil, fmt.Errorf("%w: flow action %d", ErrInvalidArgument, action)
	}
	if err := expr.Validate(); err != nil {
		return nil, err
	}
	return b.call(ctx, method, count, int(action), expr.String())
}

// StopCF stops a running color flow.
func (b *Bulb) StopCF(ctx context.Context, target Target) (message.Result, error) {
	method, err := targeted(target, "stop_cf", lights...)
	if err != nil {
		return nil, err
	}
	return b.call(ctx, method)
}

// SetAdjust nudges prop without knowing its current value. PropColor only
// accepts Circle.
func (b *Bulb) SetAdjust(ctx context.Context, target Target, action AdjustAction, prop Prop) (message.Result, error) {
	method, err := targeted(target, "set_adjust", lights...)
	if err != nil {
		return nil, err
	}
	if !valid(adjustNames, int(action)) || !valid(propNames, int(prop)) {
		return nil, fmt.Errorf("%w: adjust %d %d", ErrInvalidArgument, action, prop)
	}
	if prop == PropColor && action != Circle {
		return nil, fmt.Errorf("%w: color only supports %s", ErrInvalidArgument, Circle)
	}
	return b.call(ctx, method, action.String(), prop.String())
}

// AdjustPercent changes prop by percent (-100..100) over d.
func (b *Bulb) AdjustPercent(ctx context.Context, target Target, prop Prop, percent int8, d time.Duration) (message.Result, error) {
	if !valid(propNames, int(prop)) {
		return nil, fmt.Errorf("%w: prop %d", ErrInvalidArgument, prop)
	}
	method, err := targeted(target, "adjust_"+prop.String(), lights...)
	if err != nil {
		return nil, err
	}
	if percent < -100 || percent > 100 {
		return nil, fmt.Errorf("%w: percent %d not in -100..100", ErrInvalidArgument, percent)
	}
	if d < 0 {
		return nil, fmt.Errorf("%w: negative duration %s", ErrInvalidArgument, d)
	}
	return b.call(ctx, method, percent, d.Milliseconds())
}

// SetMusic starts or stops music mode. When starting, the bulb connects to
// host:port and then accepts commands there without a quota.
func (b *Bulb) SetMusic(ctx context.Context, action MusicAction, host string, port uint16) (message.Result, error) {
	switch action {
	case MusicOn:
		if host == "" || port == 0 {
			return nil, fmt.Errorf("%w: music mode needs host and port", ErrInvalidArgument)
		}
		return b.call(ctx, "set_music", int(action), host, port)
	case MusicOff:
		return b.call(ctx, "set_music", int(action))
	default:
		return nil, fmt.Errorf("%w: music action %d", ErrInvalidArgument, action)
	}
}

// CronAdd schedules a job minutes from now.
func (b *Bulb) CronAdd(ctx context.Context, typ CronType, minutes uint64) (message.Result, error) {
	if !valid(cronNames, int(typ)) {
		return nil, fmt.Errorf("%w: cron type %d", ErrInvalidArgument, typ)
	}
	if minutes == 0 {
		return nil, fmt.Errorf("%w: timer needs at least one minute", ErrInvalidArgument)
	}
	return b.call(ctx, "cron_add", int(typ), minutes)
}

// CronGet returns the scheduled job of typ as JSON text.
func (b *Bulb) CronGet(ctx context.Context, typ CronType) (message.Result, error) {
	if !valid(cronNames, int(typ)) {
		return nil, fmt.Errorf("%w: cron type %d", ErrInvalidArgument, typ)
	}
	return b.call(ctx, "cron_get", int(typ))
}

// CronDel cancels the scheduled job of typ.
func (b *Bulb) CronDel(ctx context.Context, typ CronType) (message.Result, error) {
	if !valid(cronNames, int(typ)) {
		return nil, fmt.Errorf("%w: cron type %d", ErrInvalidArgument, typ)
	}
	return b.call(ctx, "cron_del", int(typ))
}

// Subscribe returns the notification subscription, superseding any earlier
// one on this connection.
func (b *Bulb) Subscribe() (*transport.Subscription, error) {
	return b.transport.Subscribe()
}

// Close disconnects. Pending calls fail with transport.ErrDisconnected.
func (b *Bulb) Close() error {
	return b.transport.Close()
}

// Done is closed when the connection ends.
func (b *Bulb) Done() <-chan struct{} {
	return b.transport.Done()
}

// Transport exposes the underlying connection.
func (b *Bulb) Transport() *transport.ClientTransport {
	return b.transport
}

// Option configures a Bulb.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	extra      []middleware.Middleware
	timeout    time.Duration
	perMinute  float64
	burst      int
	collector  *metrics.Collector
	transports []transport.Option
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// middlewares orders the chain so that logging and metrics see the whole call
// including time spent waiting for the rate limiter.
func (o options) middlewares() []middleware.Middleware {
	chain := []middleware.Middleware{middleware.Logging(o.logger)}
	if o.collector != nil {
		chain = append(chain, middleware.Metrics(o.collector))
	}
	if o.timeout > 0 {
		chain = append(chain, middleware.Timeout(o.timeout))
	}
	if o.perMinute > 0 {
		chain = append(chain, middleware.RateLimit(o.perMinute, o.burst))
	}
	return append(chain, o.extra...)
}

func (o options) transportOptions() []transport.Option {
	opts := []transport.Option{transport.WithLogger(o.logger)}
	if o.collector != nil {
		opts = append(opts, transport.WithObserver(o.collector))
	}
	return append(opts, o.transports...)
}

// WithLogger sets the logger for the bulb and, via Connect, its transport.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMiddleware appends middlewares after the built-in ones.
func WithMiddleware(m ...middleware.Middleware) Option {
	return func(o *options) { o.extra = append(o.extra, m...) }
}

// WithTimeout bounds every call. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRateLimit keeps the client under the bulb's command quota.
func WithRateLimit(perMinute float64, burst int) Option {
	return func(o *options) {
		o.perMinute = perMinute
		o.burst = burst
	}
}

// WithMetrics records calls and notifications in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithTransportOptions passes options through to transport.Dial.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) { o.transports = append(o.transports, opts...) }
}
