package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"yeectl/client"
	"yeectl/message"
)

// bulbFunc performs one bulb call.
type bulbFunc func(ctx context.Context, b *client.Bulb) (message.Result, error)

// do connects, runs fn and prints its result.
func (a *app) do(cmd *cobra.Command, fn bulbFunc) error {
	b, release, err := a.connect(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	res, err := fn(cmd.Context(), b)
	if err != nil {
		return err
	}
	a.printResult(res)
	return nil
}

// transitionFlags holds the -e/-d pair shared by several commands.
type transitionFlags struct {
	effect   string
	duration uint64
}

func (t *transitionFlags) register(cmd *cobra.Command, persistent bool) {
	f := cmd.Flags()
	if persistent {
		f = cmd.PersistentFlags()
	}
	f.StringVarP(&t.effect, "effect", "e", "smooth", "transition effect, one of: ["+strings.Join(client.EffectValues(), ",")+"]")
	f.Uint64VarP(&t.duration, "duration", "d", 500, "transition duration in milliseconds")
}

func (t *transitionFlags) parse() (client.Effect, time.Duration, error) {
	e, err := client.ParseEffect(t.effect)
	return e, time.Duration(t.duration) * time.Millisecond, err
}

func target(bg bool) client.Target {
	if bg {
		return client.Background
	}
	return client.Main
}

func (a *app) bulbCommands() []*cobra.Command {
	return []*cobra.Command{
		a.getCommand(),
		a.toggleCommand(),
		a.powerCommand(client.On),
		a.powerCommand(client.Off),
		a.timerCommand(),
		{
			Use:   "timer-clear",
			Short: "Clear the current timer",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
					return b.CronDel(ctx, client.CronOff)
				})
			},
		},
		{
			Use:   "timer-get",
			Short: "Get the remaining minutes of the timer",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
					return b.CronGet(ctx, client.CronOff)
				})
			},
		},
		a.setCommand(),
		a.flowCommand(),
		a.flowStopCommand(),
		a.adjustCommand(),
		a.adjustPercentCommand(),
		{
			Use:   "music-connect <host> <port>",
			Short: "Make the bulb connect to a music TCP stream",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				port, err := strconv.ParseUint(args[1], 10, 16)
				if err != nil {
					return fmt.Errorf("invalid port %q", args[1])
				}
				return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
					return b.SetMusic(ctx, client.MusicOn, args[0], uint16(port))
				})
			},
		},
		{
			Use:   "music-stop",
			Short: "Stop music mode",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
					return b.SetMusic(ctx, client.MusicOff, "", 0)
				})
			},
		},
	}
}

func (a *app) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "get <property>...",
		Short:     "Get properties",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: client.PropertyValues(),
		RunE: func(cmd *cobra.Command, args []string) error {
			props := make([]client.Property, len(args))
			for i, s := range args {
				p, err := client.ParseProperty(s)
				if err != nil {
					return err
				}
				props[i] = p
			}
			return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
				return b.GetProp(ctx, props...)
			})
		},
	}
}

func (a *app) toggleCommand() *cobra.Command {
	var bg, dev bool
	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Toggle light",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := target(bg)
			if dev {
				t = client.Device
			}
			return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
				return b.Toggle(ctx, t)
			})
		},
	}
	cmd.Flags().BoolVar(&bg, "bg", false, "toggle the background light")
	cmd.Flags().BoolVar(&dev, "dev", false, "toggle both lights")
	cmd.MarkFlagsMutuallyExclusive("bg", "dev")
	return cmd
}

func (a *app) powerCommand(power client.Power) *cobra.Command {
	var (
		tf   transitionFlags
		mode string
		bg   bool
	)
	cmd := &cobra.Command{
		Use:   power.String(),
		Short: "Turn " + power.String() + " light",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			effect, d, err := tf.parse()
			if err != nil {
				return err
			}
			m, err := client.ParseMode(mode)
			if err != nil {
				return err
			}
			return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
				return b.SetPower(ctx, target(bg), power, effect, d, m)
			})
		},
	}
	tf.register(cmd, false)
	cmd.Flags().StringVarP(&mode, "mode", "m", "normal", "mode, one of: ["+strings.Join(client.ModeValues(), ",")+"]")
	cmd.Flags().BoolVar(&bg, "bg", false, "use the background light")
	return cmd
}

func (a *app) timerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "timer <minutes>",
		Short: "Turn the light off after a number of minutes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid minutes %q", args[0])
			}
			return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
				return b.CronAdd(ctx, client.CronOff, minutes)
			})
		},
	}
}

func (a *app) setCommand() *cobra.Command {
	var tf transitionFlags
	set := &cobra.Command{
		Use:   "set",
		Short: "Set values",
	}
	tf.register(set, true)

	// light builds a "set" subcommand that takes --bg and a transition.
	light := func(use, short string, args cobra.PositionalArgs, call func(ctx context.Context, b *client.Bulb, t client.Target, e client.Effect, d time.Duration, args []string) (message.Result, error)) *cobra.Command {
		var bg bool
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				effect, d, err := tf.parse()
				if err != nil {
					return err
				}
				return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
					return call(ctx, b, target(bg), effect, d, args)
				})
			},
		}
		cmd.Flags().BoolVar(&bg, "bg", false, "use the background light")
		return cmd
	}

	set.AddCommand(
		light("power <on|off> [mode]", "Set power", cobra.RangeArgs(1, 2),
			func(ctx context.Context, b *client.Bulb, t client.Target, e client.Effect, d time.Duration, args []string) (message.Result, error) {
				p, err := client.ParsePower(args[0])
				if err != nil {
					return nil, err
				}
				m := client.ModeNormal
				if len(args) > 1 {
					if m, err = client.ParseMode(args[1]); err != nil {
						return nil, err
					}
				}
				return b.SetPower(ctx, t, p, e, d, m)
			}),
		light("ct <kelvin>", "Set color temperature", cobra.ExactArgs(1),
			func(ctx context.Context, b *client.Bulb, t client.Target, e client.Effect, d time.Duration, args []string) (message.Result, error) {
				ct, err := parseUint(args[0], 32)
				if err != nil {
					return nil, err
				}
				return b.SetCT(ctx, t, uint32(ct), e, d)
			}),
		light("rgb <value>", "Set color (decimal, 0xRRGGBB or #RRGGBB)", cobra.ExactArgs(1),
			func(ctx context.Context, b *client.Bulb, t client.Target, e client.Effect, d time.Duration, args []string) (message.Result, error) {
				rgb, err := strconv.ParseUint(strings.Replace(args[0], "#", "0x", 1), 0, 32)
				if err != nil {
					return nil, fmt.Errorf("invalid color %q", args[0])
				}
				return b.SetRGB(ctx, t, uint32(rgb), e, d)
			}),
		light("hsv <hue> [sat]", "Set hue and saturation (default 100)", cobra.RangeArgs(1, 2),
			func(ctx context.Context, b *client.Bulb, t client.Target, e client.Effect, d time.Duration, args []string) (message.Result, error) {
				hue, err := parseUint(args[0], 16)
				if err != nil {
					return nil, err
				}
				sat := uint64(100)
				if len(args) > 1 {
					if sat, err = parseUint(args[1], 16); err != nil {
						return nil, err
					}
				}
				return b.SetHSV(ctx, t, uint16(hue), uint16(sat), e, d)
			}),
		light("bright <percent>", "Set brightness", cobra.ExactArgs(1),
			func(ctx context.Context, b *client.Bulb, t client.Target, e client.Effect, d time.Duration, args []string) (message.Result, error) {
				bright, err := parseUint(args[0], 8)
				if err != nil {
					return nil, err
				}
				return b.SetBright(ctx, t, uint8(bright), e, d)
			}),
		light("scene <class> <val1> [val2] [val3]", "Set a scene (val2 and val3 default to 100)", cobra.RangeArgs(2, 4),
			func(ctx context.Context, b *client.Bulb, t client.Target, _ client.Effect, _ time.Duration, args []string) (message.Result, error) {
				class, err := client.ParseClass(args[0])
				if err != nil {
					return nil, err
				}
				vals := []uint64{0, 100, 100}
				for i, s := range args[1:] {
					if vals[i], err = parseUint(s, 64); err != nil {
						return nil, err
					}
				}
				return b.SetScene(ctx, t, class, vals...)
			}),
		light("default", "Save the current state as default", cobra.NoArgs,
			func(ctx context.Context, b *client.Bulb, t client.Target, _ client.Effect, _ time.Duration, _ []string) (message.Result, error) {
				return b.SetDefault(ctx, t)
			}),
		&cobra.Command{
			Use:   "name <name>",
			Short: "Set the device name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
					return b.SetName(ctx, args[0])
				})
			},
		},
	)
	return set
}

func (a *app) flowCommand() *cobra.Command {
	var bg bool
	cmd := &cobra.Command{
		Use:   "flow <expression> [count] [action]",
		Short: "Start a color flow",
		Long: "Start a color flow.\n\n" +
			"The expression is a comma separated list of duration(ms),mode,value,brightness\n" +
			"quadruples; mode is 1 (color), 2 (color temperature) or 7 (sleep). A count\n" +
			"of 0 (the default) repeats forever. The action, one of [" +
			strings.Join(client.CfActionValues(), ",") + "], defaults to recover.",
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := client.ParseFlowExpression(args[0])
			if err != nil {
				return err
			}
			var count uint64
			if len(args) > 1 {
				if count, err = parseUint(args[1], 32); err != nil {
					return err
				}
			}
			action := client.CfRecover
			if len(args) > 2 {
				if action, err = client.ParseCfAction(args[2]); err != nil {
					return err
				}
			}
			return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
				return b.StartCF(ctx, target(bg), uint32(count), action, expr)
			})
		},
	}
	cmd.Flags().BoolVar(&bg, "bg", false, "use the background light")
	return cmd
}

func (a *app) flowStopCommand() *cobra.Command {
	var bg bool
	cmd := &cobra.Command{
		Use:   "flow-stop",
		Short: "Stop the color flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
				return b.StopCF(ctx, target(bg))
			})
		},
	}
	cmd.Flags().BoolVar(&bg, "bg", false, "use the background light")
	return cmd
}

func (a *app) adjustCommand() *cobra.Command {
	var bg bool
	cmd := &cobra.Command{
		Use:   "adjust <bright|ct|color> <increase|decrease|circle>",
		Short: "Adjust a property without knowing its value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prop, err := client.ParseProp(args[0])
			if err != nil {
				return err
			}
			action, err := client.ParseAdjustAction(args[1])
			if err != nil {
				return err
			}
			return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
				return b.SetAdjust(ctx, target(bg), action, prop)
			})
		},
	}
	cmd.Flags().BoolVar(&bg, "bg", false, "use the background light")
	return cmd
}

func (a *app) adjustPercentCommand() *cobra.Command {
	var bg bool
	cmd := &cobra.Command{
		Use:   "adjust-percent [--bg] <bright|ct|color> <percent> [duration]",
		Short: "Adjust a property by a percentage (-100..100)",
		Args:  cobra.RangeArgs(2, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flag parsing stops at the first argument so that negative
			// percentages are not read as flags; pick up a trailing --bg here.
			args, bg = stripFlag(args, "--bg", bg)
			if len(args) < 2 || len(args) > 3 {
				return fmt.Errorf("accepts between 2 and 3 arg(s), received %d", len(args))
			}
			prop, err := client.ParseProp(args[0])
			if err != nil {
				return err
			}
			percent, err := strconv.ParseInt(args[1], 10, 8)
			if err != nil {
				return fmt.Errorf("invalid percent %q", args[1])
			}
			d := uint64(500)
			if len(args) > 2 {
				if d, err = parseUint(args[2], 64); err != nil {
					return err
				}
			}
			return a.do(cmd, func(ctx context.Context, b *client.Bulb) (message.Result, error) {
				return b.AdjustPercent(ctx, target(bg), prop, int8(percent), time.Duration(d)*time.Millisecond)
			})
		},
	}
	cmd.Flags().BoolVar(&bg, "bg", false, "use the background light")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func stripFlag(args []string, flag string, set bool) ([]string, bool) {
	out := args[:0:0]
	for _, a := range args {
		if a == flag {
			set = true
			continue
		}
		out = append(out, a)
	}
	return out, set
}

func parseUint(s string, bits int) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return n, nil
}
