// Command yeectl controls Yeelight smart lights over the LAN protocol.
//
//	yeectl 192.168.1.40 toggle
//	YEELIGHT_ADDR=192.168.1.40 yeectl set rgb 0xff0000 -e sudden
//	yeectl --bulb desk listen --mqtt
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"yeectl/client"
	"yeectl/config"
	"yeectl/logging"
	"yeectl/message"
	"yeectl/registry"
)

// app carries what every command needs. One app serves one invocation, or
// one shell session.
type app struct {
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
	logger *zap.Logger

	flagAddr     string
	flagPort     uint16
	flagBulb     string
	flagConfig   string
	flagTimeout  time.Duration
	flagLogLevel string

	// bulb is set while the shell runs so that commands share its
	// connection.
	bulb *client.Bulb
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, logger: zap.NewNop()}
	root := a.rootCommand()
	root.SetArgs(positionalAddress(root, args, &a.flagAddr))
	err := root.ExecuteContext(ctx)
	_ = a.logger.Sync()
	return a.report(err)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "yeectl [address] <command>",
		Short: "Control Yeelight smart lights on the LAN",
		Long: "Control Yeelight smart lights on the LAN.\n\n" +
			"The bulb is given as the first argument, with --addr, with --bulb NAME\n" +
			"from the registry, or through " + config.EnvAddr + " and " + config.EnvPort + ".",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	f := root.PersistentFlags()
	f.StringVar(&a.flagAddr, "addr", "", "bulb address or registry name (env "+config.EnvAddr+")")
	f.Uint16VarP(&a.flagPort, "port", "p", 55443, "bulb control port (env "+config.EnvPort+")")
	f.StringVar(&a.flagBulb, "bulb", "", "bulb name from the registry")
	f.StringVar(&a.flagConfig, "config", "", "path to a YAML configuration file")
	f.DurationVarP(&a.flagTimeout, "timeout", "t", 5*time.Second, "timeout for each bulb operation")
	f.StringVarP(&a.flagLogLevel, "log-level", "L", "warn", "log level, one of: [debug,info,warn,error]")

	root.AddCommand(a.bulbCommands()...)
	root.AddCommand(
		a.listenCommand(),
		a.shellCommand(),
		a.emulateCommand(),
		a.registryCommand(),
	)
	return root
}

// setup loads configuration and applies flags on top of it. Flags win over
// the environment, which wins over the file.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.cfg != nil {
		// already set up by the shell
		return nil
	}
	cfg, err := config.Load(a.flagConfig)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if a.flagAddr != "" {
		cfg.Bulb.Address = a.flagAddr
	}
	if flags.Changed("port") {
		cfg.Bulb.Port = a.flagPort
	}
	if flags.Changed("timeout") {
		cfg.Bulb.Timeout = a.flagTimeout
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// positionalAddress lets the bulb address come before the command, as in
// "yeectl 192.168.1.40 toggle" or "yeectl -p 1234 192.168.1.40 toggle". The
// address is moved into addr and removed from args.
func positionalAddress(root *cobra.Command, args []string, addr *string) []string {
	flags := root.PersistentFlags()
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return args
		}
		if strings.HasPrefix(arg, "-") {
			if !strings.Contains(arg, "=") && takesValue(flags, arg) {
				i++
			}
			continue
		}
		if isCommand(root, arg) {
			return args
		}
		*addr = arg
		return append(append([]string(nil), args[:i]...), args[i+1:]...)
	}
	return args
}

// takesValue reports whether the flag written as arg consumes the next
// argument.
func takesValue(flags *pflag.FlagSet, arg string) bool {
	var f *pflag.Flag
	if name, ok := strings.CutPrefix(arg, "--"); ok {
		f = flags.Lookup(name)
	} else if len(arg) == 2 {
		f = flags.ShorthandLookup(arg[1:])
	}
	return f != nil && f.NoOptDefVal == ""
}

func isCommand(root *cobra.Command, name string) bool {
	switch name {
	case "help", "completion":
		return true
	}
	for _, c := range root.Commands() {
		if c.Name() == name || c.HasAlias(name) {
			return true
		}
	}
	return false
}

// openRegistry returns the etcd registry when endpoints are configured and
// the static one otherwise. The returned func releases it.
func (a *app) openRegistry() (registry.Registry, func(), error) {
	rc := a.cfg.Registry
	if len(rc.Etcd.Endpoints) == 0 {
		reg, err := registry.NewStaticRegistry(rc.Bulbs)
		return reg, func() {}, err
	}
	reg, err := registry.NewEtcdRegistry(rc.Etcd.Endpoints, rc.Etcd.DialTimeout,
		registry.WithPrefix(rc.Etcd.Prefix), registry.WithLogger(a.logger))
	if err != nil {
		return nil, nil, err
	}
	return reg, func() { reg.Close() }, nil
}

// target returns what the user asked to talk to: a registry name or an
// address.
func (a *app) target() (string, error) {
	if a.flagBulb != "" {
		return a.flagBulb, nil
	}
	if a.cfg.Bulb.Address != "" {
		return a.cfg.Bulb.Address, nil
	}
	return "", errors.New("no bulb given: pass an address as the first argument, use --addr or --bulb, or set " + config.EnvAddr)
}

func (a *app) clientOptions() []client.Option {
	return []client.Option{
		client.WithLogger(a.logger),
		client.WithTimeout(a.cfg.Bulb.Timeout),
		client.WithRateLimit(a.cfg.RateLimit.PerMinute, a.cfg.RateLimit.Burst),
	}
}

// connect returns the shell's connection, or dials a new one that the
// returned func closes.
func (a *app) connect(ctx context.Context, extra ...client.Option) (*client.Bulb, func(), error) {
	if a.bulb != nil {
		return a.bulb, func() {}, nil
	}
	name, err := a.target()
	if err != nil {
		return nil, nil, err
	}
	reg, release, err := a.openRegistry()
	if err != nil {
		return nil, nil, err
	}
	defer release()

	dialCtx, cancel := context.WithTimeout(ctx, a.cfg.Bulb.Timeout)
	defer cancel()

	host, port, err := registry.Resolve(dialCtx, reg, name, a.cfg.Bulb.Port)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug("resolved bulb", zap.String("target", name), zap.String("host", host), zap.Uint16("port", port))

	b, err := client.Connect(dialCtx, host, port, append(a.clientOptions(), extra...)...)
	if err != nil {
		return nil, nil, err
	}
	return b, func() { b.Close() }, nil
}

// printResult prints every result value except "ok", one per line.
func (a *app) printResult(res message.Result) {
	for _, v := range res {
		if v != "ok" {
			fmt.Fprintln(a.stdout, v)
		}
	}
}

// report prints err and maps it to an exit status. Bulb errors exit with the
// bulb's error code.
func (a *app) report(err error) int {
	if err == nil {
		return 0
	}
	var perr *message.ProtocolError
	if errors.As(err, &perr) {
		fmt.Fprintln(a.stderr, perr.Error())
		return perr.Code
	}
	fmt.Fprintln(a.stderr, "Error:", err)
	return 1
}
