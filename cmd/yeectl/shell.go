package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func (a *app) shellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively over one connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.bulb != nil {
				return errors.New("already in a shell")
			}
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "yeectl> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				AutoComplete:    readline.NewPrefixCompleter(a.completions()...),
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()
			return a.shell(cmd.Context(), rl, rl.Stdout(), rl.Stderr())
		},
	}
}

// lineReader is the part of *readline.Instance the shell loop uses.
type lineReader interface {
	Readline() (string, error)
}

// shell reads commands until EOF or "exit" and runs each through a fresh
// command tree that shares this app's connection.
func (a *app) shell(ctx context.Context, rl lineReader, stdout, stderr io.Writer) error {
	b, release, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer release()

	session := &app{stdout: stdout, stderr: stderr, cfg: a.cfg, logger: a.logger, bulb: b}
	fmt.Fprintln(stdout, "connected to", b.Transport().RemoteAddr(), "- type help for commands, exit to leave")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			// EOF
			return nil
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			return nil
		}

		select {
		case <-b.Done():
			return connectionLost(b)
		default:
		}

		root := session.rootCommand()
		root.SetArgs(args)
		session.report(root.ExecuteContext(ctx))
	}
}

func (a *app) completions() []readline.PrefixCompleterInterface {
	root := a.rootCommand()
	var items []readline.PrefixCompleterInterface
	for _, c := range root.Commands() {
		switch c.Name() {
		case "shell", "emulate", "completion", "registry":
			continue
		}
		var children []readline.PrefixCompleterInterface
		for _, sub := range c.Commands() {
			children = append(children, readline.PcItem(sub.Name()))
		}
		for _, v := range c.ValidArgs {
			children = append(children, readline.PcItem(v))
		}
		items = append(items, readline.PcItem(c.Name(), children...))
	}
	return append(items, readline.PcItem("help"), readline.PcItem("exit"))
}
