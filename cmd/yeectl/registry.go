package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"yeectl/registry"
)

func (a *app) registryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "registry",
		Aliases: []string{"reg"},
		Short:   "Manage named bulbs",
		Long: "Manage named bulbs. Without etcd endpoints in the configuration the\n" +
			"registry is the read-only \"registry.bulbs\" map of the configuration file.",
	}

	var ttl time.Duration
	add := &cobra.Command{
		Use:   "add <name> <host[:port]>",
		Short: "Add or replace a bulb",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, release, err := a.writableRegistry()
			if err != nil {
				return err
			}
			defer release()
			host, port, err := registry.SplitAddr(args[1], a.cfg.Bulb.Port)
			if err != nil {
				return err
			}
			e := registry.Entry{Name: args[0], Addr: registry.JoinAddr(host, port)}
			return reg.Register(cmd.Context(), e, ttl)
		},
	}
	add.Flags().DurationVar(&ttl, "ttl", 0, "remove the entry after this long unless renewed")

	rm := &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a bulb",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, release, err := a.writableRegistry()
			if err != nil {
				return err
			}
			defer release()
			return reg.Deregister(cmd.Context(), args[0])
		},
	}

	var watch bool
	ls := &cobra.Command{
		Use:   "ls",
		Short: "List bulbs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, release, err := a.openRegistry()
			if err != nil {
				return err
			}
			defer release()

			entries, err := reg.List(cmd.Context())
			if err != nil {
				return err
			}
			a.printEntries(entries)
			if !watch {
				return nil
			}
			for entries := range reg.Watch(cmd.Context()) {
				fmt.Fprintln(a.stdout)
				a.printEntries(entries)
			}
			return nil
		},
	}
	ls.Flags().BoolVarP(&watch, "watch", "w", false, "keep printing the list as it changes")

	cmd.AddCommand(add, rm, ls)
	return cmd
}

func (a *app) writableRegistry() (registry.Registry, func(), error) {
	if len(a.cfg.Registry.Etcd.Endpoints) == 0 {
		return nil, nil, errors.New("no etcd endpoints configured; edit registry.bulbs in the configuration file instead")
	}
	return a.openRegistry()
}

func (a *app) printEntries(entries []registry.Entry) {
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.Name, e.Addr)
	}
	w.Flush()
}
