package cli

import (
	"fmt"
	"strings"

	"github.com/go-i2p/nostr-onion/lib/config"
	"github.com/go-i2p/nostr-onion/lib/directory"
	"github.com/spf13/cobra"
)

func hopsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hops",
		Short: "Manage the hop directory",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known hops",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := directory.Load(config.CurrentConfig().Directory.Path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range dir.Entries() {
				fmt.Fprintf(out, "%-16s fee %-5d %s %s\n", e.Name, e.Fee, e.Pubkey, strings.Join(e.Relays, ","))
			}
			return nil
		},
	})

	var (
		fee    uint64
		relays []string
	)
	add := &cobra.Command{
		Use:   "add <name> <pubkey>",
		Short: "Add a hop to the directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.CurrentConfig().Directory.Path
			dir, err := directory.Load(path)
			if err != nil {
				return err
			}
			if err := dir.Add(directory.Entry{Name: args[0], Pubkey: args[1], Fee: fee, Relays: relays}); err != nil {
				return err
			}
			if err := dir.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", args[0])
			return nil
		},
	}
	add.Flags().Uint64Var(&fee, "fee", 0, "default fee for this hop")
	add.Flags().StringSliceVar(&relays, "relay", nil, "relays the hop reads from")
	cmd.AddCommand(add)
	return cmd
}
