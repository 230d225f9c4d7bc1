package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/go-i2p/nostr-onion/lib/onion"
	"github.com/spf13/cobra"
)

func peelCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "peel [layer.json]",
		Short: "Decrypt one onion layer with a hop's key",
		Long:  "Reads a layer event as JSON from the file or stdin and prints its payment and inner event.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 1 && args[0] != "-" {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			layer, err := nostr.ParseEvent(data)
			if err != nil {
				return err
			}
			sk, err := nostr.NormalizeSecretKey(key)
			if err != nil {
				return err
			}
			peeled, err := onion.Peel(layer, sk, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "variant:    %s\n", peeled.Variant)
			if peeled.Relay != "" {
				fmt.Fprintf(out, "relay:      %s\n", peeled.Relay)
			}
			if peeled.Expiration != 0 {
				fmt.Fprintf(out, "expiration: %s\n", peeled.Expiration.Time().UTC())
			}
			fmt.Fprintf(out, "token:      %s\n", peeled.Token)
			fmt.Fprintf(out, "inner:\n%s\n", peeled.Inner.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "hop secret key (hex or nsec)")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
