package cli

import (
	"fmt"

	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/spf13/cobra"
)

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a nostr key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sk, err := nostr.GeneratePrivateKey()
			if err != nil {
				return err
			}
			pk, err := nostr.GetPublicKey(sk)
			if err != nil {
				return err
			}
			nsec, err := nostr.EncodeNsec(sk)
			if err != nil {
				return err
			}
			npub, err := nostr.EncodeNpub(pk)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "nsec:   %s\nnpub:   %s\npubkey: %s\n", nsec, npub, pk)
			return nil
		},
	}
}
