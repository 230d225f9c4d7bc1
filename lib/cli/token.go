package cli

import (
	"fmt"

	"github.com/go-i2p/nostr-onion/lib/cashu"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Work with cashu tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect <cashuA...>",
		Short: "Decode a token and show its proofs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := cashu.DecodeToken(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			unit := tok.Unit
			if unit == "" {
				unit = "sat"
			}
			fmt.Fprintf(out, "amount: %d %s\n", tok.Amount(), unit)
			if tok.Memo != "" {
				fmt.Fprintf(out, "memo:   %s\n", tok.Memo)
			}
			for _, entry := range tok.Token {
				fmt.Fprintf(out, "mint:   %s\n", entry.Mint)
				fmt.Fprintf(out, "proofs: %v (keyset %s)\n", entry.Proofs.Amounts(), keysetOf(entry.Proofs))
			}
			return nil
		},
	})
	return cmd
}

func keysetOf(proofs cashu.Proofs) string {
	if len(proofs) == 0 {
		return "-"
	}
	return proofs[0].ID
}
