package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func routeCmd() *cobra.Command {
	var (
		funding   fundingFlags
		showOnion bool
	)
	cmd := &cobra.Command{
		Use:   "route <message>",
		Short: "Compose and encode an onion without publishing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			req, err := funding.request(ctx, a, out, strings.Join(args, " "))
			if err != nil {
				return err
			}
			p, err := a.sender().Prepare(ctx, req)
			if err != nil {
				printRefund(out, err)
				return err
			}
			printRoute(out, p.Route, a.dir.Name)
			fmt.Fprintf(out, "outer layer %s would go to %s\n", p.Onion.Outer.ID, strings.Join(p.Targets, ", "))
			for i := 0; i < p.Route.Len(); i++ {
				fmt.Fprintf(out, "  layer %d: %s\n", i+1, p.Onion.LayerIDs[i])
			}
			if showOnion {
				fmt.Fprintf(out, "\n%s\n", p.Onion.Outer.String())
			}
			printChange(out, p.Route)
			// hop tokens are not spent; print them so they are not lost
			for i, h := range p.Route.Hops {
				fmt.Fprintf(out, "\nhop %d token:\n%s\n", i+1, h.Token)
			}
			return nil
		},
	}
	funding.register(cmd)
	cmd.Flags().BoolVar(&showOnion, "show-onion", false, "print the outer layer JSON")
	return cmd
}
