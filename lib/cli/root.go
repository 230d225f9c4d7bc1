// Package cli implements the nostr-onion command line.
package cli

import (
	"context"
	"fmt"

	"github.com/go-i2p/logger"
	"github.com/go-i2p/nostr-onion/lib/config"
	"github.com/go-i2p/nostr-onion/lib/util/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logger.GetGoI2PLogger()

// NewRootCommand builds the command tree. Flags override config file values.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "nostr-onion",
		Short:         "Send nostr notes through paid onion-routed hops",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.InitConfig()
			return config.Validate(config.CurrentConfig())
		},
	}

	root.PersistentFlags().StringVar(&config.CfgFile, "config", "", "config file (default $HOME/.nostr-onion/config.yaml)")
	root.PersistentFlags().String("mint", "", "cashu mint URL")
	root.PersistentFlags().StringSlice("fallback-relay", nil, "relays used when a hop has none")
	root.PersistentFlags().String("hops-file", "", "hop directory YAML")
	_ = viper.BindPFlag("mint.url", root.PersistentFlags().Lookup("mint"))
	_ = viper.BindPFlag("relays.fallback", root.PersistentFlags().Lookup("fallback-relay"))
	_ = viper.BindPFlag("directory.path", root.PersistentFlags().Lookup("hops-file"))

	root.AddCommand(
		sendCmd(),
		routeCmd(),
		tokenCmd(),
		keygenCmd(),
		peelCmd(),
		hopsCmd(),
	)
	return root
}

// Execute runs the root command with signal handling installed. An
// interrupt cancels the context every command runs with.
func Execute() error {
	go signals.Handle()
	defer signals.StopHandle()
	ctx, stop := signals.NotifyContext(context.Background())
	defer stop()
	return execute(ctx, NewRootCommand())
}

// execute runs root and reports a failure on its error output.
func execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		log.WithError(err).Error("command failed")
	}
	return err
}
