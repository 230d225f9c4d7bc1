package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-i2p/nostr-onion/lib/cashu"
	"github.com/go-i2p/nostr-onion/lib/send"
	"github.com/go-i2p/nostr-onion/lib/tracer"
	"github.com/go-i2p/nostr-onion/lib/tui"
	"github.com/go-i2p/nostr-onion/lib/util/signals"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

type fundingFlags struct {
	hops   []string
	secret string
	token  string
	amount uint64
}

func (f *fundingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.hops, "hop", nil, "hop as name[:fee] or pubkey:fee, repeat in route order")
	cmd.Flags().StringVar(&f.secret, "nsec", "", "secret key for the note (hex or nsec), random when empty")
	cmd.Flags().StringVar(&f.token, "token", "", "pay with an existing cashuA token instead of minting")
	cmd.Flags().Uint64Var(&f.amount, "amount", 0, "amount to mint (default: sum of hop fees)")
	_ = cmd.MarkFlagRequired("hop")
}

func (f *fundingFlags) request(ctx context.Context, a *app, out io.Writer, content string) (send.Request, error) {
	sels, total, err := parseHops(f.hops, a.dir)
	if err != nil {
		return send.Request{}, err
	}
	amount := f.amount
	if amount == 0 {
		amount = total
	}
	if f.token == "" && amount < total {
		return send.Request{}, oops.Wrapf(cashu.ErrInsufficientFunds, "amount %d does not cover hop fees totalling %d", amount, total)
	}
	pool, err := a.fund(ctx, out, f.token, amount)
	if err != nil {
		return send.Request{}, err
	}
	if pool.Total() < total {
		return send.Request{}, oops.Wrapf(cashu.ErrInsufficientFunds, "token holds %d, hop fees total %d", pool.Total(), total)
	}
	return send.Request{SecretKey: f.secret, Content: content, Hops: sels, Pool: pool}, nil
}

func sendCmd() *cobra.Command {
	var (
		funding fundingFlags
		plain   bool
		noWait  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Wrap a note in paid layers, publish it and trace its delivery",
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
			res, err := a.sender().Send(ctx, req)
			if res != nil {
				printRoute(out, res.Route, a.dir.Name)
			}
			if printRefund(out, err) {
				return err
			}
			if res != nil {
				printChange(out, res.Route)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\npublished %s to %s\n", res.Onion.Outer.ID, strings.Join(res.Accepted, ", "))
			if noWait {
				res.Trace.Stop()
				return nil
			}

			// SIGHUP prints what has been seen so far
			id := signals.RegisterReloadHandler(func() {
				for _, p := range res.Trace.History() {
					fmt.Fprintln(cmd.ErrOrStderr(), p.Message())
				}
			})
			defer signals.DeregisterReloadHandler(id)

			waitCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				waitCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			var c *tracer.Confirmation
			if plain {
				c, err = plainTrace(waitCtx, out, res.Trace)
			} else {
				c, err = tui.Run(waitCtx, res.Trace, res.Route, a.dir.Name)
			}
			return reportDelivery(out, c, err)
		},
	}
	funding.register(cmd)
	cmd.Flags().BoolVar(&plain, "plain", false, "print progress lines instead of the interactive view")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "publish and exit without tracing")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "stop tracing after this long (0 waits until interrupted)")
	return cmd
}

func plainTrace(ctx context.Context, out io.Writer, t *tracer.Trace) (*tracer.Confirmation, error) {
	for {
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, tracer.ErrTracingAbandoned
		case p, ok := <-t.Progress():
			if !ok {
				return t.Wait(ctx)
			}
			fmt.Fprintln(out, p.Message())
		}
	}
}

func reportDelivery(out io.Writer, c *tracer.Confirmation, err error) error {
	if errors.Is(err, tracer.ErrTracingAbandoned) {
		fmt.Fprintln(out, "Stopped tracing. The onion may still be delivered.")
		return nil
	}
	if err != nil {
		return err
	}
	if c.URL != "" {
		fmt.Fprintf(out, "Note published: %s\n", c.URL)
	} else {
		fmt.Fprintf(out, "Note published: %s\n", c.PayloadID)
	}
	return nil
}
