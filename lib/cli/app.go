package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-i2p/logger"
	"github.com/go-i2p/nostr-onion/lib/cashu"
	"github.com/go-i2p/nostr-onion/lib/clock"
	"github.com/go-i2p/nostr-onion/lib/config"
	"github.com/go-i2p/nostr-onion/lib/directory"
	"github.com/go-i2p/nostr-onion/lib/mailbox"
	"github.com/go-i2p/nostr-onion/lib/onion"
	"github.com/go-i2p/nostr-onion/lib/relay"
	"github.com/go-i2p/nostr-onion/lib/route"
	"github.com/go-i2p/nostr-onion/lib/send"
	"github.com/go-i2p/nostr-onion/lib/tracer"
	"github.com/go-i2p/nostr-onion/lib/util"
	"github.com/samber/oops"
)

// app holds the collaborators built from the active configuration.
type app struct {
	cfg      config.Config
	dir      *directory.Directory
	pool     *relay.Pool
	wallet   *cashu.Wallet
	clock    clock.Clock
	resolver mailbox.Resolver
}

type poolCloser struct{ pool *relay.Pool }

func (c poolCloser) Close() error {
	c.pool.Close()
	return nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.CurrentConfig()
	dir, err := directory.Load(cfg.Directory.Path)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, dir: dir}
	a.pool = relay.NewPool(
		relay.WithDialTimeout(cfg.Relays.DialTimeout),
		relay.WithPublishTimeout(cfg.Relays.PublishTimeout),
	)
	util.RegisterCloser(poolCloser{a.pool})
	a.wallet = cashu.NewWallet(cashu.NewMintClient(cfg.Mint.URL, cfg.Mint.RequestTimeout), cfg.Mint.Unit, cfg.Mint.PollInterval)
	a.resolver = mailbox.Chain{
		dir.Mailboxes(),
		mailbox.NewRelayListResolver(a.pool, cfg.Relays.Directory, cfg.Relays.QueryTimeout),
	}
	a.clock = clock.System{}
	if cfg.NTP.Enabled {
		ntpClock := clock.NewNTPClock(clock.DefaultNTPClient{}, cfg.NTP.Servers, cfg.NTP.Timeout)
		if err := ntpClock.Sync(ctx); err != nil {
			log.WithError(err).Warn("NTP sync failed, using system time")
		}
		a.clock = ntpClock
	}
	return a, nil
}

// Close releases the relay connections.
func (a *app) Close() {
	util.CloseAll()
}

func (a *app) tracer() *tracer.Tracer {
	return tracer.New(tracer.PoolSubscriber{Pool: a.pool},
		tracer.WithNamer(a.dir.Name),
		tracer.WithHistory(a.cfg.Tracer.History),
		tracer.WithViewerURL(a.cfg.Tracer.ViewerURL),
		tracer.WithFallbackRelays(a.cfg.Relays.Fallback),
		tracer.WithClock(a.clock),
	)
}

func (a *app) sender() *send.Sender {
	encoder := onion.NewEncoder(
		onion.WithClock(a.clock),
		onion.WithCreatedAtJitter(a.cfg.Route.CreatedAtJitter),
	)
	return send.New(a.pool, a.tracer(),
		send.WithResolver(a.resolver),
		send.WithEncoder(encoder),
		send.WithClock(a.clock),
		send.WithRouteConfig(route.Config{BaseInterval: a.cfg.Route.BaseInterval, Jitter: a.cfg.Route.Jitter}),
		send.WithFallbackRelays(a.cfg.Relays.Fallback),
	)
}

// fund returns a pool from token when given, else mints amount through a
// Lightning invoice printed to out.
func (a *app) fund(ctx context.Context, out io.Writer, token string, amount uint64) (*cashu.TokenPool, error) {
	if token != "" {
		return a.wallet.ImportToken(token)
	}
	if amount == 0 {
		return nil, oops.Wrapf(cashu.ErrInvalidAmount, "nothing to fund")
	}
	return a.wallet.Fund(ctx, amount, a.cfg.Mint.PaymentTimeout, func(q *cashu.MintQuote) {
		fmt.Fprintf(out, "Pay %d %s to fund the route:\n\n%s\n\n", amount, a.cfg.Mint.Unit, q.Request)
	})
}

// parseHopSpec reads "name", "name:fee", "npub...:fee" or "hex:fee". A
// missing fee falls back to the directory entry.
func parseHopSpec(spec string, dir *directory.Directory) (route.Selection, error) {
	ref, feeText := spec, ""
	if i := strings.LastIndex(spec, ":"); i >= 0 {
		ref, feeText = spec[:i], spec[i+1:]
	}
	entry, err := dir.Lookup(ref)
	if err != nil {
		return route.Selection{}, err
	}
	fee := entry.Fee
	if feeText != "" {
		fee, err = strconv.ParseUint(feeText, 10, 64)
		if err != nil {
			return route.Selection{}, oops.Wrapf(route.ErrInvalidFee, "hop %q: %s", spec, err.Error())
		}
	}
	if fee == 0 {
		return route.Selection{}, oops.Wrapf(route.ErrInvalidFee, "hop %q has no fee", spec)
	}
	return route.Selection{Pubkey: entry.Pubkey, Fee: fee}, nil
}

func parseHops(specs []string, dir *directory.Directory) ([]route.Selection, uint64, error) {
	sels := make([]route.Selection, 0, len(specs))
	var total uint64
	for _, s := range specs {
		sel, err := parseHopSpec(s, dir)
		if err != nil {
			return nil, 0, err
		}
		sels = append(sels, sel)
		total += sel.Fee
	}
	if len(sels) == 0 {
		return nil, 0, route.ErrEmptyRoute
	}
	return sels, total, nil
}

func printRoute(out io.Writer, r *route.Route, names func(string) string) {
	for i, h := range r.Hops {
		relayText := "no relay hint"
		if h.Relay != "" {
			relayText = h.Relay
		}
		fmt.Fprintf(out, "%d. %-16s paid %-6d expires %s  %s\n",
			i+1, names(h.Pubkey), h.Paid, h.Expiration.Time().UTC().Format("15:04:05"), relayText)
	}
	fmt.Fprintf(out, "total paid: %d\n", r.TotalPaid())
}

// printRefund prints the recovery token carried by err and reports whether
// there was one.
func printRefund(out io.Writer, err error) bool {
	var refund *send.RefundError
	if !errors.As(err, &refund) {
		return false
	}
	tok, terr := refund.Token()
	if terr != nil {
		log.WithFields(logger.Fields{"at": "printRefund"}).WithError(terr).Error("could not encode refund")
		return false
	}
	fmt.Fprintf(out, "\nnothing was sent, unspent funds (%d):\n%s\n", refund.Refund.Total(), tok)
	return true
}

func printChange(out io.Writer, r *route.Route) {
	if r.Change == nil || r.Change.Total() == 0 {
		return
	}
	tok, err := r.Change.Token()
	if err != nil {
		log.WithFields(logger.Fields{"at": "printChange"}).WithError(err).Warn("could not encode change")
		return
	}
	fmt.Fprintf(out, "\nchange (%d):\n%s\n", r.Change.Total(), tok)
}
