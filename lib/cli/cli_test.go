package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-i2p/nostr-onion/lib/cashu"
	"github.com/go-i2p/nostr-onion/lib/directory"
	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/go-i2p/nostr-onion/lib/onion"
	"github.com/go-i2p/nostr-onion/lib/relay"
	"github.com/go-i2p/nostr-onion/lib/route"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	dir    string
	config string
	mint   *cashu.TestMint
	relay  *relay.TestRelay
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{dir: t.TempDir(), mint: cashu.NewTestMint(), relay: relay.NewTestRelay()}
	t.Cleanup(e.mint.Close)
	t.Cleanup(e.relay.Close)
	t.Setenv("HOME", e.dir)

	e.config = filepath.Join(e.dir, "config.yaml")
	yml := "mint:\n  url: " + e.mint.URL() + "\n  poll_interval: 10ms\n" +
		"relays:\n  directory: [\"" + e.relay.URL() + "\"]\n  fallback: [\"" + e.relay.URL() + "\"]\n" +
		"  dial_timeout: 2s\n  publish_timeout: 2s\n  query_timeout: 1s\n" +
		"directory:\n  path: " + filepath.Join(e.dir, "hops.yaml") + "\n"
	require.NoError(t, os.WriteFile(e.config, []byte(yml), 0o600))
	return e
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut, err := e.runContext(t, context.Background(), args...)
	return out + errOut, err
}

// runContext keeps standard output and error output apart.
func (e *env) runContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	viper.Reset()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := execute(ctx, cmd)
	return out.String(), errOut.String(), err
}

func (e *env) token(t *testing.T, amount uint64) string {
	t.Helper()
	return mintToken(t, e.mint, amount)
}

func mintToken(t *testing.T, mint *cashu.TestMint, amount uint64) string {
	t.Helper()
	w := cashu.NewWallet(cashu.NewMintClient(mint.URL(), 5*time.Second), "sat", 10*time.Millisecond)
	pool, err := w.Fund(context.Background(), amount, 5*time.Second, func(q *cashu.MintQuote) { mint.MarkPaid(q.Quote) })
	require.NoError(t, err)
	tok, err := pool.Token()
	require.NoError(t, err)
	return tok
}

func TestParseHopSpec(t *testing.T) {
	hops, err := route.NewTestHops(2)
	require.NoError(t, err)
	dir, err := directory.New([]directory.Entry{{Name: "alice", Pubkey: hops[0].Pubkey, Fee: 4}})
	require.NoError(t, err)
	npub, err := nostr.EncodeNpub(hops[1].Pubkey)
	require.NoError(t, err)

	tests := []struct {
		spec    string
		pubkey  string
		fee     uint64
		wantErr error
	}{
		{"alice", hops[0].Pubkey, 4, nil},
		{"alice:9", hops[0].Pubkey, 9, nil},
		{hops[1].Pubkey + ":3", hops[1].Pubkey, 3, nil},
		{npub + ":2", hops[1].Pubkey, 2, nil},
		{npub, "", 0, route.ErrInvalidFee},
		{"alice:x", "", 0, route.ErrInvalidFee},
		{"mallory:1", "", 0, directory.ErrUnknownHop},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			sel, err := parseHopSpec(tt.spec, dir)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.pubkey, sel.Pubkey)
			assert.Equal(t, tt.fee, sel.Fee)
		})
	}

	_, _, err = parseHops(nil, dir)
	assert.ErrorIs(t, err, route.ErrEmptyRoute)
}

func TestKeygen(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "keygen")
	require.NoError(t, err)
	assert.Contains(t, out, "nsec:   nsec1")
	assert.Contains(t, out, "npub:   npub1")
}

func TestTokenInspect(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "token", "inspect", e.token(t, 13))
	require.NoError(t, err)
	assert.Contains(t, out, "amount: 13 sat")
	assert.Contains(t, out, "mint:   "+e.mint.URL())

	_, err = e.run(t, "token", "inspect", "cashuBnope")
	assert.ErrorIs(t, err, cashu.ErrInvalidToken)
}

func TestHopsAddAndList(t *testing.T) {
	e := newEnv(t)
	hops, err := route.NewTestHops(1)
	require.NoError(t, err)

	_, err = e.run(t, "hops", "add", "alice", hops[0].Pubkey, "--fee", "5", "--relay", "wss://a.example")
	require.NoError(t, err)
	out, err := e.run(t, "hops", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, hops[0].Pubkey)
	assert.Contains(t, out, "wss://a.example")
}

func TestRouteDryRun(t *testing.T) {
	e := newEnv(t)
	hops, err := route.NewTestHops(2)
	require.NoError(t, err)
	_, err = e.run(t, "hops", "add", "alice", hops[0].Pubkey, "--fee", "5")
	require.NoError(t, err)

	out, err := e.run(t, "route", "--hop", "alice", "--hop", hops[1].Pubkey+":3", "--token", e.token(t, 10), "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "1. alice")
	assert.Contains(t, out, "total paid: 8")
	assert.Contains(t, out, "layer 2:")
	assert.Contains(t, out, "change (2):")
	assert.Empty(t, e.relay.Events(), "dry run publishes nothing")
}

func TestPeelCommand(t *testing.T) {
	e := newEnv(t)
	hops, err := route.NewTestHops(1)
	require.NoError(t, err)
	sk, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)
	payload := &nostr.Event{Kind: nostr.KindTextNote, CreatedAt: nostr.Now(), Content: "inner"}
	require.NoError(t, nostr.Sign(payload, sk))
	r := &route.Route{}
	require.NoError(t, r.AppendHop(route.Hop{Pubkey: hops[0].Pubkey, Token: "cashuAsecret", Expiration: nostr.Now() + 600}))
	o, err := onion.NewEncoder().Encode(payload, r)
	require.NoError(t, err)

	path := filepath.Join(e.dir, "layer.json")
	require.NoError(t, os.WriteFile(path, []byte(o.Outer.String()), 0o600))
	nsec, err := nostr.EncodeNsec(hops[0].SecretKey)
	require.NoError(t, err)

	out, err := e.run(t, "peel", "--key", nsec, path)
	require.NoError(t, err)
	assert.Contains(t, out, "variant:    expiring-layer")
	assert.Contains(t, out, "token:      cashuAsecret")
	assert.Contains(t, out, payload.ID)
}

func TestSendPublishes(t *testing.T) {
	e := newEnv(t)
	hops, err := route.NewTestHops(2)
	require.NoError(t, err)

	out, err := e.run(t, "send", "--no-wait",
		"--hop", hops[0].Pubkey+":2", "--hop", hops[1].Pubkey+":2",
		"--token", e.token(t, 4), "hello", "world")
	require.NoError(t, err)
	assert.Contains(t, out, "published ")
	require.Len(t, e.relay.Events(), 1)
	assert.True(t, strings.Contains(out, e.relay.Events()[0].ID))
}

func TestSendTraceTimesOut(t *testing.T) {
	e := newEnv(t)
	hops, err := route.NewTestHops(1)
	require.NoError(t, err)

	out, err := e.run(t, "send", "--plain", "--timeout", "1s",
		"--hop", hops[0].Pubkey+":1", "--token", e.token(t, 1), "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "Onion reached")
	assert.Contains(t, out, "Stopped tracing")
}

func TestErrorsAreReported(t *testing.T) {
	e := newEnv(t)
	out, errOut, err := e.runContext(t, context.Background(), "token", "inspect", "garbage")
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "Error: ")

	_, errOut, err = e.runContext(t, context.Background(), "send", "--hop", "nobody:5", "hi")
	assert.ErrorIs(t, err, directory.ErrUnknownHop)
	assert.Contains(t, errOut, err.Error())
}

func TestUnderfundedAmountMintsNothing(t *testing.T) {
	e := newEnv(t)
	hops, err := route.NewTestHops(2)
	require.NoError(t, err)

	out, err := e.run(t, "send", "--amount", "5",
		"--hop", hops[0].Pubkey+":3", "--hop", hops[1].Pubkey+":3", "hi")
	assert.ErrorIs(t, err, cashu.ErrInsufficientFunds)
	assert.NotContains(t, out, "Pay ")
}

func TestRouteFailurePrintsUnspentFunds(t *testing.T) {
	e := newEnv(t)
	hops, err := route.NewTestHops(2)
	require.NoError(t, err)
	// a foreign mint cannot swap, so the first hop takes the whole 4 sat proof
	foreign := cashu.NewTestMint()
	defer foreign.Close()

	out, err := e.run(t, "route",
		"--hop", hops[0].Pubkey+":1", "--hop", hops[1].Pubkey+":3",
		"--token", mintToken(t, foreign, 4), "hi")
	assert.ErrorIs(t, err, route.ErrPoolExhausted)
	assert.Contains(t, out, "unspent funds (4):")
	assert.Contains(t, out, "cashuA")
}

func TestRouteStopsWhenCancelled(t *testing.T) {
	e := newEnv(t)
	hops, err := route.NewTestHops(1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(300*time.Millisecond, cancel)
	defer timer.Stop()

	start := time.Now()
	// the invoice is never paid
	_, errOut, err := e.runContext(t, ctx, "route", "--hop", hops[0].Pubkey+":1", "hi")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Contains(t, errOut, "Error: ")
}
