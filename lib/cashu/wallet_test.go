package cashu

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWallet(t *testing.T) (*Wallet, *TestMint) {
	t.Helper()
	mint := NewTestMint()
	t.Cleanup(mint.Close)
	client := NewMintClient(mint.URL(), 5*time.Second)
	return NewWallet(client, "sat", 10*time.Millisecond), mint
}

func TestWalletFundMintsVerifiedProofs(t *testing.T) {
	w, mint := newTestWallet(t)
	ctx := context.Background()

	var invoice string
	pool, err := w.Fund(ctx, 21, time.Second, func(q *MintQuote) {
		invoice = q.Request
		mint.MarkPaid(q.Quote)
	})
	require.NoError(t, err)
	assert.NotEmpty(t, invoice)
	assert.Equal(t, uint64(21), pool.Total())
	assert.Equal(t, []uint64{1, 4, 16}, pool.Proofs().Amounts())
	for _, p := range pool.Proofs() {
		assert.True(t, mint.Verify(p), "proof %d verifies", p.Amount)
	}
}

func TestWalletUnpaidQuote(t *testing.T) {
	w, _ := newTestWallet(t)
	_, err := w.Fund(context.Background(), 10, 50*time.Millisecond, nil)
	assert.ErrorIs(t, err, ErrPaymentNotConfirmed)
}

func TestWalletSwapThroughPoolSplit(t *testing.T) {
	w, mint := newTestWallet(t)
	ctx := context.Background()
	pool, err := w.Fund(ctx, 16, time.Second, func(q *MintQuote) { mint.MarkPaid(q.Quote) })
	require.NoError(t, err)

	spend, change, err := pool.Split(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, mint.SwapCalls())
	assert.Equal(t, uint64(5), spend.Total())
	assert.Equal(t, uint64(11), change.Total())
	for _, p := range append(spend.Proofs(), change.Proofs()...) {
		assert.True(t, mint.Verify(p))
	}

	t.Run("spent proofs are rejected", func(t *testing.T) {
		_, _, err := w.Swap(ctx, pool.Proofs(), 1)
		var mintErr *MintError
		require.True(t, errors.As(err, &mintErr))
		assert.Equal(t, 11001, mintErr.Code)
	})
}

func TestWalletImportToken(t *testing.T) {
	w, mint := newTestWallet(t)
	ctx := context.Background()
	pool, err := w.Fund(ctx, 8, time.Second, func(q *MintQuote) { mint.MarkPaid(q.Quote) })
	require.NoError(t, err)
	s, err := pool.Token()
	require.NoError(t, err)

	imported, err := w.ImportToken(s)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), imported.Total())

	spend, _, err := imported.Split(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), spend.Total(), "same-mint tokens swap to exact amounts")
}

func TestLoadKeysetUnknownUnit(t *testing.T) {
	mint := NewTestMint()
	defer mint.Close()
	w := NewWallet(NewMintClient(mint.URL(), time.Second), "usd", time.Second)
	err := w.LoadKeyset(context.Background())
	assert.ErrorIs(t, err, ErrNoKeyset)
}

func TestMintClientErrorBody(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		detail string
		code   int
	}{
		{"json error", http.StatusBadRequest, `{"detail":"quote not paid","code":20001}`, "quote not paid", 20001},
		{"plain text", http.StatusInternalServerError, "boom", "boom", 0},
		{"empty body", http.StatusBadGateway, "", http.StatusText(http.StatusBadGateway), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewMintClient(srv.URL, time.Second).CheckMintQuote(context.Background(), "q")
			var mintErr *MintError
			require.True(t, errors.As(err, &mintErr))
			assert.Equal(t, tt.status, mintErr.Status)
			assert.Equal(t, tt.detail, mintErr.Detail)
			assert.Equal(t, tt.code, mintErr.Code)
		})
	}
}

func TestMintQuoteIsPaid(t *testing.T) {
	assert.True(t, (&MintQuote{State: QuotePaid}).IsPaid())
	assert.True(t, (&MintQuote{State: QuoteIssued}).IsPaid())
	assert.True(t, (&MintQuote{Paid: true}).IsPaid())
	assert.False(t, (&MintQuote{State: QuoteUnpaid}).IsPaid())
}
