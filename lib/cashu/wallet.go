package cashu

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

// Wallet mints and swaps proofs against one mint keyset.
type Wallet struct {
	client  *MintClient
	unit    string
	keyset  *Keyset
	limiter *rate.Limiter
}

// NewWallet returns a wallet for unit. Quote checks are rate limited to one
// per pollInterval.
func NewWallet(client *MintClient, unit string, pollInterval time.Duration) *Wallet {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &Wallet{
		client:  client,
		unit:    unit,
		limiter: rate.NewLimiter(rate.Every(pollInterval), 1),
	}
}

// LoadKeyset selects the first active keyset for the wallet's unit.
func (w *Wallet) LoadKeyset(ctx context.Context) error {
	keysets, err := w.client.GetKeys(ctx)
	if err != nil {
		return err
	}
	for i := range keysets {
		if keysets[i].Unit == w.unit {
			w.keyset = &keysets[i]
			log.WithFields(logger.Fields{
				"at":     "Wallet.LoadKeyset",
				"keyset": w.keyset.ID,
				"unit":   w.unit,
			}).Debug("selected keyset")
			return nil
		}
	}
	return oops.Wrapf(ErrNoKeyset, "%s at %s", w.unit, w.client.URL())
}

// RequestFunding creates a mint quote whose invoice must be paid before minting.
func (w *Wallet) RequestFunding(ctx context.Context, amount uint64) (*MintQuote, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	return w.client.RequestMintQuote(ctx, amount, w.unit)
}

// CheckPaid queries the quote state once.
func (w *Wallet) CheckPaid(ctx context.Context, quoteID string) (bool, error) {
	quote, err := w.client.CheckMintQuote(ctx, quoteID)
	if err != nil {
		return false, err
	}
	return quote.IsPaid(), nil
}

// WaitForPayment polls the quote until it is paid. It returns
// ErrPaymentNotConfirmed when timeout or ctx ends first.
func (w *Wallet) WaitForPayment(ctx context.Context, quoteID string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return oops.Wrapf(ErrPaymentNotConfirmed, "quote %s: %s", quoteID, err.Error())
		}
		paid, err := w.CheckPaid(ctx, quoteID)
		if err != nil {
			if ctx.Err() != nil {
				return oops.Wrapf(ErrPaymentNotConfirmed, "quote %s: %s", quoteID, ctx.Err().Error())
			}
			log.WithError(err).WithField("quote", quoteID).Warn("quote check failed, retrying")
			continue
		}
		if paid {
			return nil
		}
	}
}

// MintTokens mints amount for a paid quote and returns the resulting pool.
func (w *Wallet) MintTokens(ctx context.Context, quoteID string, amount uint64) (*TokenPool, error) {
	if err := w.ensureKeyset(ctx); err != nil {
		return nil, err
	}
	outputs, secrets, err := w.createOutputs(SplitAmount(amount))
	if err != nil {
		return nil, err
	}
	sigs, err := w.client.Mint(ctx, quoteID, outputs)
	if err != nil {
		return nil, err
	}
	proofs, err := w.constructProofs(sigs, secrets)
	if err != nil {
		return nil, err
	}
	return NewTokenPool(w.client.URL(), proofs, WithUnit(w.unit), WithSwapper(w)), nil
}

// Fund runs the whole NUT-04 flow: quote, invoice callback, payment wait and
// minting. Nothing is minted if the invoice stays unpaid.
func (w *Wallet) Fund(ctx context.Context, amount uint64, timeout time.Duration, onInvoice func(*MintQuote)) (*TokenPool, error) {
	quote, err := w.RequestFunding(ctx, amount)
	if err != nil {
		return nil, err
	}
	if onInvoice != nil {
		onInvoice(quote)
	}
	if err := w.WaitForPayment(ctx, quote.Quote, timeout); err != nil {
		return nil, err
	}
	return w.MintTokens(ctx, quote.Quote, amount)
}

// Swap reissues inputs as two sets of proofs: send worth exactly amount and
// keep worth the remainder.
func (w *Wallet) Swap(ctx context.Context, inputs Proofs, amount uint64) (send, keep Proofs, err error) {
	total := inputs.Amount()
	if amount > total {
		return nil, nil, oops.Wrapf(ErrInsufficientFunds, "swap %d from %d", amount, total)
	}
	if err := w.ensureKeyset(ctx); err != nil {
		return nil, nil, err
	}
	sendAmounts := SplitAmount(amount)
	amounts := append(append([]uint64(nil), sendAmounts...), SplitAmount(total-amount)...)
	outputs, secrets, err := w.createOutputs(amounts)
	if err != nil {
		return nil, nil, err
	}
	sigs, err := w.client.Swap(ctx, inputs, outputs)
	if err != nil {
		return nil, nil, err
	}
	proofs, err := w.constructProofs(sigs, secrets)
	if err != nil {
		return nil, nil, err
	}
	return proofs[:len(sendAmounts)], proofs[len(sendAmounts):], nil
}

// ImportToken decodes a cashuA token into a pool. Tokens from this wallet's
// mint can be split exactly through swaps.
func (w *Wallet) ImportToken(s string) (*TokenPool, error) {
	tok, err := DecodeToken(s)
	if err != nil {
		return nil, err
	}
	pool, err := PoolFromToken(tok)
	if err != nil {
		return nil, err
	}
	if w != nil && pool.mint == w.client.URL() {
		pool.swapper = w
	} else {
		log.WithFields(logger.Fields{
			"at":     "Wallet.ImportToken",
			"reason": "foreign_mint",
			"mint":   pool.mint,
		}).Warn("token from another mint, splits will not be exact")
	}
	return pool, nil
}

func (w *Wallet) ensureKeyset(ctx context.Context) error {
	if w.keyset != nil {
		return nil
	}
	return w.LoadKeyset(ctx)
}

type outputSecret struct {
	secret string
	r      *btcec.PrivateKey
}

func (w *Wallet) createOutputs(amounts []uint64) ([]BlindedMessage, []outputSecret, error) {
	outputs := make([]BlindedMessage, len(amounts))
	secrets := make([]outputSecret, len(amounts))
	for i, amount := range amounts {
		var raw [32]byte
		if _, err := rand.Read(raw[:]); err != nil {
			return nil, nil, oops.Wrapf(err, "failed to generate secret")
		}
		secret := hex.EncodeToString(raw[:])
		r, err := randomScalar()
		if err != nil {
			return nil, nil, err
		}
		B, err := BlindMessage([]byte(secret), r)
		if err != nil {
			return nil, nil, err
		}
		outputs[i] = BlindedMessage{Amount: amount, ID: w.keyset.ID, B_: hex.EncodeToString(B.SerializeCompressed())}
		secrets[i] = outputSecret{secret: secret, r: r}
	}
	return outputs, secrets, nil
}

func (w *Wallet) constructProofs(sigs []BlindSignature, secrets []outputSecret) (Proofs, error) {
	if len(sigs) != len(secrets) {
		return nil, oops.Errorf("mint returned %d signatures for %d outputs", len(sigs), len(secrets))
	}
	proofs := make(Proofs, len(sigs))
	for i, sig := range sigs {
		K, err := w.keyset.Key(sig.Amount)
		if err != nil {
			return nil, err
		}
		raw, err := hex.DecodeString(sig.C_)
		if err != nil {
			return nil, oops.Wrapf(err, "invalid C_ from mint")
		}
		C_, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, oops.Wrapf(err, "invalid C_ from mint")
		}
		C := UnblindSignature(C_, secrets[i].r, K)
		proofs[i] = Proof{
			ID:     sig.ID,
			Amount: sig.Amount,
			Secret: secrets[i].secret,
			C:      hex.EncodeToString(C.SerializeCompressed()),
		}
	}
	return proofs, nil
}

func randomScalar() (*btcec.PrivateKey, error) {
	var buf [32]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, oops.Wrapf(err, "failed to generate blinding factor")
		}
		var s btcec.ModNScalar
		if overflow := s.SetByteSlice(buf[:]); overflow || s.IsZero() {
			continue
		}
		priv, _ := btcec.PrivKeyFromBytes(buf[:])
		return priv, nil
	}
}
