package cashu

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

const (
	mintUserAgent   = "nostr-onion/0.1"
	maxResponseSize = 4 << 20
)

// Quote states reported by NUT-04 mints.
const (
	QuoteUnpaid = "UNPAID"
	QuotePaid   = "PAID"
	QuoteIssued = "ISSUED"
)

// Keyset is an active mint keyset with its public key per amount.
type Keyset struct {
	ID   string            `json:"id"`
	Unit string            `json:"unit"`
	Keys map[string]string `json:"keys"`
}

// Key returns the mint public key that signs the given amount.
func (k Keyset) Key(amount uint64) (*btcec.PublicKey, error) {
	hexKey, ok := k.Keys[strconv.FormatUint(amount, 10)]
	if !ok {
		return nil, oops.Errorf("keyset %s has no key for amount %d", k.ID, amount)
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, oops.Wrapf(err, "keyset %s key for %d", k.ID, amount)
	}
	return btcec.ParsePubKey(raw)
}

// BlindedMessage is an output sent to the mint for signing.
type BlindedMessage struct {
	Amount uint64 `json:"amount"`
	ID     string `json:"id"`
	B_     string `json:"B_"`
}

// BlindSignature is the mint's signature on a BlindedMessage.
type BlindSignature struct {
	Amount uint64 `json:"amount"`
	ID     string `json:"id"`
	C_     string `json:"C_"`
}

// MintQuote is a bolt11 mint quote. Older mints report Paid instead of State.
type MintQuote struct {
	Quote   string `json:"quote"`
	Request string `json:"request"`
	State   string `json:"state,omitempty"`
	Paid    bool   `json:"paid,omitempty"`
	Expiry  int64  `json:"expiry,omitempty"`
}

// IsPaid reports whether the invoice behind the quote was paid.
func (q *MintQuote) IsPaid() bool {
	return q.Paid || q.State == QuotePaid || q.State == QuoteIssued
}

// MintError is the error body returned by a mint.
type MintError struct {
	Detail string `json:"detail"`
	Code   int    `json:"code"`
	Status int    `json:"-"`
}

func (e *MintError) Error() string {
	return fmt.Sprintf("mint error %d (http %d): %s", e.Code, e.Status, e.Detail)
}

// MintClient talks to the v1 HTTP API of a single mint.
type MintClient struct {
	baseURL string
	client  *http.Client
}

// NewMintClient returns a client for the mint at baseURL.
func NewMintClient(baseURL string, timeout time.Duration) *MintClient {
	return &MintClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  createMintHTTPClient(timeout),
	}
}

// URL returns the mint URL used in tokens.
func (c *MintClient) URL() string { return c.baseURL }

func createMintHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			Proxy:           http.ProxyFromEnvironment,
		},
	}
}

// GetKeys fetches the active keysets.
func (c *MintClient) GetKeys(ctx context.Context) ([]Keyset, error) {
	var resp struct {
		Keysets []Keyset `json:"keysets"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/keys", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keysets, nil
}

// RequestMintQuote asks for a Lightning invoice worth amount.
func (c *MintClient) RequestMintQuote(ctx context.Context, amount uint64, unit string) (*MintQuote, error) {
	req := struct {
		Amount uint64 `json:"amount"`
		Unit   string `json:"unit"`
	}{amount, unit}
	var quote MintQuote
	if err := c.do(ctx, http.MethodPost, "/v1/mint/quote/bolt11", req, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// CheckMintQuote returns the current state of a quote.
func (c *MintClient) CheckMintQuote(ctx context.Context, id string) (*MintQuote, error) {
	var quote MintQuote
	if err := c.do(ctx, http.MethodGet, "/v1/mint/quote/bolt11/"+id, nil, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// Mint exchanges a paid quote for signatures on outputs.
func (c *MintClient) Mint(ctx context.Context, quote string, outputs []BlindedMessage) ([]BlindSignature, error) {
	req := struct {
		Quote   string           `json:"quote"`
		Outputs []BlindedMessage `json:"outputs"`
	}{quote, outputs}
	var resp struct {
		Signatures []BlindSignature `json:"signatures"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/mint/bolt11", req, &resp); err != nil {
		return nil, err
	}
	return resp.Signatures, nil
}

// Swap spends inputs and returns signatures on outputs of equal total.
func (c *MintClient) Swap(ctx context.Context, inputs Proofs, outputs []BlindedMessage) ([]BlindSignature, error) {
	req := struct {
		Inputs  Proofs           `json:"inputs"`
		Outputs []BlindedMessage `json:"outputs"`
	}{inputs, outputs}
	var resp struct {
		Signatures []BlindSignature `json:"signatures"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/swap", req, &resp); err != nil {
		return nil, err
	}
	return resp.Signatures, nil
}

func (c *MintClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	req, err := c.buildMintHTTPRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"at":     "MintClient.do",
		"method": method,
		"url":    req.URL.String(),
	}).Debug("mint request")

	resp, err := c.client.Do(req)
	if err != nil {
		return oops.In("cashu").With("url", req.URL.String()).Wrapf(err, "mint request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return oops.Wrapf(err, "failed to read mint response")
	}
	if err := validateMintResponse(resp, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return oops.In("cashu").With("path", path).Wrapf(err, "malformed mint response")
	}
	return nil
}

func (c *MintClient) buildMintHTTPRequest(ctx context.Context, method, path string, in interface{}) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, oops.Wrapf(err, "failed to encode mint request")
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, oops.Wrapf(err, "invalid mint request")
	}
	req.Header.Set("User-Agent", mintUserAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// validateMintResponse turns non-2xx responses into *MintError.
func validateMintResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	mintErr := &MintError{Status: resp.StatusCode}
	if err := json.Unmarshal(body, mintErr); err != nil || mintErr.Detail == "" {
		mintErr.Detail = strings.TrimSpace(string(body))
		if mintErr.Detail == "" {
			mintErr.Detail = http.StatusText(resp.StatusCode)
		}
	}
	return mintErr
}
