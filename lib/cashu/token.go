package cashu

import (
	"encoding/base64"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/oops"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const tokenV3Prefix = "cashuA"

// Token is the v3 bearer token container.
type Token struct {
	Token []TokenEntry `json:"token"`
	Unit  string       `json:"unit,omitempty"`
	Memo  string       `json:"memo,omitempty"`
}

// TokenEntry groups proofs issued by one mint.
type TokenEntry struct {
	Mint   string `json:"mint"`
	Proofs Proofs `json:"proofs"`
}

// Amount is the total value across all entries.
func (t Token) Amount() uint64 {
	var total uint64
	for _, e := range t.Token {
		total += e.Proofs.Amount()
	}
	return total
}

// Encode serializes the token as cashuA followed by unpadded base64url JSON.
func (t Token) Encode() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", oops.Wrapf(err, "failed to marshal token")
	}
	return tokenV3Prefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a cashuA token. Padded and standard-alphabet base64 are
// accepted since some wallets emit them.
func DecodeToken(s string) (*Token, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "cashu:")
	if !strings.HasPrefix(s, tokenV3Prefix) {
		return nil, oops.Wrapf(ErrInvalidToken, "unsupported token version")
	}
	body := s[len(tokenV3Prefix):]
	body = strings.TrimRight(body, "=")
	body = strings.NewReplacer("+", "-", "/", "_").Replace(body)

	data, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, oops.Wrapf(ErrInvalidToken, "base64: %s", err.Error())
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, oops.Wrapf(ErrInvalidToken, "json: %s", err.Error())
	}
	if len(tok.Token) == 0 {
		return nil, oops.Wrapf(ErrInvalidToken, "token has no entries")
	}
	return &tok, nil
}
