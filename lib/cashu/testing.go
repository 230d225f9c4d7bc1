package cashu

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
)

// TestMint is an in-process mint for tests. It signs with real keys so
// proofs it issues verify, and it marks quotes paid only on request.
type TestMint struct {
	Server   *httptest.Server
	KeysetID string

	mu        sync.Mutex
	keys      map[uint64]*btcec.PrivateKey
	quotes    map[string]*MintQuote
	amounts   map[string]uint64
	spent     map[string]bool
	swapCalls int
}

// NewTestMint starts a mint with keys for every power of two up to 2^20.
func NewTestMint() *TestMint {
	m := &TestMint{
		KeysetID: "00ad268c4d1f5826",
		keys:     make(map[uint64]*btcec.PrivateKey),
		quotes:   make(map[string]*MintQuote),
		amounts:  make(map[string]uint64),
		spent:    make(map[string]bool),
	}
	for i := 0; i <= 20; i++ {
		k, err := randomScalar()
		if err != nil {
			panic(err)
		}
		m.keys[1<<i] = k
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/keys", m.handleKeys)
	mux.HandleFunc("POST /v1/mint/quote/bolt11", m.handleQuote)
	mux.HandleFunc("GET /v1/mint/quote/bolt11/{id}", m.handleCheck)
	mux.HandleFunc("POST /v1/mint/bolt11", m.handleMint)
	mux.HandleFunc("POST /v1/swap", m.handleSwap)
	m.Server = httptest.NewServer(mux)
	return m
}

// URL of the mint.
func (m *TestMint) URL() string { return m.Server.URL }

// Close stops the server.
func (m *TestMint) Close() { m.Server.Close() }

// MarkPaid flags a quote as paid.
func (m *TestMint) MarkPaid(quote string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.quotes[quote]; ok {
		q.State = QuotePaid
	}
}

// SwapCalls returns how many swaps the mint has performed.
func (m *TestMint) SwapCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swapCalls
}

// Verify reports whether p was issued by this mint.
func (m *TestMint) Verify(p Proof) bool {
	k, ok := m.keys[p.Amount]
	if !ok {
		return false
	}
	raw, err := hex.DecodeString(p.C)
	if err != nil {
		return false
	}
	C, err := btcec.ParsePubKey(raw)
	if err != nil {
		return false
	}
	return VerifyProof([]byte(p.Secret), C, k)
}

func (m *TestMint) handleKeys(w http.ResponseWriter, r *http.Request) {
	keys := make(map[string]string, len(m.keys))
	for amount, k := range m.keys {
		keys[strconv.FormatUint(amount, 10)] = hex.EncodeToString(k.PubKey().SerializeCompressed())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keysets": []Keyset{{ID: m.KeysetID, Unit: "sat", Keys: keys}},
	})
}

func (m *TestMint) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount uint64 `json:"amount"`
		Unit   string `json:"unit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount == 0 {
		writeJSON(w, http.StatusBadRequest, MintError{Detail: "bad quote request", Code: 10000})
		return
	}
	id := uuid.NewString()
	quote := &MintQuote{Quote: id, Request: "lnbc" + strconv.FormatUint(req.Amount, 10) + "n1test", State: QuoteUnpaid}
	m.mu.Lock()
	m.quotes[id] = quote
	m.amounts[id] = req.Amount
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, quote)
}

func (m *TestMint) handleCheck(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, MintError{Detail: "quote not found", Code: 20007})
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (m *TestMint) handleMint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quote   string           `json:"quote"`
		Outputs []BlindedMessage `json:"outputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MintError{Detail: err.Error(), Code: 10000})
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[req.Quote]
	if !ok || q.State != QuotePaid {
		writeJSON(w, http.StatusBadRequest, MintError{Detail: "quote not paid", Code: 20001})
		return
	}
	if outputsAmount(req.Outputs) != m.amounts[req.Quote] {
		writeJSON(w, http.StatusBadRequest, MintError{Detail: "amount mismatch", Code: 11002})
		return
	}
	sigs, err := m.sign(req.Outputs)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, MintError{Detail: err.Error(), Code: 10002})
		return
	}
	q.State = QuoteIssued
	writeJSON(w, http.StatusOK, map[string]interface{}{"signatures": sigs})
}

func (m *TestMint) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Inputs  Proofs           `json:"inputs"`
		Outputs []BlindedMessage `json:"outputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MintError{Detail: err.Error(), Code: 10000})
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range req.Inputs {
		if m.spent[p.Secret] {
			writeJSON(w, http.StatusBadRequest, MintError{Detail: "proof already spent", Code: 11001})
			return
		}
		if !m.Verify(p) {
			writeJSON(w, http.StatusBadRequest, MintError{Detail: "invalid proof", Code: 10003})
			return
		}
	}
	if req.Inputs.Amount() != outputsAmount(req.Outputs) {
		writeJSON(w, http.StatusBadRequest, MintError{Detail: "inputs and outputs do not balance", Code: 11002})
		return
	}
	sigs, err := m.sign(req.Outputs)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, MintError{Detail: err.Error(), Code: 10002})
		return
	}
	for _, p := range req.Inputs {
		m.spent[p.Secret] = true
	}
	m.swapCalls++
	writeJSON(w, http.StatusOK, map[string]interface{}{"signatures": sigs})
}

func (m *TestMint) sign(outputs []BlindedMessage) ([]BlindSignature, error) {
	sigs := make([]BlindSignature, len(outputs))
	for i, out := range outputs {
		k, ok := m.keys[out.Amount]
		if !ok {
			return nil, &MintError{Detail: "unsupported amount", Code: 10002}
		}
		raw, err := hex.DecodeString(out.B_)
		if err != nil {
			return nil, err
		}
		B, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, err
		}
		C_ := SignBlinded(B, k)
		sigs[i] = BlindSignature{Amount: out.Amount, ID: m.KeysetID, C_: hex.EncodeToString(C_.SerializeCompressed())}
	}
	return sigs, nil
}

func outputsAmount(outputs []BlindedMessage) uint64 {
	var total uint64
	for _, o := range outputs {
		total += o.Amount
	}
	return total
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
