package cashu

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/samber/oops"
)

const domainSeparator = "Secp256k1_HashToCurve_Cashu_"

// HashToCurve maps a secret to a curve point Y (NUT-00).
func HashToCurve(secret []byte) (*btcec.PublicKey, error) {
	msgHash := sha256.Sum256(append([]byte(domainSeparator), secret...))
	var counter [4]byte
	for i := uint32(0); i < 1<<16; i++ {
		binary.LittleEndian.PutUint32(counter[:], i)
		h := sha256.New()
		h.Write(msgHash[:])
		h.Write(counter[:])
		candidate := append([]byte{0x02}, h.Sum(nil)...)
		if pub, err := btcec.ParsePubKey(candidate); err == nil {
			return pub, nil
		}
	}
	return nil, oops.Errorf("no valid point found for secret")
}

// BlindMessage returns B_ = Y + rG for the secret and blinding factor r.
func BlindMessage(secret []byte, r *btcec.PrivateKey) (*btcec.PublicKey, error) {
	Y, err := HashToCurve(secret)
	if err != nil {
		return nil, err
	}
	var y, rG, sum btcec.JacobianPoint
	Y.AsJacobian(&y)
	btcec.ScalarBaseMultNonConst(&r.Key, &rG)
	btcec.AddNonConst(&y, &rG, &sum)
	return toAffine(&sum), nil
}

// SignBlinded returns C_ = kB_. This is the mint's half of the scheme.
func SignBlinded(B *btcec.PublicKey, k *btcec.PrivateKey) *btcec.PublicKey {
	var b, out btcec.JacobianPoint
	B.AsJacobian(&b)
	btcec.ScalarMultNonConst(&k.Key, &b, &out)
	return toAffine(&out)
}

// UnblindSignature returns C = C_ - rK.
func UnblindSignature(C_ *btcec.PublicKey, r *btcec.PrivateKey, K *btcec.PublicKey) *btcec.PublicKey {
	var c, k, rK, out btcec.JacobianPoint
	C_.AsJacobian(&c)
	K.AsJacobian(&k)
	btcec.ScalarMultNonConst(&r.Key, &k, &rK)
	rK.Y.Normalize().Negate(1).Normalize()
	btcec.AddNonConst(&c, &rK, &out)
	return toAffine(&out)
}

// VerifyProof checks C == kY for a secret. Only the holder of k can do this.
func VerifyProof(secret []byte, C *btcec.PublicKey, k *btcec.PrivateKey) bool {
	Y, err := HashToCurve(secret)
	if err != nil {
		return false
	}
	return SignBlinded(Y, k).IsEqual(C)
}

func toAffine(p *btcec.JacobianPoint) *btcec.PublicKey {
	p.ToAffine()
	return btcec.NewPublicKey(&p.X, &p.Y)
}
