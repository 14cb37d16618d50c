// Package piv manages keys and certificates on the PIV applet of a
// security token.
package piv

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"
)

// ErrUnsupportedKeyType is returned when a key or a device-reported code
// does not match any supported key type. Matching never falls back to a
// default.
var ErrUnsupportedKeyType = errors.New("piv: unsupported key type")

// KeyType identifies an asymmetric key type the applet can hold. The
// numeric values are the algorithm codes used on the wire.
type KeyType uint8

const (
	RSA1024 KeyType = 0x06
	RSA2048 KeyType = 0x07
	ECCP256 KeyType = 0x11
	ECCP384 KeyType = 0x14
)

// Algorithm is a key algorithm family.
type Algorithm uint8

const (
	AlgorithmRSA Algorithm = iota + 1
	AlgorithmEC
)

// KeyParams are the parameters defining a KeyType. RSA types are
// identified by modulus bit length alone. EC types additionally carry the
// Weierstrass curve coefficients: two curves can share a field size, so
// bit length alone must never identify a curve.
type KeyParams struct {
	Algorithm Algorithm
	BitLength int

	curveA *big.Int
	curveB *big.Int
}

// keyTypes lists the supported types in matching order: the first type
// whose parameters exactly match a key wins.
var keyTypes = []struct {
	keyType KeyType
	params  KeyParams
}{
	{RSA1024, KeyParams{Algorithm: AlgorithmRSA, BitLength: 1024}},
	{RSA2048, KeyParams{Algorithm: AlgorithmRSA, BitLength: 2048}},
	{ECCP256, ecParams(256,
		"115792089210356248762697446949407573530086143415290314195533631308867097853948",
		"41058363725152142129326129780047268409114441015993725554835256314039467401291",
	)},
	{ECCP384, ecParams(384,
		"39402006196394479212279040100143613805079739270465446667948293404245721771496870329047266088258938001861606973112316",
		"27580193559959705877849011840389048093056905856361568521428707301988689241309860865136260764883745107765439761230575",
	)},
}

func ecParams(bitLength int, a, b string) KeyParams {
	curveA, ok := new(big.Int).SetString(a, 10)
	if !ok {
		panic("piv: bad curve coefficient " + a)
	}
	curveB, ok := new(big.Int).SetString(b, 10)
	if !ok {
		panic("piv: bad curve coefficient " + b)
	}
	return KeyParams{Algorithm: AlgorithmEC, BitLength: bitLength, curveA: curveA, curveB: curveB}
}

// KeyTypeFromCode resolves a device-reported key type code against the
// closed set of supported types.
func KeyTypeFromCode(code uint8) (KeyType, error) {
	for _, kt := range keyTypes {
		if kt.keyType == KeyType(code) {
			return kt.keyType, nil
		}
	}
	return 0, fmt.Errorf("%w: code 0x%02x", ErrUnsupportedKeyType, code)
}

// KeyTypeForKey matches a public key against the supported types in
// declared order and returns the first exact match.
func KeyTypeForKey(key crypto.PublicKey) (KeyType, error) {
	for _, kt := range keyTypes {
		if kt.params.matches(key) {
			return kt.keyType, nil
		}
	}
	return 0, ErrUnsupportedKeyType
}

// Params returns the defining parameters of the key type.
func (t KeyType) Params() KeyParams {
	for _, kt := range keyTypes {
		if kt.keyType == t {
			return kt.params
		}
	}
	return KeyParams{}
}

// String implements the fmt.Stringer interface.
func (t KeyType) String() string {
	switch t {
	case RSA1024:
		return "RSA1024"
	case RSA2048:
		return "RSA2048"
	case ECCP256:
		return "ECCP256"
	case ECCP384:
		return "ECCP384"
	}
	return fmt.Sprintf("KeyType(0x%02x)", uint8(t))
}

func (p KeyParams) matches(key crypto.PublicKey) bool {
	switch p.Algorithm {
	case AlgorithmRSA:
		k, ok := key.(*rsa.PublicKey)
		return ok && k.N.BitLen() == p.BitLength

	case AlgorithmEC:
		k, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return false
		}
		curve := k.Curve.Params()
		if curve.BitSize != p.BitLength {
			return false
		}
		// crypto/elliptic fixes a = -3 mod p without exposing it; the
		// reconstructed coefficient still has to equal ours exactly, so a
		// foreign curve that merely shares the field size is rejected.
		a := new(big.Int).Sub(curve.P, big.NewInt(3))
		return a.Cmp(p.curveA) == 0 && curve.B.Cmp(p.curveB) == 0
	}

	return false
}
