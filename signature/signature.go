// Package signature recovers signer identities from secp256k1 signatures and
// compares them to the account owner.
//
// Two hash conventions exist and are kept apart: the native flow signs the
// canonical transaction hash directly, while the external-controller flow
// signs the operation hash wrapped in the signed-message prefix.
package signature

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mark3labs/smartaccount-go"
)

// Length is the size of an r||s||v signature.
const Length = 65

var secp256k1HalfN = new(big.Int).Rsh(crypto.S256().Params().N, 1)

// Recover returns the identity that produced sig over hash.
//
// Signatures that cannot be decoded (wrong length, v outside {27, 28}, s in the
// upper half of the curve order) or that do not recover to a curve point fail
// with ErrMalformedSignature. Only a recovered identity is ever returned.
func Recover(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != Length {
		return common.Address{}, malformed(fmt.Sprintf("signature length is %d, expected %d", len(sig), Length))
	}

	v := sig[64]
	if v != 27 && v != 28 {
		return common.Address{}, malformed(fmt.Sprintf("v is %d, expected 27 or 28", v))
	}

	s := new(big.Int).SetBytes(sig[32:64])
	if s.Cmp(secp256k1HalfN) > 0 {
		return common.Address{}, malformed("s is in the upper half order")
	}

	normalized := make([]byte, Length)
	copy(normalized, sig)
	normalized[64] = v - 27

	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, malformed(fmt.Sprintf("signature does not recover: %v", err))
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Validate reports whether sig over hash was produced by owner. A mismatch is
// not an error; the zero owner never matches.
func Validate(hash common.Hash, sig []byte, owner common.Address) (bool, error) {
	signer, err := Recover(hash, sig)
	if err != nil {
		return false, err
	}
	return signer != (common.Address{}) && signer == owner, nil
}

// ValidateNative checks a native-flow signature over signedHash as-is.
func ValidateNative(signedHash common.Hash, sig []byte, owner common.Address) (bool, error) {
	return Validate(signedHash, sig, owner)
}

// ValidateExternal checks an external-controller signature, which covers the
// prefixed form of opHash.
func ValidateExternal(opHash common.Hash, sig []byte, owner common.Address) (bool, error) {
	return Validate(EthSignedMessageHash(opHash), sig, owner)
}

func malformed(reason string) error {
	return smartaccount.NewAccountError(smartaccount.ErrCodeMalformedSignature, reason, smartaccount.ErrMalformedSignature)
}
