// Package evm provides the owner-side signer that produces signatures the
// smart account accepts in either flow.
package evm

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mark3labs/smartaccount-go"
	"github.com/mark3labs/smartaccount-go/signature"
)

var (
	// ErrInvalidKey indicates a missing or unparsable private key.
	ErrInvalidKey = errors.New("invalid private key")

	// ErrInvalidKeystore indicates a keystore file that cannot be read or decrypted.
	ErrInvalidKeystore = errors.New("invalid keystore")

	// ErrInvalidMnemonic indicates a mnemonic that fails BIP39 validation.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrSigningFailed indicates the signing primitive failed.
	ErrSigningFailed = errors.New("signing failed")
)

// Signer signs operations for one owner key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// SignerOption configures a Signer.
type SignerOption func(*Signer) error

// NewSigner creates a new owner signer with the given options.
func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{
		chainID: big.NewInt(smartaccount.DefaultChainID),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.privateKey == nil {
		return nil, ErrInvalidKey
	}

	s.address = crypto.PubkeyToAddress(s.privateKey.PublicKey)
	return s, nil
}

// WithPrivateKey sets the private key from a hex string.
func WithPrivateKey(hexKey string) SignerOption {
	return func(s *Signer) error {
		hexKey = strings.TrimPrefix(hexKey, "0x")

		privateKey, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			return ErrInvalidKey
		}

		s.privateKey = privateKey
		return nil
	}
}

// WithECDSAKey sets an already parsed private key.
func WithECDSAKey(key *ecdsa.PrivateKey) SignerOption {
	return func(s *Signer) error {
		if key == nil {
			return ErrInvalidKey
		}
		s.privateKey = key
		return nil
	}
}

// WithChainID sets the chain id covered by native transaction signatures.
func WithChainID(chainID *big.Int) SignerOption {
	return func(s *Signer) error {
		if chainID == nil || chainID.Sign() <= 0 {
			return fmt.Errorf("chain id must be positive")
		}
		s.chainID = new(big.Int).Set(chainID)
		return nil
	}
}

// Address returns the owner address.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignHash signs hash as-is and returns r||s||v with v in {27, 28}.
func (s *Signer) SignHash(hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	// Adjust v value for Ethereum (27 or 28)
	sig[64] += 27
	return sig, nil
}

// SignTransaction signs the canonical hash of a native transaction and stores
// the signature on tx.
func (s *Signer) SignTransaction(tx *smartaccount.Transaction) ([]byte, error) {
	hash, err := signature.TransactionHash(tx, s.chainID)
	if err != nil {
		return nil, err
	}
	sig, err := s.SignHash(hash)
	if err != nil {
		return nil, err
	}
	tx.Signature = sig
	return sig, nil
}

// SignUserOperation signs the prefixed form of opHash and stores the
// signature on op.
func (s *Signer) SignUserOperation(op *smartaccount.UserOperation, opHash common.Hash) ([]byte, error) {
	sig, err := s.SignHash(signature.EthSignedMessageHash(opHash))
	if err != nil {
		return nil, err
	}
	if op != nil {
		op.Signature = sig
	}
	return sig, nil
}
