package evm

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// DefaultBasePath is the BIP44 Ethereum account path; the account index is
// appended as the last component.
const DefaultBasePath = "m/44'/60'/0'/0"

// WithKeystore loads the owner key from an encrypted V3 keystore file.
func WithKeystore(keystorePath, password string) SignerOption {
	return func(s *Signer) error {
		data, err := os.ReadFile(keystorePath)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidKeystore, err)
		}

		key, err := keystore.DecryptKey(data, password)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidKeystore, err)
		}

		s.privateKey = key.PrivateKey
		return nil
	}
}

// WithMnemonic derives the owner key from a BIP39 mnemonic at
// DefaultBasePath/{accountIndex}, without a passphrase.
func WithMnemonic(mnemonic string, accountIndex uint32) SignerOption {
	return WithDerivationPath(mnemonic, "", fmt.Sprintf("%s/%d", DefaultBasePath, accountIndex))
}

// WithDerivationPath derives the owner key from a BIP39 mnemonic, an optional
// passphrase and an explicit derivation path such as "m/44'/60'/0'/0/3".
func WithDerivationPath(mnemonic, passphrase, path string) SignerOption {
	return func(s *Signer) error {
		if !bip39.IsMnemonicValid(mnemonic) {
			return ErrInvalidMnemonic
		}

		parsed, err := accounts.ParseDerivationPath(path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
		}

		key, err := bip32.NewMasterKey(bip39.NewSeed(mnemonic, passphrase))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
		}
		for _, child := range parsed {
			if key, err = key.NewChildKey(child); err != nil {
				return fmt.Errorf("%w: derive %s: %v", ErrInvalidMnemonic, parsed, err)
			}
		}

		privateKey, err := crypto.ToECDSA(key.Key)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
		}
		s.privateKey = privateKey
		return nil
	}
}
