package signature

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mark3labs/smartaccount-go"
)

const (
	ownerKeyHex    = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	strangerKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

func mustKey(t *testing.T, hexKey string) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("failed to parse private key: %v", err)
	}
	return key
}

func sign(t *testing.T, key *ecdsa.PrivateKey, hash common.Hash) []byte {
	t.Helper()
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	sig[64] += 27
	return sig
}

func testTransaction() *smartaccount.Transaction {
	return &smartaccount.Transaction{
		TxType:                 113,
		From:                   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		To:                     common.HexToAddress("0x2222222222222222222222222222222222222222"),
		GasLimit:               big.NewInt(2),
		GasPerPubdataByteLimit: big.NewInt(800),
		MaxFeePerGas:           big.NewInt(3),
		MaxPriorityFeePerGas:   big.NewInt(1),
		Nonce:                  big.NewInt(5),
		Value:                  big.NewInt(2),
		Data:                   []byte{0xde, 0xad, 0xbe, 0xef},
		FactoryDeps:            []common.Hash{common.HexToHash("0x01")},
	}
}

func TestRecover(t *testing.T) {
	key := mustKey(t, ownerKeyHex)
	hash := crypto.Keccak256Hash([]byte("operation"))
	sig := sign(t, key, hash)

	signer, err := Recover(hash, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := crypto.PubkeyToAddress(key.PublicKey); signer != want {
		t.Errorf("expected signer %s, got %s", want.Hex(), signer.Hex())
	}
}

func TestRecover_Malformed(t *testing.T) {
	key := mustKey(t, ownerKeyHex)
	hash := crypto.Keccak256Hash([]byte("operation"))
	valid := sign(t, key, hash)

	badV := append([]byte(nil), valid...)
	badV[64] = 1

	// flip s into the upper half of the order
	highS := append([]byte(nil), valid...)
	s := new(big.Int).SetBytes(valid[32:64])
	s.Sub(crypto.S256().Params().N, s)
	copy(highS[32:64], common.LeftPadBytes(s.Bytes(), 32))
	highS[64] ^= 1

	tests := []struct {
		name string
		sig  []byte
	}{
		{name: "empty", sig: nil},
		{name: "short", sig: valid[:64]},
		{name: "long", sig: append(append([]byte(nil), valid...), 0)},
		{name: "v not 27 or 28", sig: badV},
		{name: "high s", sig: highS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Recover(hash, tt.sig)
			if !errors.Is(err, smartaccount.ErrMalformedSignature) {
				t.Errorf("expected ErrMalformedSignature, got %v", err)
			}
		})
	}
}

func TestRecover_UnrecoverablePoint(t *testing.T) {
	// r = s = 0 is well-formed but has no curve point behind it
	sig := make([]byte, Length)
	sig[64] = 27

	signer, err := Recover(common.Hash{0x01}, sig)
	if !errors.Is(err, smartaccount.ErrMalformedSignature) {
		t.Errorf("expected ErrMalformedSignature, got %v", err)
	}
	if signer != (common.Address{}) {
		t.Errorf("expected zero address, got %s", signer.Hex())
	}

	ok, err := Validate(common.Hash{0x01}, sig, common.HexToAddress("0x1111111111111111111111111111111111111111"))
	if ok || !errors.Is(err, smartaccount.ErrMalformedSignature) {
		t.Errorf("expected hard failure from Validate, got ok=%v err=%v", ok, err)
	}
}

func TestValidate(t *testing.T) {
	owner := mustKey(t, ownerKeyHex)
	stranger := mustKey(t, strangerKeyHex)
	ownerAddr := crypto.PubkeyToAddress(owner.PublicKey)
	hash := crypto.Keccak256Hash([]byte("operation"))

	ok, err := Validate(hash, sign(t, owner, hash), ownerAddr)
	if err != nil || !ok {
		t.Errorf("expected owner signature to match, got ok=%v err=%v", ok, err)
	}

	ok, err = Validate(hash, sign(t, stranger, hash), ownerAddr)
	if err != nil {
		t.Errorf("expected mismatch without error, got %v", err)
	}
	if ok {
		t.Error("expected stranger signature not to match")
	}

	zeroSig := make([]byte, Length)
	zeroSig[64] = 27
	ok, err = Validate(hash, zeroSig, common.Address{})
	if err != nil || ok {
		t.Errorf("expected zero owner never to match, got ok=%v err=%v", ok, err)
	}
}

func TestHashConventionsAreDistinct(t *testing.T) {
	owner := mustKey(t, ownerKeyHex)
	ownerAddr := crypto.PubkeyToAddress(owner.PublicKey)
	opHash := crypto.Keccak256Hash([]byte("user operation"))

	rawSig := sign(t, owner, opHash)
	prefixedSig := sign(t, owner, EthSignedMessageHash(opHash))

	if ok, _ := ValidateNative(opHash, rawSig, ownerAddr); !ok {
		t.Error("expected raw signature to pass the native convention")
	}
	if ok, _ := ValidateExternal(opHash, rawSig, ownerAddr); ok {
		t.Error("expected raw signature to fail the external convention")
	}
	if ok, _ := ValidateExternal(opHash, prefixedSig, ownerAddr); !ok {
		t.Error("expected prefixed signature to pass the external convention")
	}
	if ok, _ := ValidateNative(opHash, prefixedSig, ownerAddr); ok {
		t.Error("expected prefixed signature to fail the native convention")
	}
}

func TestEthSignedMessageHash(t *testing.T) {
	hash := common.HexToHash("0x1234")
	prefix := []byte("\x19Ethereum Signed Message:\n32")
	want := crypto.Keccak256Hash(append(prefix, hash.Bytes()...))

	if got := EthSignedMessageHash(hash); got != want {
		t.Errorf("expected %s, got %s", want.Hex(), got.Hex())
	}
}

func TestTransactionHash(t *testing.T) {
	tx := testTransaction()
	chainID := big.NewInt(324)

	h1, err := TransactionHash(tx, chainID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := TransactionHash(tx, chainID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Error("expected hash to be deterministic")
	}
	if h1 == (common.Hash{}) {
		t.Error("expected non-zero hash")
	}

	t.Run("signature is not covered", func(t *testing.T) {
		signed := *tx
		signed.Signature = make([]byte, Length)
		h, err := TransactionHash(&signed, chainID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h != h1 {
			t.Error("expected signature to be excluded from the hash")
		}
	})

	t.Run("nonce is covered", func(t *testing.T) {
		next := *tx
		next.Nonce = big.NewInt(6)
		h, err := TransactionHash(&next, chainID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h == h1 {
			t.Error("expected different nonce to change the hash")
		}
	})

	t.Run("chain id is covered", func(t *testing.T) {
		h, err := TransactionHash(tx, big.NewInt(1))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h == h1 {
			t.Error("expected different chain id to change the hash")
		}
	})

	t.Run("nil fields hash as zero", func(t *testing.T) {
		if _, err := TransactionHash(&smartaccount.Transaction{}, chainID); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("nil transaction", func(t *testing.T) {
		if _, err := TransactionHash(nil, chainID); !errors.Is(err, smartaccount.ErrInvalidOperation) {
			t.Errorf("expected ErrInvalidOperation, got %v", err)
		}
	})
}
