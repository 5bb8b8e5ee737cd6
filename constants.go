// Package smartaccount provides the shared types, well-known identities and
// error definitions of a programmable owner-controlled account. The account
// itself lives in the account package; the components it orchestrates live in
// guard, signature, settlement and dispatch.
package smartaccount

import "github.com/ethereum/go-ethereum/common"

// Well-known system identities.
var (
	// BootloaderAddress is the native-flow controller and the default fee collector.
	BootloaderAddress = common.HexToAddress("0x0000000000000000000000000000000000008001")

	// ContractDeployerAddress is the privileged system destination.
	ContractDeployerAddress = common.HexToAddress("0x0000000000000000000000000000000000008006")

	// NonceHolderAddress is the system nonce coordinator.
	NonceHolderAddress = common.HexToAddress("0x0000000000000000000000000000000000008003")

	// EntryPointAddress is the canonical external-controller entry point.
	EntryPointAddress = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
)

// DefaultChainID is used when no chain id is configured.
const DefaultChainID = 324
