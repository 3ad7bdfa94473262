// Package codec derives the typed-data digest an authorizer signs over.
//
// The scheme is the standard structured-data hashing construction:
//
//	digest = keccak256(0x19 || 0x01 || domainSeparator || structHash)
//
// where structHash is the keccak256 of the ABI-encoded authorization fields
// prefixed with the type hash of the canonical schema string. Everything
// here is a pure function of its inputs; the same record and domain tag
// always produce the same digest, which is what signature verification and
// cross-implementation compatibility rest on.
package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/grantmike/EIPs/pkg/types"
)

// TransferWithAuthorizationSchema is the canonical schema string. The type
// hash must be recomputed from this string, never pasted as a literal, so
// that it matches bit-for-bit what existing signers produce.
const TransferWithAuthorizationSchema = "PermissionlessTransferWithAuthorization(address from,address to,uint256 value,uint256 relayerValue,uint256 validAfter,uint256 validBefore,bytes32 nonce)"

// EIP712DomainSchema is the canonical domain schema string.
const EIP712DomainSchema = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"

var (
	// TransferWithAuthorizationTypeHash is keccak256 of the schema string.
	TransferWithAuthorizationTypeHash = crypto.Keccak256Hash([]byte(TransferWithAuthorizationSchema))

	// EIP712DomainTypeHash is keccak256 of the domain schema string.
	EIP712DomainTypeHash = crypto.Keccak256Hash([]byte(EIP712DomainSchema))

	structArguments abi.Arguments
	domainArguments abi.Arguments
)

func init() {
	bytes32Type, _ := abi.NewType("bytes32", "", nil)
	addressType, _ := abi.NewType("address", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)

	structArguments = abi.Arguments{
		{Type: bytes32Type}, // type hash
		{Type: addressType}, // from
		{Type: addressType}, // to
		{Type: uint256Type}, // value
		{Type: uint256Type}, // relayerValue
		{Type: uint256Type}, // validAfter
		{Type: uint256Type}, // validBefore
		{Type: bytes32Type}, // nonce
	}

	domainArguments = abi.Arguments{
		{Type: bytes32Type}, // domain type hash
		{Type: bytes32Type}, // keccak256(name)
		{Type: bytes32Type}, // keccak256(version)
		{Type: uint256Type}, // chainId
		{Type: addressType}, // verifyingContract
	}
}

// DomainSeparator computes the 32-byte domain tag binding signatures to a
// specific token deployment (name, version, chain, contract address).
func DomainSeparator(name, version string, chainID *big.Int, verifyingContract common.Address) (common.Hash, error) {
	if err := checkUint256("chainId", chainID); err != nil {
		return common.Hash{}, err
	}

	encoded, err := domainArguments.Pack(
		[32]byte(EIP712DomainTypeHash),
		[32]byte(crypto.Keccak256Hash([]byte(name))),
		[32]byte(crypto.Keccak256Hash([]byte(version))),
		chainID,
		verifyingContract,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode domain: %w", err)
	}

	return crypto.Keccak256Hash(encoded), nil
}

// StructHash ABI-encodes the authorization fields in schema order, prefixed
// with the type hash, and hashes the concatenation. Values outside the
// unsigned 256-bit range fail encoding rather than silently wrapping.
func StructHash(auth *types.Authorization) (common.Hash, error) {
	if auth == nil {
		return common.Hash{}, fmt.Errorf("authorization is nil")
	}
	if err := checkUint256("value", auth.Value); err != nil {
		return common.Hash{}, err
	}
	if err := checkUint256("relayerValue", auth.RelayerValue); err != nil {
		return common.Hash{}, err
	}
	if err := checkUint256("validAfter", auth.ValidAfter); err != nil {
		return common.Hash{}, err
	}
	if err := checkUint256("validBefore", auth.ValidBefore); err != nil {
		return common.Hash{}, err
	}

	encoded, err := structArguments.Pack(
		[32]byte(TransferWithAuthorizationTypeHash),
		auth.From,
		auth.To,
		auth.Value,
		auth.RelayerValue,
		auth.ValidAfter,
		auth.ValidBefore,
		[32]byte(auth.Nonce),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode authorization: %w", err)
	}

	return crypto.Keccak256Hash(encoded), nil
}

// Digest combines the domain tag and struct hash into the final 32-byte
// digest to be signed and recovered against.
func Digest(domainSeparator common.Hash, auth *types.Authorization) (common.Hash, error) {
	structHash, err := StructHash(auth)
	if err != nil {
		return common.Hash{}, err
	}

	return crypto.Keccak256Hash(
		[]byte{0x19, 0x01},
		domainSeparator.Bytes(),
		structHash.Bytes(),
	), nil
}

func checkUint256(field string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%s is nil", field)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%s is negative: %s", field, v)
	}
	if v.BitLen() > 256 {
		return fmt.Errorf("%s does not fit in 256 bits", field)
	}
	return nil
}
