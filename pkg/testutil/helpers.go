// Package testutil provides shared fixtures for engine, codec and server
// tests: generated keys, a fixed test domain, and signed authorizations.
package testutil

import (
	"crypto/ecdsa"
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/grantmike/EIPs/pkg/codec"
	"github.com/grantmike/EIPs/pkg/signer"
	"github.com/grantmike/EIPs/pkg/types"
)

// TestChainID is the devnet chain id used across tests.
var TestChainID = big.NewInt(31337)

// TestTokenAddress is a fixed verifying contract address for tests.
var TestTokenAddress = common.HexToAddress("0x1000000000000000000000000000000000000001")

// NewSignerKey generates a fresh secp256k1 key.
func NewSignerKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

// TestDomainSeparator returns the domain tag all test signatures bind to.
func TestDomainSeparator(t *testing.T) common.Hash {
	t.Helper()
	ds, err := codec.DomainSeparator("Test Coin", "1", TestChainID, TestTokenAddress)
	require.NoError(t, err)
	return ds
}

// RandomNonce returns a fresh random nonce.
func RandomNonce(t *testing.T) types.Nonce {
	t.Helper()
	var n types.Nonce
	_, err := rand.Read(n[:])
	require.NoError(t, err)
	return n
}

// NewAuthorization builds a record from the given key's address, valid
// from the epoch until an hour past now.
func NewAuthorization(t *testing.T, key *ecdsa.PrivateKey, to common.Address, value, relayerValue int64) *types.Authorization {
	t.Helper()
	return &types.Authorization{
		From:         signer.AddressOf(key),
		To:           to,
		Value:        big.NewInt(value),
		RelayerValue: big.NewInt(relayerValue),
		ValidAfter:   big.NewInt(0),
		ValidBefore:  big.NewInt(time.Now().Add(time.Hour).Unix()),
		Nonce:        RandomNonce(t),
	}
}

// SignAuthorization signs the record's digest under the given domain tag.
func SignAuthorization(t *testing.T, key *ecdsa.PrivateKey, domainSeparator common.Hash, auth *types.Authorization) []byte {
	t.Helper()
	digest, err := codec.Digest(domainSeparator, auth)
	require.NoError(t, err)
	sig, err := signer.SignDigest(digest, key)
	require.NoError(t, err)
	return sig
}
