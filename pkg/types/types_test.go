package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceHexRoundTrip(t *testing.T) {
	n := Nonce{0x01, 0x02, 0xff}

	parsed, err := NonceFromHex(n.Hex())
	require.NoError(t, err)
	assert.Equal(t, n, parsed)
}

func TestNonceFromHex_Invalid(t *testing.T) {
	for _, s := range []string{"", "0x", "0x0102", "not hex"} {
		_, err := NonceFromHex(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestNonceFromHex_AcceptsBarePrefix(t *testing.T) {
	raw := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	withPrefix, err := NonceFromHex("0x" + raw)
	require.NoError(t, err)
	withoutPrefix, err := NonceFromHex(raw)
	require.NoError(t, err)

	assert.Equal(t, withPrefix, withoutPrefix)
}
