package clarity

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestC32Address(t *testing.T) {
	hash, err := hex.DecodeString("a46ff88886c2ef9762d970b4d2c63678835bd39d")
	require.NoError(t, err)

	tests := []struct {
		name     string
		version  byte
		hash     []byte
		expected string
	}{
		{
			name:     "mainnet zero hash",
			version:  MainnetSingleSig,
			hash:     make([]byte, 20),
			expected: "SP000000000000000000002Q6VF78",
		},
		{
			name:     "testnet zero hash",
			version:  TestnetSingleSig,
			hash:     make([]byte, 20),
			expected: "ST000000000000000000002AMW42H",
		},
		{
			name:     "mainnet",
			version:  MainnetSingleSig,
			hash:     hash,
			expected: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7",
		},
		{
			name:     "testnet",
			version:  TestnetSingleSig,
			hash:     hash,
			expected: "ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQYAC0RQ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := C32Address(tt.version, tt.hash)
			assert.Equal(t, tt.expected, addr)

			version, decoded, err := DecodeC32Address(addr)
			require.NoError(t, err)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.hash, decoded)
		})
	}
}

func TestDecodeC32AddressNormalizesAmbiguousCharacters(t *testing.T) {
	// lower case and O for 0 are accepted
	version, _, err := DecodeC32Address("sp0OOOOOOOOOOOOOOOOOOO2q6vf78")
	require.NoError(t, err)
	assert.Equal(t, MainnetSingleSig, version)
}

func TestDecodeC32AddressErrors(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{name: "empty", addr: ""},
		{name: "wrong prefix", addr: "XP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"},
		{name: "bad checksum", addr: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ8"},
		{name: "invalid character", addr: "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJU"},
		{name: "too short", addr: "SP2J6ZY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeC32Address(tt.addr)
			assert.ErrorIs(t, err, ErrInvalidAddress)
			assert.False(t, IsValidAddress(tt.addr))
		})
	}
}

func TestParsePrincipal(t *testing.T) {
	p, err := ParsePrincipal("ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQYAC0RQ.swap-helper")
	require.NoError(t, err)
	assert.Equal(t, TestnetSingleSig, p.Version)
	assert.Equal(t, "swap-helper", p.ContractName)
	assert.Equal(t, "ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQYAC0RQ", p.Address())
	assert.Equal(t, "ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQYAC0RQ.swap-helper", p.String())

	_, err = ParsePrincipal("ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQYAC0RQ.")
	assert.Error(t, err)
}

func TestAddressFromPrivateKey(t *testing.T) {
	key := "0000000000000000000000000000000000000000000000000000000000000001"

	// compressed and uncompressed encodings of the same key map to different accounts
	compressed, err := AddressFromPrivateKey(key+"01", TestnetSingleSig)
	require.NoError(t, err)
	uncompressed, err := AddressFromPrivateKey(key, TestnetSingleSig)
	require.NoError(t, err)

	// hash160 of the compressed generator point is 751e76e8199196d454941c45d1b3a323f1433bd6
	assert.Equal(t, "ST1THWXQ8368SDN2MJGE4BMDKMCHZ2GSVTSQDA7QF", compressed)
	assert.NotEqual(t, compressed, uncompressed)
	assert.True(t, IsValidAddress(compressed))
	assert.True(t, IsValidAddress(uncompressed))
	assert.Equal(t, "ST", compressed[:2])

	mainnet, err := AddressFromPrivateKey(key+"01", MainnetSingleSig)
	require.NoError(t, err)
	assert.Equal(t, "SP1THWXQ8368SDN2MJGE4BMDKMCHZ2GSVTS1X0BPM", mainnet)

	_, err = AddressFromPrivateKey(key+"02", TestnetSingleSig)
	assert.Error(t, err)

	_, err = AddressFromPrivateKey("nothex", TestnetSingleSig)
	assert.Error(t, err)
}
