package clarity

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeScalars(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected string
	}{
		{
			name:     "uint one",
			value:    UInt(1),
			expected: "0x0100000000000000000000000000000001",
		},
		{
			name:     "uint swap factor",
			value:    UInt(100000000),
			expected: "0x0100000000000000000000000005f5e100",
		},
		{
			name:     "int minus one",
			value:    Int(-1),
			expected: "0x00ffffffffffffffffffffffffffffffff",
		},
		{
			name:     "true",
			value:    Bool(true),
			expected: "0x03",
		},
		{
			name:     "false",
			value:    Bool(false),
			expected: "0x04",
		},
		{
			name:     "none",
			value:    None(),
			expected: "0x09",
		},
		{
			name:     "some uint",
			value:    Some(UInt(5)),
			expected: "0x0a0100000000000000000000000000000005",
		},
		{
			name:     "buffer",
			value:    Buffer([]byte{0xde, 0xad}),
			expected: "0x0200000002dead",
		},
		{
			name:     "string ascii",
			value:    StringASCII("hi"),
			expected: "0x0d000000026869",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeHex(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, encoded)
		})
	}
}

func TestSerializeTupleSortsKeys(t *testing.T) {
	v := Tuple(map[string]Value{
		"b": UInt(2),
		"a": Bool(true),
	})

	encoded, err := EncodeHex(v)
	require.NoError(t, err)
	// count=2, "a" true, "b" u2
	assert.Equal(t, "0x0c00000002"+"0161"+"03"+"0162"+"0100000000000000000000000000000002", encoded)
}

func TestSerializeRejectsOutOfRange(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 128)
	_, err := Serialize(UIntBig(tooBig))
	assert.Error(t, err)

	_, err = Serialize(Value{Type: TypeUInt, Int: big.NewInt(-1)})
	assert.Error(t, err)

	_, err = Serialize(Value{Type: TypeOptionalSome})
	assert.Error(t, err)
}

func TestRoundTripNested(t *testing.T) {
	p, err := ParsePrincipal("SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7.job-escrow")
	require.NoError(t, err)

	original := Ok(Some(Tuple(map[string]Value{
		"agent":  PrincipalValue(p),
		"status": UInt(0),
		"items":  List(Int(-7), Buffer([]byte{1, 2, 3})),
	})))

	raw, err := Serialize(original)
	require.NoError(t, err)

	decoded, err := Deserialize(raw)
	require.NoError(t, err)
	assert.Equal(t, original.String(), decoded.String())

	inner, found, err := decoded.Unwrap()
	require.NoError(t, err)
	require.True(t, found)

	agent, ok := inner.Field("agent")
	require.True(t, ok)
	assert.Equal(t, TypeContractPrincipal, agent.Type)
	addr, err := agent.AsPrincipal()
	require.NoError(t, err)
	assert.Equal(t, "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7.job-escrow", addr)

	items, ok := inner.Field("items")
	require.True(t, ok)
	require.Len(t, items.List, 2)
	assert.Equal(t, int64(-7), items.List[0].Int.Int64())
}

func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: "0x"},
		{name: "unknown prefix", input: "0xff"},
		{name: "truncated uint", input: "0x0100"},
		{name: "trailing bytes", input: "0x0303"},
		{name: "buffer length overflow", input: "0x02000000ff00"},
		{name: "list length overflow", input: "0x0b7fffffff"},
		{name: "not hex", input: "zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHex(tt.input)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestUnwrap(t *testing.T) {
	v, found, err := None().Unwrap()
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, Value{}, v)

	_, _, err = Err(UInt(205)).Unwrap()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "u205")

	v, found, err = UInt(9).Unwrap()
	require.NoError(t, err)
	assert.True(t, found)
	n, err := v.AsUInt64()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), n)
}

func TestAccessorsRejectWrongType(t *testing.T) {
	_, err := Bool(true).AsUInt()
	assert.Error(t, err)

	_, err = UInt(1).AsBool()
	assert.Error(t, err)

	_, err = UInt(1).AsPrincipal()
	assert.Error(t, err)

	_, ok := UInt(1).Field("x")
	assert.False(t, ok)
}
