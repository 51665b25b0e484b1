package clarity

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// maxDepth bounds nesting while decoding untrusted payloads
const maxDepth = 32

// ErrMalformed is returned when a serialized value cannot be decoded
var ErrMalformed = errors.New("malformed clarity value")

var (
	two128 = new(big.Int).Lsh(big.NewInt(1), 128)
	maxU   = new(big.Int).Sub(two128, big.NewInt(1))
	maxI   = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minI   = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// Serialize encodes v in the Clarity consensus format
func Serialize(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeHex serializes v and returns it as a 0x-prefixed hex string
func EncodeHex(v Value) (string, error) {
	raw, err := Serialize(v)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(raw), nil
}

// Deserialize decodes a single Clarity value; trailing bytes are an error
func Deserialize(raw []byte) (Value, error) {
	r := bytes.NewReader(raw)
	v, err := readValue(r, 0)
	if err != nil {
		return Value{}, err
	}
	if r.Len() != 0 {
		return Value{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.Len())
	}
	return v, nil
}

// DecodeHex decodes a 0x-prefixed hex string holding a serialized value
func DecodeHex(s string) (Value, error) {
	raw, err := hexutil.Decode(s)
	if err != nil {
		return Value{}, fmt.Errorf("%w: invalid hex: %v", ErrMalformed, err)
	}
	return Deserialize(raw)
}

func writeValue(buf *bytes.Buffer, v Value) error {
	switch v.Type {
	case TypeInt:
		if v.Int == nil || v.Int.Cmp(minI) < 0 || v.Int.Cmp(maxI) > 0 {
			return fmt.Errorf("int out of range")
		}
		n := new(big.Int).Set(v.Int)
		if n.Sign() < 0 {
			n.Add(n, two128)
		}
		buf.WriteByte(byte(TypeInt))
		buf.Write(n.FillBytes(make([]byte, 16)))
	case TypeUInt:
		if v.Int == nil || v.Int.Sign() < 0 || v.Int.Cmp(maxU) > 0 {
			return fmt.Errorf("uint out of range")
		}
		buf.WriteByte(byte(TypeUInt))
		buf.Write(v.Int.FillBytes(make([]byte, 16)))
	case TypeBuffer, TypeStringASCII, TypeStringUTF8:
		buf.WriteByte(byte(v.Type))
		writeU32(buf, len(v.Bytes))
		buf.Write(v.Bytes)
	case TypeBoolTrue, TypeBoolFalse, TypeOptionalNone:
		buf.WriteByte(byte(v.Type))
	case TypeStandardPrincipal, TypeContractPrincipal:
		if v.Principal == nil {
			return fmt.Errorf("principal value without principal")
		}
		p := v.Principal
		if v.Type == TypeContractPrincipal && p.ContractName == "" {
			return fmt.Errorf("contract principal without contract name")
		}
		buf.WriteByte(byte(v.Type))
		buf.WriteByte(p.Version)
		buf.Write(p.Hash160[:])
		if v.Type == TypeContractPrincipal {
			if len(p.ContractName) > 128 {
				return fmt.Errorf("contract name too long: %d", len(p.ContractName))
			}
			buf.WriteByte(byte(len(p.ContractName)))
			buf.WriteString(p.ContractName)
		}
	case TypeResponseOk, TypeResponseErr, TypeOptionalSome:
		if v.Inner == nil {
			return fmt.Errorf("%s without inner value", v.Type)
		}
		buf.WriteByte(byte(v.Type))
		return writeValue(buf, *v.Inner)
	case TypeList:
		buf.WriteByte(byte(TypeList))
		writeU32(buf, len(v.List))
		for _, item := range v.List {
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
	case TypeTuple:
		buf.WriteByte(byte(TypeTuple))
		keys := v.sortedKeys()
		writeU32(buf, len(keys))
		for _, k := range keys {
			if len(k) == 0 || len(k) > 128 {
				return fmt.Errorf("invalid tuple key %q", k)
			}
			buf.WriteByte(byte(len(k)))
			buf.WriteString(k)
			if err := writeValue(buf, v.Tuple[k]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("cannot serialize %s", v.Type)
	}
	return nil
}

func readValue(r *bytes.Reader, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, maxDepth)
	}
	b, err := r.ReadByte()
	if err != nil {
		return Value{}, fmt.Errorf("%w: missing type prefix", ErrMalformed)
	}
	t := Type(b)
	switch t {
	case TypeInt, TypeUInt:
		raw, err := readN(r, 16)
		if err != nil {
			return Value{}, err
		}
		n := new(big.Int).SetBytes(raw)
		if t == TypeInt && raw[0]&0x80 != 0 {
			n.Sub(n, two128)
		}
		return Value{Type: t, Int: n}, nil
	case TypeBuffer, TypeStringASCII, TypeStringUTF8:
		size, err := readU32(r)
		if err != nil {
			return Value{}, err
		}
		raw, err := readN(r, int(size))
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Bytes: raw}, nil
	case TypeBoolTrue, TypeBoolFalse, TypeOptionalNone:
		return Value{Type: t}, nil
	case TypeStandardPrincipal, TypeContractPrincipal:
		p, err := readPrincipal(r, t == TypeContractPrincipal)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Principal: p}, nil
	case TypeResponseOk, TypeResponseErr, TypeOptionalSome:
		inner, err := readValue(r, depth+1)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Inner: &inner}, nil
	case TypeList:
		size, err := readU32(r)
		if err != nil {
			return Value{}, err
		}
		if int(size) > r.Len() {
			return Value{}, fmt.Errorf("%w: list length %d exceeds payload", ErrMalformed, size)
		}
		items := make([]Value, 0, size)
		for i := uint32(0); i < size; i++ {
			item, err := readValue(r, depth+1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Value{Type: t, List: items}, nil
	case TypeTuple:
		size, err := readU32(r)
		if err != nil {
			return Value{}, err
		}
		if int(size) > r.Len() {
			return Value{}, fmt.Errorf("%w: tuple length %d exceeds payload", ErrMalformed, size)
		}
		fields := make(map[string]Value, size)
		for i := uint32(0); i < size; i++ {
			nameLen, err := r.ReadByte()
			if err != nil {
				return Value{}, fmt.Errorf("%w: truncated tuple key", ErrMalformed)
			}
			name, err := readN(r, int(nameLen))
			if err != nil {
				return Value{}, err
			}
			field, err := readValue(r, depth+1)
			if err != nil {
				return Value{}, err
			}
			fields[string(name)] = field
		}
		return Value{Type: t, Tuple: fields}, nil
	}
	return Value{}, fmt.Errorf("%w: unknown type prefix 0x%02x", ErrMalformed, b)
}

func readPrincipal(r *bytes.Reader, withContract bool) (*Principal, error) {
	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated principal", ErrMalformed)
	}
	hash, err := readN(r, 20)
	if err != nil {
		return nil, err
	}
	p := &Principal{Version: version}
	copy(p.Hash160[:], hash)
	if withContract {
		nameLen, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated contract name", ErrMalformed)
		}
		name, err := readN(r, int(nameLen))
		if err != nil {
			return nil, err
		}
		p.ContractName = string(name)
	}
	return p, nil
}

func writeU32(buf *bytes.Buffer, n int) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(n))
	buf.Write(tmp[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	raw, err := readN(r, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(raw), nil
}

func readN(r *bytes.Reader, n int) ([]byte, error) {
	if n > r.Len() {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformed, n, r.Len())
	}
	out := make([]byte, n)
	_, _ = r.Read(out)
	return out, nil
}
