// Package clarity implements the consensus binary encoding of Clarity values
// used by the Stacks node API for read-only calls and contract-call arguments.
package clarity

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// Type is the one-byte prefix identifying a serialized Clarity value
type Type byte

const (
	TypeInt               Type = 0x00
	TypeUInt              Type = 0x01
	TypeBuffer            Type = 0x02
	TypeBoolTrue          Type = 0x03
	TypeBoolFalse         Type = 0x04
	TypeStandardPrincipal Type = 0x05
	TypeContractPrincipal Type = 0x06
	TypeResponseOk        Type = 0x07
	TypeResponseErr       Type = 0x08
	TypeOptionalNone      Type = 0x09
	TypeOptionalSome      Type = 0x0a
	TypeList              Type = 0x0b
	TypeTuple             Type = 0x0c
	TypeStringASCII       Type = 0x0d
	TypeStringUTF8        Type = 0x0e
)

var typeNames = map[Type]string{
	TypeInt:               "int",
	TypeUInt:              "uint",
	TypeBuffer:            "buff",
	TypeBoolTrue:          "bool",
	TypeBoolFalse:         "bool",
	TypeStandardPrincipal: "principal",
	TypeContractPrincipal: "principal",
	TypeResponseOk:        "ok",
	TypeResponseErr:       "err",
	TypeOptionalNone:      "none",
	TypeOptionalSome:      "some",
	TypeList:              "list",
	TypeTuple:             "tuple",
	TypeStringASCII:       "string-ascii",
	TypeStringUTF8:        "string-utf8",
}

// String returns the Clarity type name
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(t))
}

// Value is a decoded Clarity value. Only the fields relevant to Type are set.
type Value struct {
	Type Type

	// Int holds int and uint payloads
	Int *big.Int
	// Bytes holds buffer and string payloads
	Bytes []byte
	// Principal holds standard and contract principals
	Principal *Principal
	// Inner holds the wrapped value of ok, err and some
	Inner *Value
	// List holds list items
	List []Value
	// Tuple holds tuple fields keyed by name
	Tuple map[string]Value
}

// UInt builds a uint value
func UInt(n uint64) Value {
	return Value{Type: TypeUInt, Int: new(big.Int).SetUint64(n)}
}

// UIntBig builds a uint value from a big integer
func UIntBig(n *big.Int) Value {
	return Value{Type: TypeUInt, Int: new(big.Int).Set(n)}
}

// Int builds a signed int value
func Int(n int64) Value {
	return Value{Type: TypeInt, Int: big.NewInt(n)}
}

// Bool builds a bool value
func Bool(b bool) Value {
	if b {
		return Value{Type: TypeBoolTrue}
	}
	return Value{Type: TypeBoolFalse}
}

// Buffer builds a buff value
func Buffer(b []byte) Value {
	return Value{Type: TypeBuffer, Bytes: append([]byte(nil), b...)}
}

// StringASCII builds a string-ascii value
func StringASCII(s string) Value {
	return Value{Type: TypeStringASCII, Bytes: []byte(s)}
}

// None builds an empty optional
func None() Value {
	return Value{Type: TypeOptionalNone}
}

// Some wraps v in an optional
func Some(v Value) Value {
	return Value{Type: TypeOptionalSome, Inner: &v}
}

// Ok wraps v in an ok response
func Ok(v Value) Value {
	return Value{Type: TypeResponseOk, Inner: &v}
}

// Err wraps v in an err response
func Err(v Value) Value {
	return Value{Type: TypeResponseErr, Inner: &v}
}

// List builds a list value
func List(items ...Value) Value {
	return Value{Type: TypeList, List: items}
}

// Tuple builds a tuple value
func Tuple(fields map[string]Value) Value {
	return Value{Type: TypeTuple, Tuple: fields}
}

// PrincipalValue builds a principal value. Contract principals are encoded
// with their contract name.
func PrincipalValue(p Principal) Value {
	t := TypeStandardPrincipal
	if p.ContractName != "" {
		t = TypeContractPrincipal
	}
	return Value{Type: t, Principal: &p}
}

// IsPrincipal reports whether v is a standard or contract principal
func (v Value) IsPrincipal() bool {
	return v.Type == TypeStandardPrincipal || v.Type == TypeContractPrincipal
}

// AsUInt returns the payload of a uint value
func (v Value) AsUInt() (*big.Int, error) {
	if v.Type != TypeUInt || v.Int == nil {
		return nil, fmt.Errorf("expected uint, got %s", v.Type)
	}
	return new(big.Int).Set(v.Int), nil
}

// AsUInt64 returns the payload of a uint value that fits in 64 bits
func (v Value) AsUInt64() (uint64, error) {
	n, err := v.AsUInt()
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("uint %s overflows uint64", n.String())
	}
	return n.Uint64(), nil
}

// AsBool returns the payload of a bool value
func (v Value) AsBool() (bool, error) {
	switch v.Type {
	case TypeBoolTrue:
		return true, nil
	case TypeBoolFalse:
		return false, nil
	}
	return false, fmt.Errorf("expected bool, got %s", v.Type)
}

// AsPrincipal returns the principal string of a principal value
func (v Value) AsPrincipal() (string, error) {
	if !v.IsPrincipal() || v.Principal == nil {
		return "", fmt.Errorf("expected principal, got %s", v.Type)
	}
	return v.Principal.String(), nil
}

// Unwrap strips any ok/some wrappers. An err response is returned as an error
// and none yields ok == false.
func (v Value) Unwrap() (Value, bool, error) {
	cur := v
	for {
		switch cur.Type {
		case TypeResponseOk, TypeOptionalSome:
			cur = *cur.Inner
		case TypeOptionalNone:
			return Value{}, false, nil
		case TypeResponseErr:
			return Value{}, false, fmt.Errorf("contract returned (err %s)", cur.Inner.String())
		default:
			return cur, true, nil
		}
	}
}

// String renders v using Clarity literal syntax
func (v Value) String() string {
	switch v.Type {
	case TypeInt:
		return v.Int.String()
	case TypeUInt:
		return "u" + v.Int.String()
	case TypeBoolTrue:
		return "true"
	case TypeBoolFalse:
		return "false"
	case TypeBuffer:
		return fmt.Sprintf("0x%x", v.Bytes)
	case TypeStringASCII:
		return fmt.Sprintf("%q", string(v.Bytes))
	case TypeStringUTF8:
		return fmt.Sprintf("u%q", string(v.Bytes))
	case TypeStandardPrincipal, TypeContractPrincipal:
		return "'" + v.Principal.String()
	case TypeOptionalNone:
		return "none"
	case TypeOptionalSome, TypeResponseOk, TypeResponseErr:
		return "(" + v.Type.String() + " " + v.Inner.String() + ")"
	case TypeList:
		parts := make([]string, 0, len(v.List))
		for _, item := range v.List {
			parts = append(parts, item.String())
		}
		return "(list " + strings.Join(parts, " ") + ")"
	case TypeTuple:
		keys := v.sortedKeys()
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, "("+k+" "+v.Tuple[k].String()+")")
		}
		return "(tuple " + strings.Join(parts, " ") + ")"
	}
	return v.Type.String()
}

// Field returns the named tuple field, trying each alias in order
func (v Value) Field(names ...string) (Value, bool) {
	if v.Type != TypeTuple {
		return Value{}, false
	}
	for _, name := range names {
		if f, ok := v.Tuple[name]; ok {
			return f, true
		}
	}
	return Value{}, false
}

// sortedKeys returns tuple keys in the lexicographic order required on the wire
func (v Value) sortedKeys() []string {
	keys := make([]string, 0, len(v.Tuple))
	for k := range v.Tuple {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
