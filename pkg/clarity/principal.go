package clarity

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // hash160 is part of the address format
)

// Address versions for single-sig and multi-sig accounts
const (
	MainnetSingleSig byte = 22
	MainnetMultiSig  byte = 20
	TestnetSingleSig byte = 26
	TestnetMultiSig  byte = 21
)

const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ErrInvalidAddress is returned for strings that are not valid c32check addresses
var ErrInvalidAddress = errors.New("invalid stacks address")

// Principal is a standard principal (account) or a contract principal
type Principal struct {
	Version      byte
	Hash160      [20]byte
	ContractName string
}

// String renders the principal as ADDRESS or ADDRESS.contract-name
func (p Principal) String() string {
	addr := C32Address(p.Version, p.Hash160[:])
	if p.ContractName != "" {
		return addr + "." + p.ContractName
	}
	return addr
}

// Address returns the account part of the principal
func (p Principal) Address() string {
	return C32Address(p.Version, p.Hash160[:])
}

// ParsePrincipal parses ADDRESS or ADDRESS.contract-name
func ParsePrincipal(s string) (Principal, error) {
	addr, name, hasName := strings.Cut(strings.TrimSpace(s), ".")
	if hasName && (name == "" || len(name) > 128) {
		return Principal{}, fmt.Errorf("invalid contract name in %q", s)
	}
	version, hash, err := DecodeC32Address(addr)
	if err != nil {
		return Principal{}, err
	}
	p := Principal{Version: version, ContractName: name}
	copy(p.Hash160[:], hash)
	return p, nil
}

// C32Address encodes a version and hash160 as a c32check address (S-prefixed)
func C32Address(version byte, hash160 []byte) string {
	payload := append([]byte{version}, hash160...)
	sum := checksum(payload)
	return "S" + string(c32Alphabet[version&0x1f]) + c32Encode(append(append([]byte(nil), hash160...), sum...))
}

// DecodeC32Address decodes an S-prefixed c32check address into version and hash160
func DecodeC32Address(addr string) (byte, []byte, error) {
	if len(addr) < 5 || (addr[0] != 'S' && addr[0] != 's') {
		return 0, nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	norm := normalizeC32(addr[1:])
	version := strings.IndexByte(c32Alphabet, norm[0])
	if version < 0 {
		return 0, nil, fmt.Errorf("%w: bad version character in %q", ErrInvalidAddress, addr)
	}
	data, err := c32Decode(norm[1:])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(data) != 24 {
		return 0, nil, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(data))
	}
	hash, sum := data[:20], data[20:]
	expected := checksum(append([]byte{byte(version)}, hash...))
	if !bytes.Equal(sum, expected) {
		return 0, nil, fmt.Errorf("%w: checksum mismatch for %q", ErrInvalidAddress, addr)
	}
	return byte(version), hash, nil
}

// IsValidAddress reports whether s is a well-formed standard principal
func IsValidAddress(s string) bool {
	_, _, err := DecodeC32Address(s)
	return err == nil
}

// AddressFromPrivateKey derives the single-sig address controlled by a
// secp256k1 private key. A 33-byte key ending in 0x01 selects the compressed
// public key, a bare 32-byte key the uncompressed one.
func AddressFromPrivateKey(keyHex string, version byte) (string, error) {
	keyHex = strings.TrimPrefix(strings.TrimSpace(keyHex), "0x")
	compressed := false
	if len(keyHex) == 66 {
		if !strings.HasSuffix(keyHex, "01") {
			return "", fmt.Errorf("invalid private key suffix")
		}
		keyHex = keyHex[:64]
		compressed = true
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %v", err)
	}

	var pub []byte
	if compressed {
		pub = crypto.CompressPubkey(&key.PublicKey)
	} else {
		pub = crypto.FromECDSAPub(&key.PublicKey)
	}
	return C32Address(version, Hash160(pub)), nil
}

// Hash160 is RIPEMD160(SHA256(b))
func Hash160(b []byte) []byte {
	sha := sha256.Sum256(b)
	h := ripemd160.New()
	_, _ = h.Write(sha[:])
	return h.Sum(nil)
}

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:4]
}

// c32Encode renders b in base32 (Crockford alphabet), one '0' per leading zero byte
func c32Encode(b []byte) string {
	n := new(big.Int).SetBytes(b)
	var digits []byte
	base := big.NewInt(32)
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		digits = append(digits, c32Alphabet[mod.Int64()])
	}
	for _, c := range b {
		if c != 0 {
			break
		}
		digits = append(digits, '0')
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}

func c32Decode(s string) ([]byte, error) {
	n := new(big.Int)
	base := big.NewInt(32)
	zeros := 0
	leading := true
	for i := 0; i < len(s); i++ {
		d := strings.IndexByte(c32Alphabet, s[i])
		if d < 0 {
			return nil, fmt.Errorf("invalid c32 character %q", s[i])
		}
		if leading && d == 0 {
			zeros++
			continue
		}
		leading = false
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(d)))
	}
	return append(make([]byte, zeros), n.Bytes()...), nil
}

func normalizeC32(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "O", "0")
	s = strings.ReplaceAll(s, "L", "1")
	return strings.ReplaceAll(s, "I", "1")
}
