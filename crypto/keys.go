package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressHRP is the bech32 human-readable part of rendered sale addresses.
const AddressHRP = "sale"

var (
	ErrEmptyAddress  = errors.New("crypto: address required")
	ErrAddressPrefix = errors.New("crypto: unexpected address prefix")
	ErrAddressLength = errors.New("crypto: address must be 20 bytes")
)

// Address is a 20-byte account address. It renders as bech32 with the sale
// prefix and parses from either that form or 0x-prefixed hex.
type Address [20]byte

// String renders the bech32 form.
func (a Address) String() string {
	encoded, err := encodeBech32(AddressHRP, a[:])
	if err != nil {
		panic(err)
	}
	return encoded
}

// Hex renders the address in EIP-55 checksum form.
func (a Address) Hex() string { return common.Address(a).Hex() }

// Array returns the raw bytes.
func (a Address) Array() [20]byte { return a }

func encodeBech32(hrp string, raw []byte) (string, error) {
	conv, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, conv)
}

func decodeBech32(encoded string) (string, []byte, error) {
	hrp, data, err := bech32.Decode(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("crypto: invalid bech32 address: %w", err)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("crypto: invalid bech32 payload: %w", err)
	}
	return hrp, raw, nil
}

// ParseAddress accepts either a 0x-prefixed hex address or a bech32 address
// carrying the sale prefix.
func ParseAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return [20]byte{}, ErrEmptyAddress
	}
	if common.IsHexAddress(trimmed) {
		return common.HexToAddress(trimmed), nil
	}
	hrp, decoded, err := decodeBech32(strings.ToLower(trimmed))
	if err != nil {
		return [20]byte{}, err
	}
	if hrp != AddressHRP {
		return [20]byte{}, fmt.Errorf("%w %q", ErrAddressPrefix, hrp)
	}
	if len(decoded) != 20 {
		return [20]byte{}, fmt.Errorf("%w, got %d", ErrAddressLength, len(decoded))
	}
	var out [20]byte
	copy(out[:], decoded)
	return out, nil
}

// FormatAddress renders a raw address with the sale prefix.
func FormatAddress(addr [20]byte) string {
	return Address(addr).String()
}

// DeriveAddress computes the deterministic address of an account created by
// creator at the given nonce, using the same scheme as contract deployment.
func DeriveAddress(creator [20]byte, nonce uint64) [20]byte {
	return crypto.CreateAddress(common.Address(creator), nonce)
}

// PrivateKey is a secp256k1 signing key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Hex returns the private key as an unprefixed hex string.
func (k *PrivateKey) Hex() string {
	return hex.EncodeToString(crypto.FromECDSA(k.PrivateKey))
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the account address controlled by the key.
func (k *PublicKey) Address() Address {
	return Address(crypto.PubkeyToAddress(*k.PublicKey))
}
