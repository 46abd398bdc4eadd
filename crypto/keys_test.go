package crypto

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseAddressAcceptsHexAndBech32(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()

	fromHex, err := ParseAddress(addr.Hex())
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	fromBech, err := ParseAddress(addr.String())
	if err != nil {
		t.Fatalf("parse bech32: %v", err)
	}
	if fromHex != fromBech || fromHex != addr.Array() {
		t.Fatalf("address mismatch: %x vs %x", fromHex, fromBech)
	}
	if !strings.HasPrefix(FormatAddress(fromHex), AddressHRP+"1") {
		t.Fatalf("unexpected rendering %s", FormatAddress(fromHex))
	}
}

func TestParseAddressRejectsForeignPrefix(t *testing.T) {
	var raw [20]byte
	raw[0] = 1
	foreign, err := encodeBech32("other", raw[:])
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := ParseAddress(foreign); !errors.Is(err, ErrAddressPrefix) {
		t.Fatalf("expected prefix rejection, got %v", err)
	}
	if _, err := ParseAddress("  "); !errors.Is(err, ErrEmptyAddress) {
		t.Fatalf("expected empty rejection, got %v", err)
	}
	short, err := encodeBech32(AddressHRP, raw[:10])
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := ParseAddress(short); !errors.Is(err, ErrAddressLength) {
		t.Fatalf("expected length rejection, got %v", err)
	}
}

func TestDeriveAddressIsDeterministic(t *testing.T) {
	var creator [20]byte
	creator[19] = 0x42
	first := DeriveAddress(creator, 0)
	if first != DeriveAddress(creator, 0) {
		t.Fatalf("derivation not deterministic")
	}
	if first == DeriveAddress(creator, 1) {
		t.Fatalf("nonce must change derived address")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "buyer.json")
	if err := SaveToKeystore(path, key, "pass"); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "pass")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address().Array() != key.PubKey().Address().Array() {
		t.Fatalf("loaded key does not match")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
