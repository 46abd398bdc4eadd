package token

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	metadataPrefix = []byte("token:")
	supplyPrefix   = []byte("token/supply/")
	balancePrefix  = []byte("balance:")
)

func metadataKey(symbol string) []byte {
	buf := make([]byte, len(metadataPrefix)+len(symbol))
	copy(buf, metadataPrefix)
	copy(buf[len(metadataPrefix):], symbol)
	return ethcrypto.Keccak256(buf)
}

func supplyKey(symbol string) []byte {
	buf := make([]byte, len(supplyPrefix)+len(symbol))
	copy(buf, supplyPrefix)
	copy(buf[len(supplyPrefix):], symbol)
	return ethcrypto.Keccak256(buf)
}

func balanceKey(addr [20]byte, symbol string) []byte {
	buf := make([]byte, len(balancePrefix)+len(symbol)+1+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], symbol)
	buf[len(balancePrefix)+len(symbol)] = ':'
	copy(buf[len(balancePrefix)+len(symbol)+1:], addr[:])
	return ethcrypto.Keccak256(buf)
}
