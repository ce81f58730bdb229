package xrpl

import (
	"bytes"
	"crypto/sha256"
	"math/big"
)

const rippleAlphabet = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"

const accountIDVersion = 0x00

// IsClassicAddress reports whether s is a well-formed classic account address:
// base58 in the ledger alphabet, version byte 0, 20-byte account id and a
// valid double-SHA256 checksum.
func IsClassicAddress(s string) bool {
	if len(s) < 25 || len(s) > 35 || s[0] != 'r' {
		return false
	}
	raw, ok := decodeBase58(s)
	if !ok || len(raw) != 25 || raw[0] != accountIDVersion {
		return false
	}
	payload, checksum := raw[:21], raw[21:]
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return bytes.Equal(second[:4], checksum)
}

func decodeBase58(s string) ([]byte, bool) {
	value := new(big.Int)
	radix := big.NewInt(58)
	for i := 0; i < len(s); i++ {
		idx := bytes.IndexByte([]byte(rippleAlphabet), s[i])
		if idx < 0 {
			return nil, false
		}
		value.Mul(value, radix)
		value.Add(value, big.NewInt(int64(idx)))
	}

	decoded := value.Bytes()
	leading := 0
	for leading < len(s) && s[leading] == rippleAlphabet[0] {
		leading++
	}
	return append(make([]byte, leading), decoded...), true
}
