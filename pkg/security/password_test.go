package security

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"

	"github.com/angelmondragon/donorledger-backend/pkg/config"
)

var errMalformedHash = errors.New("malformed argon2id hash")

func testHasher() *Hasher {
	return NewHasher(config.PasswordConfig{
		ArgonMemoryKB:    8192,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	})
}

// matches re-derives the key from the parameters and salt embedded in encoded.
func matches(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, errMalformedHash
	}
	var params ArgonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Parallelism); err != nil {
		return false, errMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errMalformedHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return false, errMalformedHash
	}
	computed := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, computed) == 1, nil
}

func TestHashRoundTrips(t *testing.T) {
	hash, err := testHasher().Hash("very-secure-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected hash format %q", hash)
	}

	ok, err := matches("very-secure-password", hash)
	if err != nil || !ok {
		t.Fatalf("hash does not match its password: ok=%v err=%v", ok, err)
	}
	ok, err = matches("bogus-password", hash)
	if err != nil {
		t.Fatalf("unexpected error for wrong password: %v", err)
	}
	if ok {
		t.Fatal("hash matched an incorrect password")
	}
}

func TestHashSaltsEachCall(t *testing.T) {
	h := testHasher()
	first, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	second, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct hashes for repeated calls")
	}
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	if _, err := testHasher().Hash(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestNewHasherClampsParams(t *testing.T) {
	h := NewHasher(config.PasswordConfig{ArgonMemoryKB: 1, ArgonTime: 99, ArgonParallelism: 0, ArgonSaltLen: 1, ArgonKeyLen: 1000})
	want := ArgonParams{Memory: 8, Time: 10, Parallelism: 1, SaltLen: 8, KeyLen: 64}
	if h.params != want {
		t.Fatalf("params = %+v, want %+v", h.params, want)
	}
}
