package value

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Domain separators for hashed values. The version suffix allows the
// algorithm to change without colliding with old digests.
const (
	DomainWatermark  = "brp/watermark/v1"
	DomainTranscript = "brp/transcript/v1"
)

func digest(domain string, data []byte) [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Hash returns the hex sha256 of v's canonical form under domain.
func Hash(domain string, v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	sum := digest(domain, canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Fingerprint folds the canonical hash of v into a non-zero uint64.
// Zero is reserved so callers can treat it as "no fingerprint".
func Fingerprint(domain string, v Value) (uint64, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return 0, fmt.Errorf("fingerprint: %w", err)
	}
	sum := digest(domain, canonical)
	fp := binary.BigEndian.Uint64(sum[:8])
	if fp == 0 {
		fp = 1
	}
	return fp, nil
}
