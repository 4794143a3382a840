package sim

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const (
	minCrashPoint = 1.00
	maxCrashPoint = 1000000.00
	houseEdge     = 0.01
)

// DeriveCrashPoint maps HMAC-SHA256(serverSeed, clientSeed:nonce) onto an
// exponential crash distribution. Deterministic, so a player holding the
// revealed seed can reverify the round.
func DeriveCrashPoint(serverSeed, clientSeed string, nonce int) float64 {
	h := hmac.New(sha256.New, []byte(serverSeed))
	fmt.Fprintf(h, "%s:%d", clientSeed, nonce)
	digest := h.Sum(nil)

	r := float64(binary.BigEndian.Uint64(digest[:8])) / float64(1<<63) / 2.0

	// House edge: a slice of rounds crashes instantly.
	if r < houseEdge {
		return minCrashPoint
	}

	crash := (100.0 - houseEdge*100) / (100.0 - r*100.0)
	crash = float64(int(crash*100)) / 100.0

	if crash < minCrashPoint {
		return minCrashPoint
	}
	if crash > maxCrashPoint {
		return maxCrashPoint
	}
	return crash
}

// NewSeed returns a cryptographically random 32-byte hex seed.
func NewSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Commitment is the SHA256 hash published before the round starts.
func Commitment(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// VerifyCrashPoint rechecks a revealed round within float tolerance.
func VerifyCrashPoint(serverSeed, clientSeed string, nonce int, claimed float64) bool {
	derived := DeriveCrashPoint(serverSeed, clientSeed, nonce)
	diff := derived - claimed
	if diff < 0 {
		diff = -diff
	}
	return diff < 0.01
}
