// Package webhook signs, sends and verifies HMAC-authenticated webhook calls.
//
// The signed message is the decimal unix timestamp, a dot, then the raw
// request body. Digests are hex encoded.
package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	DefaultSignatureHeader = "X-Webhook-Signature"
	DefaultTimestampHeader = "X-Webhook-Timestamp"
	DefaultEventHeader     = "X-Webhook-Event"
	DefaultAlgorithm       = "sha256"
)

var ErrUnsupportedAlgorithm = errors.New("unsupported hmac algorithm")

var algorithms = map[string]func() hash.Hash{
	"sha1":     sha1.New,
	"sha256":   sha256.New,
	"sha384":   sha512.New384,
	"sha512":   sha512.New,
	"sha3-256": sha3.New256,
	"sha3-512": sha3.New512,
}

// Algorithms returns the supported digest names.
func Algorithms() []string {
	return []string{"sha1", "sha256", "sha384", "sha512", "sha3-256", "sha3-512"}
}

func hashFor(algo string) (func() hash.Hash, error) {
	if algo == "" {
		algo = DefaultAlgorithm
	}
	h, ok := algorithms[strings.ToLower(algo)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algo)
	}
	return h, nil
}

// ValidAlgorithm reports whether algo names a supported digest.
func ValidAlgorithm(algo string) bool {
	_, err := hashFor(algo)
	return err == nil
}

// Sign returns the hex HMAC of "<ts>.<body>".
func Sign(secret, algo string, ts int64, body []byte) (string, error) {
	h, err := hashFor(algo)
	if err != nil {
		return "", err
	}
	mac := hmac.New(h, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
