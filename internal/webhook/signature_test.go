package webhook

import (
	"errors"
	"testing"
)

func TestSignDefaultAlgorithm(t *testing.T) {
	got, err := Sign("secret", "sha256", 1700000000, []byte("{}"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(got) != 64 {
		t.Errorf("sha256 hex length = %d, want 64", len(got))
	}
	again, _ := Sign("secret", "", 1700000000, []byte("{}"))
	if again != got {
		t.Error("empty algorithm should default to sha256")
	}
}

func TestSignAlgorithms(t *testing.T) {
	lengths := map[string]int{
		"sha1":     40,
		"sha256":   64,
		"sha384":   96,
		"sha512":   128,
		"sha3-256": 64,
		"sha3-512": 128,
	}
	for _, algo := range Algorithms() {
		sig, err := Sign("k", algo, 1, []byte("body"))
		if err != nil {
			t.Fatalf("sign %s: %v", algo, err)
		}
		if len(sig) != lengths[algo] {
			t.Errorf("%s digest length = %d, want %d", algo, len(sig), lengths[algo])
		}
	}

	a, _ := Sign("k", "sha256", 1, []byte("body"))
	b, _ := Sign("k", "sha3-256", 1, []byte("body"))
	if a == b {
		t.Error("sha256 and sha3-256 must differ")
	}
}

func TestSignUnsupported(t *testing.T) {
	_, err := Sign("k", "md5", 1, nil)
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("err = %v, want ErrUnsupportedAlgorithm", err)
	}
	if ValidAlgorithm("md5") {
		t.Error("md5 should not be valid")
	}
}
