package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCrypto_Sign(t *testing.T) {
	// RFC 4231 test case 2.
	key := []byte("Jefe")
	msg := []byte("what do ya want for nothing?")
	expected := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"

	sig := Sign(key, msg)
	if sig != expected {
		t.Error("signature does not match", cmp.Diff(sig, expected))
	}

	if _, err := hex.DecodeString(sig); err != nil {
		t.Error("signature is not hex encoded:", err)
	}
}

func TestCrypto_Verify(t *testing.T) {
	key := []byte("swordfish")
	msg := []byte("the quick brown fox")
	sig := Sign(key, msg)

	tt := []struct {
		name      string
		key       []byte
		msg       []byte
		signature string
		valid     bool
	}{
		{
			name:      "Matching signature",
			key:       key,
			msg:       msg,
			signature: sig,
			valid:     true,
		},
		{
			name:      "Different secret",
			key:       []byte("not-swordfish"),
			msg:       msg,
			signature: sig,
			valid:     false,
		},
		{
			name:      "Different message",
			key:       key,
			msg:       []byte("the quick brown dog"),
			signature: sig,
			valid:     false,
		},
		{
			name:      "Empty signature",
			key:       key,
			msg:       msg,
			signature: "",
			valid:     false,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if Verify(tc.key, tc.msg, tc.signature) != tc.valid {
				t.Errorf("incorrect verification result, want %v", tc.valid)
			}
		})
	}
}
