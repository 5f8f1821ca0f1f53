package crypto

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

var testKey = strings.Repeat("ab", 32) // 64 hex chars

func TestSealOpenRoundTrip(t *testing.T) {
	blob := []byte("credential material\x00\x01binary ok")

	sealed, err := Seal(blob, testKey)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Equal(sealed, blob) {
		t.Fatalf("sealed blob equals plaintext")
	}
	if !IsSealed(sealed) {
		t.Fatalf("sealed blob missing magic")
	}

	opened, err := Open(sealed, testKey)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, blob) {
		t.Errorf("round trip mismatch")
	}
}

func TestSealEmptyKeyPassthrough(t *testing.T) {
	blob := []byte("plain")
	sealed, err := Seal(blob, "")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !bytes.Equal(sealed, blob) {
		t.Errorf("empty key should pass blob through")
	}
	if IsSealed(sealed) {
		t.Errorf("passthrough should not carry magic")
	}
}

func TestOpenPlainBlobPassthrough(t *testing.T) {
	blob := []byte("never sealed")
	opened, err := Open(blob, testKey)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, blob) {
		t.Errorf("plain blob should pass through")
	}
}

func TestOpenWrongKey(t *testing.T) {
	sealed, err := Seal([]byte("secret"), testKey)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	otherKey := strings.Repeat("cd", 32)
	if _, err := Open(sealed, otherKey); err == nil {
		t.Fatalf("expected failure with wrong key")
	}
}

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "hex 64", input: strings.Repeat("0f", 32)},
		{name: "raw 32", input: strings.Repeat("k", 32)},
		{name: "too short", input: "short", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DeriveKey(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(key) != 32 {
				t.Errorf("key length = %d, want 32", len(key))
			}
		})
	}

	t.Run("hex decodes", func(t *testing.T) {
		want, _ := hex.DecodeString(strings.Repeat("0f", 32))
		got, err := DeriveKey(strings.Repeat("0f", 32))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("hex key mismatch")
		}
	})
}
