package token

import (
	"errors"
	"strings"
	"testing"
)

func TestGeneratorGenerate(t *testing.T) {
	gen := NewGenerator("node-token-secret")

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := gen.Generate("node-1")
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if len(tok) != 64 {
			t.Fatalf("Generate() length = %d, want 64", len(tok))
		}
		if strings.Trim(tok, "0123456789abcdef") != "" {
			t.Fatalf("Generate() token is not lowercase hex: %q", tok)
		}
		if seen[tok] {
			t.Fatalf("Generate() returned token %q twice", tok)
		}
		seen[tok] = true
	}
}

func TestGeneratorRequiresNodeID(t *testing.T) {
	if _, err := NewGenerator("secret").Generate(""); err == nil {
		t.Fatal("Generate() accepted an empty node id")
	}
}

func TestSignIsKeyed(t *testing.T) {
	a := NewGenerator("secret-a")
	b := NewGenerator("secret-b")
	if a.sign("node:nonce") == b.sign("node:nonce") {
		t.Fatal("sign() ignored the key")
	}
	if a.sign("node:nonce") != a.sign("node:nonce") {
		t.Fatal("sign() is not deterministic")
	}
}

func TestEqual(t *testing.T) {
	if !Equal("abc", "abc") {
		t.Error("Equal() rejected identical tokens")
	}
	if Equal("abc", "abd") || Equal("abc", "abcd") {
		t.Error("Equal() accepted different tokens")
	}
}

func TestValidateLength(t *testing.T) {
	tests := []struct {
		name    string
		tok     string
		wantErr bool
	}{
		{"minimum", strings.Repeat("a", MinTokenLength), false},
		{"issued", strings.Repeat("f", 64), false},
		{"short", "short", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLength(tt.tok)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateLength() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrTooShort) {
				t.Fatalf("ValidateLength() error = %v, want ErrTooShort", err)
			}
		})
	}
}

func BenchmarkGeneratorGenerate(b *testing.B) {
	gen := NewGenerator("bench-secret")
	for i := 0; i < b.N; i++ {
		if _, err := gen.Generate("node"); err != nil {
			b.Fatal(err)
		}
	}
}
