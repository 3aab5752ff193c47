package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

var testParams = &Params{
	Memory:      8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func TestArgon2idHash(t *testing.T) {
	h := NewArgon2id(testParams)

	hash, err := h.Hash("correcthorsebatterystaple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$v=") {
		t.Errorf("Hash() format invalid, got %s", hash)
	}
	if !strings.Contains(hash, "m=8192,t=1,p=1") {
		t.Errorf("Hash() params not encoded correctly: %s", hash)
	}
	if parts := strings.Split(hash, "$"); len(parts) != 6 {
		t.Errorf("Hash() expected 6 parts, got %d", len(parts))
	}
}

func TestArgon2idVerify(t *testing.T) {
	h := NewArgon2id(testParams)
	password := "mysecretpassword"

	hash, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		wantErr  error
	}{
		{"correct password", hash, password, nil},
		{"wrong password", hash, "wrongpassword", ErrMismatch},
		{"empty password", hash, "", ErrMismatch},
		{"invalid hash format", "notahash", password, ErrInvalidHash},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=3,p=2$c29tZXNhbHQ$c29tZWhhc2g", password, ErrInvalidHash},
		{"malformed params", "$argon2id$v=19$invalid$c29tZXNhbHQ$c29tZWhhc2g", password, ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.Verify(tt.hash, tt.password); err != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestArgon2idNeedsRehash(t *testing.T) {
	h := NewArgon2id(testParams)

	hash, _ := h.Hash("testpassword")
	if h.NeedsRehash(hash) {
		t.Error("NeedsRehash() should return false for current params")
	}

	stronger := NewArgon2id(&Params{Memory: 16 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if !stronger.NeedsRehash(hash) {
		t.Error("NeedsRehash() should return true for outdated params")
	}
}

func TestBcryptVerify(t *testing.T) {
	b := NewBcrypt(bcrypt.MinCost)

	hash, err := b.Hash("legacy-secret")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if err := b.Verify(hash, "legacy-secret"); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	if err := b.Verify(hash, "nope"); err != ErrMismatch {
		t.Errorf("Verify() error = %v, want ErrMismatch", err)
	}
	if b.NeedsRehash(hash) {
		t.Error("NeedsRehash() should be false at the same cost")
	}
	if !NewBcrypt(bcrypt.MinCost + 1).NeedsRehash(hash) {
		t.Error("NeedsRehash() should be true at a different cost")
	}
}

func TestIdentify(t *testing.T) {
	tests := []struct {
		hash    string
		want    string
		wantErr error
	}{
		{"$argon2id$v=19$m=1,t=1,p=1$a$b", AlgorithmArgon2id, nil},
		{"$2a$10$abcdefghijklmnopqrstuv", AlgorithmBcrypt, nil},
		{"$2b$10$abcdefghijklmnopqrstuv", AlgorithmBcrypt, nil},
		{"$2y$10$abcdefghijklmnopqrstuv", AlgorithmBcrypt, nil},
		{"$scrypt$whatever", "", ErrUnknownAlgorithm},
		{"", "", ErrUnknownAlgorithm},
	}

	for _, tt := range tests {
		got, err := Identify(tt.hash)
		if got != tt.want || !errors.Is(err, tt.wantErr) {
			t.Errorf("Identify(%q) = %q, %v; want %q, %v", tt.hash, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestVerifierLegacyBcrypt(t *testing.T) {
	v := NewVerifier(NewArgon2id(testParams), NewBcrypt(bcrypt.MinCost))

	legacy, err := NewBcrypt(bcrypt.MinCost).Hash("old-password")
	if err != nil {
		t.Fatalf("bcrypt Hash() error = %v", err)
	}

	if err := v.Verify(legacy, "old-password"); err != nil {
		t.Fatalf("Verify(legacy) error = %v", err)
	}
	if !v.NeedsRehash(legacy) {
		t.Error("legacy bcrypt hash should need rehash")
	}

	fresh, err := v.Hash("old-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(fresh, "$argon2id$") {
		t.Errorf("Hash() should use preferred algorithm, got %s", fresh)
	}
	if v.NeedsRehash(fresh) {
		t.Error("fresh hash should not need rehash")
	}
	if err := v.Verify(fresh, "old-password"); err != nil {
		t.Errorf("Verify(fresh) error = %v", err)
	}
}

func TestVerifierUnknownAlgorithm(t *testing.T) {
	v := NewVerifier(NewArgon2id(testParams))

	if err := v.Verify("plaintext", "plaintext"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("Verify() error = %v, want ErrUnknownAlgorithm", err)
	}

	legacy, _ := NewBcrypt(bcrypt.MinCost).Hash("pw")
	if err := v.Verify(legacy, "pw"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("Verify() without bcrypt registered error = %v, want ErrUnknownAlgorithm", err)
	}
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name   string
		length int
		want   int
	}{
		{"default length (0)", 0, 16},
		{"custom length 8", 8, 8},
		{"custom length 32", 32, 32},
		{"negative length", -5, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Generate(tt.length); len(got) != tt.want {
				t.Errorf("Generate(%d) length = %d, want %d", tt.length, len(got), tt.want)
			}
		})
	}
}
