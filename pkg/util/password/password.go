// Package password hashes and verifies account secrets. Hashes are
// self-describing strings, so a Verifier can check secrets stored by any
// supported algorithm while hashing new ones with the preferred one.
package password

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidHash         = errors.New("invalid password hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
	ErrMismatch            = errors.New("password does not match")
	ErrUnknownAlgorithm    = errors.New("unknown password hash algorithm")
)

const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// Hasher is one password hashing algorithm.
type Hasher interface {
	ID() string
	Hash(plain string) (string, error)
	// Verify returns nil on match, ErrMismatch on a wrong secret and
	// ErrInvalidHash when hash cannot be parsed.
	Verify(hash, plain string) error
	// NeedsRehash reports whether hash was produced with parameters other
	// than the hasher's current ones.
	NeedsRehash(hash string) bool
}

// Identify returns the algorithm id encoded in hash.
func Identify(hash string) (string, error) {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return AlgorithmArgon2id, nil
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return AlgorithmBcrypt, nil
	}
	return "", ErrUnknownAlgorithm
}

// ---------------------------------------------------------------------------
// Verifier
// ---------------------------------------------------------------------------

// Verifier dispatches on the algorithm of a stored hash and hashes new
// secrets with its preferred Hasher.
type Verifier struct {
	preferred Hasher
	byID      map[string]Hasher
}

// NewVerifier returns a Verifier hashing with preferred. legacy hashers are
// accepted for verification only.
func NewVerifier(preferred Hasher, legacy ...Hasher) *Verifier {
	v := &Verifier{preferred: preferred, byID: map[string]Hasher{preferred.ID(): preferred}}
	for _, h := range legacy {
		if _, ok := v.byID[h.ID()]; !ok {
			v.byID[h.ID()] = h
		}
	}
	return v
}

func (v *Verifier) ID() string { return v.preferred.ID() }

func (v *Verifier) Hash(plain string) (string, error) {
	return v.preferred.Hash(plain)
}

func (v *Verifier) Verify(hash, plain string) error {
	h, err := v.hasherFor(hash)
	if err != nil {
		return err
	}
	return h.Verify(hash, plain)
}

// NeedsRehash is true for hashes from a non-preferred algorithm or with
// outdated parameters.
func (v *Verifier) NeedsRehash(hash string) bool {
	id, err := Identify(hash)
	if err != nil || id != v.preferred.ID() {
		return true
	}
	return v.preferred.NeedsRehash(hash)
}

func (v *Verifier) hasherFor(hash string) (Hasher, error) {
	id, err := Identify(hash)
	if err != nil {
		return nil, err
	}
	h, ok := v.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, id)
	}
	return h, nil
}

// Generate creates a random password of the specified length.
// Uses URL-safe base64 characters (a-z, A-Z, 0-9, -, _).
func Generate(length int) string {
	if length <= 0 {
		length = 16
	}

	byteLen := (length*6 + 7) / 8
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("failed to generate random password: %w", err))
	}

	encoded := base64.RawURLEncoding.EncodeToString(b)
	if len(encoded) > length {
		return encoded[:length]
	}
	return encoded
}
