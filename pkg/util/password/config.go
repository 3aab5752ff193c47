package password

import "github.com/echohealth/echo_backend/config"

// Config holds password hashing parameters
type Config struct {
	// Algorithm is the preferred algorithm for new hashes: "argon2id" (default) or "bcrypt".
	Algorithm string

	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// LowMemoryMode caps memory at 32 MiB for constrained environments
	LowMemoryMode bool
}

// ToParams converts Config to Argon2id Params, filling zero values from DefaultParams.
func (c Config) ToParams() *Params {
	p := DefaultParams()
	if c.MemoryKiB > 0 {
		p.Memory = c.MemoryKiB
	}
	if c.Iterations > 0 {
		p.Iterations = c.Iterations
	}
	if c.Parallelism > 0 {
		p.Parallelism = c.Parallelism
	}
	if c.SaltLength > 0 {
		p.SaltLength = c.SaltLength
	}
	if c.KeyLength > 0 {
		p.KeyLength = c.KeyLength
	}
	if c.LowMemoryMode && p.Memory > 32*1024 {
		p.Memory = 32 * 1024
		p.Iterations++
	}
	return p
}

// FromCentralConfig converts central config.PasswordConfig to package Config
func FromCentralConfig(c config.PasswordConfig) Config {
	return Config{
		Algorithm:     c.Algorithm,
		MemoryKiB:     c.MemoryKiB,
		Iterations:    c.Iterations,
		Parallelism:   c.Parallelism,
		SaltLength:    c.SaltLength,
		KeyLength:     c.KeyLength,
		LowMemoryMode: c.LowMemoryMode,
	}
}

// New builds the Verifier for c. Both algorithms stay verifiable whichever
// one is preferred.
func New(c Config) *Verifier {
	argon := NewArgon2id(c.ToParams())
	bc := NewBcrypt(0)
	if c.Algorithm == AlgorithmBcrypt {
		return NewVerifier(bc, argon)
	}
	return NewVerifier(argon, bc)
}
