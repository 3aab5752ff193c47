package pasetotoken

import (
	"strings"

	paseto "aidanwoods.dev/go-paseto"

	"github.com/echohealth/echo_backend/config"
)

type Mode string

const (
	ModeLocal  Mode = "local"  // v4.local, encrypted
	ModePublic Mode = "public" // v4.public, signed
)

// Keys is the key material for one mode. Local mode only sets Symmetric.
type Keys struct {
	Mode      Mode
	Symmetric *paseto.V4SymmetricKey
	Secret    *paseto.V4AsymmetricSecretKey
	Public    *paseto.V4AsymmetricPublicKey
}

// KeysFromConfig decodes the configured hex keys. The API both issues and
// verifies tokens, so public mode needs the secret key; a public key given
// alongside it must be the one derived from it.
func KeysFromConfig(p config.PasetoConfig) (Keys, error) {
	switch Mode(p.Mode) {
	case ModeLocal:
		k, err := paseto.V4SymmetricKeyFromHex(strings.TrimSpace(p.LocalKeyHex))
		if err != nil {
			return Keys{}, ErrConfig{Msg: "local_key_hex: " + err.Error()}
		}
		return Keys{Mode: ModeLocal, Symmetric: &k}, nil

	case ModePublic:
		sk, err := paseto.NewV4AsymmetricSecretKeyFromHex(strings.TrimSpace(p.SecretKeyHex))
		if err != nil {
			return Keys{}, ErrConfig{Msg: "secret_key_hex: " + err.Error()}
		}
		pk := sk.Public()
		if pub := strings.TrimSpace(p.PublicKeyHex); pub != "" && !strings.EqualFold(pub, pk.ExportHex()) {
			return Keys{}, ErrConfig{Msg: "public_key_hex does not match secret_key_hex"}
		}
		return Keys{Mode: ModePublic, Secret: &sk, Public: &pk}, nil

	default:
		return Keys{}, ErrConfig{Msg: "mode must be local or public, got " + p.Mode}
	}
}

// GenerateKeys returns fresh random keys for mode.
func GenerateKeys(mode Mode) Keys {
	if mode == ModePublic {
		sk := paseto.NewV4AsymmetricSecretKey()
		pk := sk.Public()
		return Keys{Mode: ModePublic, Secret: &sk, Public: &pk}
	}
	k := paseto.NewV4SymmetricKey()
	return Keys{Mode: ModeLocal, Symmetric: &k}
}
