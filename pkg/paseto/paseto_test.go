package pasetotoken

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echohealth/echo_backend/config"
)

func newTestManager(t *testing.T, mode Mode) *Manager {
	t.Helper()
	m, err := New(Config{Mode: mode, Issuer: "echo-health", Audience: "echo-health-api", AccessTTL: time.Minute}, GenerateKeys(mode))
	require.NoError(t, err)
	return m
}

func TestIssueAndVerify(t *testing.T) {
	for _, mode := range []Mode{ModeLocal, ModePublic} {
		t.Run(string(mode), func(t *testing.T) {
			m := newTestManager(t, mode)
			uid, sid := uuid.New(), uuid.New()

			tok, err := m.IssueAccess(uid, "doctor", &sid)
			require.NoError(t, err)

			claims, err := m.Verify(tok)
			require.NoError(t, err)
			assert.Equal(t, TokenTypeAccess, claims.Type)
			assert.Equal(t, uid, claims.UserID)
			assert.Equal(t, "doctor", claims.Role)
			require.NotNil(t, claims.SessionID)
			assert.Equal(t, sid, *claims.SessionID)
			assert.False(t, claims.IsExpired())
		})
	}
}

func TestRefreshTokenType(t *testing.T) {
	m := newTestManager(t, ModeLocal)

	tok, err := m.IssueRefresh(uuid.New(), "patient", nil)
	require.NoError(t, err)

	claims, err := m.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, claims.Type)
	assert.Nil(t, claims.SessionID)
	assert.Equal(t, 30*24*time.Hour, m.RefreshTTL())
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	issuer := newTestManager(t, ModeLocal)
	other := newTestManager(t, ModeLocal)

	tok, err := issuer.IssueAccess(uuid.New(), "admin", nil)
	require.NoError(t, err)

	_, err = other.Verify(tok)
	var invalid ErrInvalidToken
	require.True(t, errors.As(err, &invalid))
}

func TestNewRejectsModeMismatch(t *testing.T) {
	_, err := New(Config{Mode: ModePublic, Issuer: "a", Audience: "b"}, GenerateKeys(ModeLocal))
	require.Error(t, err)
}

func TestKeysFromConfig(t *testing.T) {
	local := GenerateKeys(ModeLocal)
	pub := GenerateKeys(ModePublic)
	other := GenerateKeys(ModePublic)

	keys, err := KeysFromConfig(config.PasetoConfig{Mode: "local", LocalKeyHex: local.Symmetric.ExportHex()})
	require.NoError(t, err)
	assert.Equal(t, local.Symmetric.ExportHex(), keys.Symmetric.ExportHex())

	keys, err = KeysFromConfig(config.PasetoConfig{Mode: "public", SecretKeyHex: pub.Secret.ExportHex()})
	require.NoError(t, err)
	assert.Equal(t, pub.Public.ExportHex(), keys.Public.ExportHex())

	_, err = KeysFromConfig(config.PasetoConfig{
		Mode:         "public",
		SecretKeyHex: pub.Secret.ExportHex(),
		PublicKeyHex: other.Public.ExportHex(),
	})
	assert.ErrorContains(t, err, "does not match")

	_, err = KeysFromConfig(config.PasetoConfig{Mode: "public", PublicKeyHex: pub.Public.ExportHex()})
	assert.ErrorContains(t, err, "secret_key_hex")

	_, err = KeysFromConfig(config.PasetoConfig{Mode: "local", LocalKeyHex: "zz"})
	var cfgErr ErrConfig
	assert.ErrorAs(t, err, &cfgErr)

	_, err = KeysFromConfig(config.PasetoConfig{Mode: "jwt"})
	assert.Error(t, err)
}
