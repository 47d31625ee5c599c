package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager("test-secret-key-at-least-32-bytes!!", "fileoff-test", 15*time.Minute, 24*time.Hour)
}

func TestManager_GenerateAndValidate(t *testing.T) {
	m := newTestManager()

	pair, err := m.GenerateTokenPair("u1", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), pair.ExpiresIn)

	claims, err := m.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.Login)
	assert.Equal(t, "fileoff-test", claims.Issuer)
	assert.Equal(t, "u1", claims.Subject)
}

func TestManager_ValidateToken(t *testing.T) {
	m := newTestManager()

	t.Run("格式错误的令牌", func(t *testing.T) {
		_, err := m.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("密钥不匹配", func(t *testing.T) {
		other := NewManager("another-secret-key-also-32-bytes!!!", "fileoff-test", 15*time.Minute, 24*time.Hour)
		pair, err := other.GenerateTokenPair("u1", "alice")
		require.NoError(t, err)

		_, err = m.ValidateToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("过期令牌", func(t *testing.T) {
		expired := NewManager("test-secret-key-at-least-32-bytes!!", "fileoff-test", -time.Minute, 24*time.Hour)
		pair, err := expired.GenerateTokenPair("u1", "alice")
		require.NoError(t, err)

		_, err = m.ValidateToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestManager_RefreshAccessToken(t *testing.T) {
	m := newTestManager()

	pair, err := m.GenerateTokenPair("u1", "alice")
	require.NoError(t, err)

	access, err := m.RefreshAccessToken(pair.RefreshToken)
	require.NoError(t, err)

	claims, err := m.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.Login)

	_, err = m.RefreshAccessToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
