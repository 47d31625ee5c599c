package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileoff/backend/internal/storage/memory"
)

func TestService_Register(t *testing.T) {
	svc := NewService(memory.NewStore())

	t.Run("注册成功", func(t *testing.T) {
		user, err := svc.Register(RegisterInput{Login: "alice", Password: "secret-pass"})
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Login)
		assert.NotEmpty(t, user.ID)
		assert.NotEmpty(t, user.PasswordHash)
		assert.NotEqual(t, "secret-pass", user.PasswordHash)
	})

	t.Run("登录名统一转为小写", func(t *testing.T) {
		user, err := svc.Register(RegisterInput{Login: "  BoB  ", Password: "secret-pass"})
		require.NoError(t, err)
		assert.Equal(t, "bob", user.Login)
	})

	t.Run("登录名重复", func(t *testing.T) {
		_, err := svc.Register(RegisterInput{Login: "alice", Password: "another-pass"})
		assert.ErrorIs(t, err, ErrLoginExists)
	})

	t.Run("登录名格式不合法", func(t *testing.T) {
		for _, login := range []string{"", "ab", "-leading", "has space", strings.Repeat("x", 33)} {
			_, err := svc.Register(RegisterInput{Login: login, Password: "secret-pass"})
			assert.ErrorIs(t, err, ErrInvalidLogin, "login: %q", login)
		}
	})

	t.Run("密码太短", func(t *testing.T) {
		_, err := svc.Register(RegisterInput{Login: "carol", Password: "short"})
		assert.Error(t, err)
	})

	t.Run("密码超过 bcrypt 上限", func(t *testing.T) {
		_, err := svc.Register(RegisterInput{Login: "carol", Password: strings.Repeat("x", 73)})
		assert.Error(t, err)
	})
}

func TestService_Login(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store)

	registered, err := svc.Register(RegisterInput{Login: "alice", Password: "secret-pass"})
	require.NoError(t, err)

	t.Run("登录成功并刷新最近登录时间", func(t *testing.T) {
		user, err := svc.Login(LoginInput{Login: "alice", Password: "secret-pass"})
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)

		stored, err := store.GetUserByID(registered.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored.LastLoginAt)
	})

	t.Run("登录名大小写不敏感", func(t *testing.T) {
		_, err := svc.Login(LoginInput{Login: "ALICE", Password: "secret-pass"})
		assert.NoError(t, err)
	})

	t.Run("密码错误", func(t *testing.T) {
		_, err := svc.Login(LoginInput{Login: "alice", Password: "wrong-pass"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("用户不存在时返回同样的错误", func(t *testing.T) {
		_, err := svc.Login(LoginInput{Login: "nobody", Password: "secret-pass"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestService_GetUserByID(t *testing.T) {
	svc := NewService(memory.NewStore())

	user, err := svc.Register(RegisterInput{Login: "alice", Password: "secret-pass"})
	require.NoError(t, err)

	got, err := svc.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Login)

	_, err = svc.GetUserByID("missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPasswordHelpers(t *testing.T) {
	hash, err := HashPassword("secret-pass")
	require.NoError(t, err)

	assert.True(t, CheckPassword("secret-pass", hash))
	assert.False(t, CheckPassword("wrong-pass", hash))
	assert.False(t, CheckPassword("secret-pass", "not-a-hash"))
}
