package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseJWT(t *testing.T) {
	tok, err := GenerateJWT("u1", string(RoleUser), "chat_sync")
	require.NoError(t, err)

	claims, err := ParseJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.MemberID)
	assert.Equal(t, "chat_sync", claims.Issuer)
}

func TestParseJWTRejectsExpiredAndTampered(t *testing.T) {
	expired, err := GenerateJWTWithTTL("u1", string(RoleUser), "chat_sync", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired)
	assert.Error(t, err)

	tok, err := GenerateJWT("u1", string(RoleUser), "chat_sync")
	require.NoError(t, err)
	_, err = ParseJWT(tok + "x")
	assert.Error(t, err)
}

func TestClaimsIdentityExpires(t *testing.T) {
	tok, err := GenerateJWTWithTTL("u1", string(RoleUser), "chat_sync", 1500*time.Millisecond)
	require.NoError(t, err)
	claims, err := ParseJWT(tok)
	require.NoError(t, err)

	id := NewClaimsIdentity(claims)
	defer id.Close()

	uid, ok := id.CurrentUserID()
	require.True(t, ok)
	assert.Equal(t, "u1", uid)

	changed := make(chan bool, 1)
	id.OnAuthChange(func(valid bool) { changed <- valid })

	select {
	case valid := <-changed:
		assert.False(t, valid)
	case <-time.After(5 * time.Second):
		t.Fatal("identity never expired")
	}
	_, ok = id.CurrentUserID()
	assert.False(t, ok)
}

func TestClaimsIdentityInvalidateOnce(t *testing.T) {
	claims := &Claims{MemberID: "u1"}
	id := NewClaimsIdentity(claims)

	calls := 0
	unsubscribe := id.OnAuthChange(func(bool) { calls++ })
	other := 0
	id.OnAuthChange(func(bool) { other++ })
	unsubscribe()

	id.Invalidate()
	id.Invalidate()
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, other)
}
