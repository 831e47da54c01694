// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kusari-oss/deploymate/internal/core/localstore"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) (*localstore.Store, *localstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	local, err := localstore.Open(dir, localstore.Local)
	require.NoError(t, err)
	session, err := localstore.Open(dir, localstore.Session)
	require.NoError(t, err)
	return local, session, dir
}

type fakeDeleter struct {
	err   error
	calls int
}

func (f *fakeDeleter) DeleteAccount(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestStore_LoginPersistsAndHydrates(t *testing.T) {
	local, session, dir := openStores(t)
	s := NewStore(local, session, nil)
	assert.False(t, s.IsAuthenticated())

	require.NoError(t, s.Login("tok", &models.User{ID: 1, Username: "octo"}))
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "tok", s.Token())

	reopened, err := localstore.Open(dir, localstore.Local)
	require.NoError(t, err)
	again := NewStore(reopened, session, nil)
	require.True(t, again.IsAuthenticated())
	assert.Equal(t, "octo", again.User().Username)
}

func TestStore_LoginRequiresBoth(t *testing.T) {
	local, session, _ := openStores(t)
	s := NewStore(local, session, nil)
	assert.Error(t, s.Login("", &models.User{Username: "x"}))
	assert.Error(t, s.Login("tok", nil))
	assert.False(t, s.IsAuthenticated())
}

func TestStore_CorruptUserPurges(t *testing.T) {
	local, session, _ := openStores(t)
	require.NoError(t, local.SetItem(TokenKey, "tok"))
	require.NoError(t, local.SetItem(UserKey, "{not json"))

	s := NewStore(local, session, nil)
	assert.False(t, s.IsAuthenticated())
	_, ok := local.GetItem(TokenKey)
	assert.False(t, ok)
	_, ok = local.GetItem(UserKey)
	assert.False(t, ok)
}

func TestStore_TokenWithoutUserIsLoggedOut(t *testing.T) {
	local, session, _ := openStores(t)
	require.NoError(t, local.SetItem(TokenKey, "tok"))

	s := NewStore(local, session, nil)
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Token())
}

func TestStore_LogoutKeepsOtherKeys(t *testing.T) {
	local, session, _ := openStores(t)
	require.NoError(t, local.SetItem("ci_cd_app_state", "{}"))
	s := NewStore(local, session, nil)
	require.NoError(t, s.Login("tok", &models.User{Username: "octo"}))

	s.Logout()
	assert.False(t, s.IsAuthenticated())
	assert.Nil(t, s.User())
	_, ok := local.GetItem(TokenKey)
	assert.False(t, ok)
	_, ok = local.GetItem("ci_cd_app_state")
	assert.True(t, ok)

	s.Logout()
}

func TestStore_DeleteAccount(t *testing.T) {
	t.Run("success clears storage", func(t *testing.T) {
		local, session, _ := openStores(t)
		require.NoError(t, session.SetItem("wizard", "x"))
		s := NewStore(local, session, nil)
		require.NoError(t, s.Login("tok", &models.User{Username: "octo"}))

		d := &fakeDeleter{}
		assert.True(t, s.DeleteAccount(context.Background(), d))
		assert.Equal(t, 1, d.calls)
		assert.False(t, s.IsAuthenticated())
		assert.Empty(t, session.Keys())
	})

	t.Run("failure keeps session and does not panic", func(t *testing.T) {
		local, session, _ := openStores(t)
		s := NewStore(local, session, nil)
		require.NoError(t, s.Login("tok", &models.User{Username: "octo"}))

		assert.False(t, s.DeleteAccount(context.Background(), &fakeDeleter{err: errors.New("boom")}))
		assert.True(t, s.IsAuthenticated())
	})

	t.Run("no session skips the backend", func(t *testing.T) {
		local, session, _ := openStores(t)
		s := NewStore(local, session, nil)
		d := &fakeDeleter{}
		assert.False(t, s.DeleteAccount(context.Background(), d))
		assert.Equal(t, 0, d.calls)
	})
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "octo",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	got, ok := TokenExpiry(signed)
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = TokenExpiry("opaque-token")
	assert.False(t, ok)
	_, ok = TokenExpiry("")
	assert.False(t, ok)

	local, session, _ := openStores(t)
	s := NewStore(local, session, nil)
	require.NoError(t, s.Login(signed, &models.User{Username: "octo"}))
	assert.False(t, s.Expired(exp.Add(-time.Hour)))
	assert.True(t, s.Expired(exp.Add(time.Hour)))
}
