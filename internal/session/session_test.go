package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fluffyriot/foodies/internal/credstore"
	"github.com/fluffyriot/foodies/internal/gateway"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginBody = `{"data":{"user":{"id":1,"name":"Victor","email":"v@test.dev","post_count":0},"token":{"token_type":"Bearer","expires_in":3600,"access_token":"acc-1","refresh_token":"ref-1"}},"message":"ok"}`

func newServer(t *testing.T, handler http.HandlerFunc) (*Controller, *credstore.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := credstore.NewMemoryStore()
	gw := gateway.NewClient(srv.URL+"/api/v1", time.Second, store)
	return NewController(gw, store), store
}

func TestLoginStoresTokens(t *testing.T) {
	var got map[string]string
	c, store := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/user/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, loginBody)
	})

	user, err := c.Login(context.Background(), "v@test.dev", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "Victor", user.User.Name)
	assert.Equal(t, map[string]string{"email": "v@test.dev", "password": "hunter22"}, got)

	access, err := store.Get(credstore.AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", access)
	refresh, err := store.Get(credstore.RefreshTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", refresh)
	assert.True(t, c.IsLoggedIn())
}

func TestJoinSendsName(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/user/register", r.URL.Path)
		var body joinRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Victor", body.Name)
		_, _ = io.WriteString(w, loginBody)
	})

	_, err := c.Join(context.Background(), "Victor", "v@test.dev", "hunter22")
	require.NoError(t, err)
	assert.True(t, c.IsLoggedIn())
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"wrong password", http.StatusUnauthorized, `{"message":"nope"}`, gateway.ErrUnauthorized},
		{"validation", http.StatusUnprocessableEntity, `{"message":"invalid"}`, gateway.BadStatus(422)},
		{"no token in payload", http.StatusOK, `{"data":{"user":{"id":1}},"message":"ok"}`, gateway.ErrDecoding},
		{"empty access token", http.StatusOK, `{"data":{"token":{"access_token":""}}}`, gateway.ErrDecoding},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, store := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			_, err := c.Login(context.Background(), "v@test.dev", "x")
			assert.ErrorIs(t, err, tc.want)

			_, err = store.Get(credstore.AccessTokenKey)
			assert.ErrorIs(t, err, credstore.ErrNotFound)
			assert.False(t, c.IsLoggedIn())
		})
	}
}

func TestRefreshUsesStoredToken(t *testing.T) {
	c, store := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/user/token-refresh", r.URL.Path)
		var body refreshRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ref-0", body.RefreshToken)
		_, _ = io.WriteString(w, loginBody)
	})
	require.NoError(t, store.Set(credstore.RefreshTokenKey, "ref-0"))

	_, err := c.RefreshToken(context.Background(), "")
	require.NoError(t, err)

	refresh, _ := store.Get(credstore.RefreshTokenKey)
	assert.Equal(t, "ref-1", refresh)
}

func TestRefreshWithoutStoredToken(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.RefreshToken(context.Background(), "")
	assert.ErrorIs(t, err, credstore.ErrNotFound)
}

func TestLogout(t *testing.T) {
	c, store := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/user/logout", r.URL.Path)
		assert.Equal(t, "Bearer acc-1", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":null,"message":"logged out"}`)
	})
	require.NoError(t, store.Set(credstore.AccessTokenKey, "acc-1"))
	require.NoError(t, store.Set(credstore.RefreshTokenKey, "ref-1"))

	_, err := c.Logout(context.Background())
	require.NoError(t, err)

	assert.False(t, c.IsLoggedIn())
	_, err = store.Get(credstore.RefreshTokenKey)
	assert.ErrorIs(t, err, credstore.ErrNotFound)
}

func TestLogoutWithoutTokenSendsNothing(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.LogoutWithRetry(context.Background(), 3)
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
}

func TestLogoutWithRetry(t *testing.T) {
	var calls atomic.Int32
	c, store := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"message":"logged out"}`)
	})
	require.NoError(t, store.Set(credstore.AccessTokenKey, "acc-1"))

	_, err := c.LogoutWithRetry(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, c.IsLoggedIn())
}

func TestLogoutWithRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	c, store := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	require.NoError(t, store.Set(credstore.AccessTokenKey, "acc-1"))

	_, err := c.LogoutWithRetry(context.Background(), 2)
	assert.ErrorIs(t, err, gateway.BadStatus(500))
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, c.IsLoggedIn())
}

type failingStore struct {
	*credstore.MemoryStore
}

func (failingStore) Set(string, string) error {
	return errors.New("disk full")
}

func TestLoginStoreFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, loginBody)
	}))
	defer srv.Close()

	store := failingStore{credstore.NewMemoryStore()}
	c := NewController(gateway.NewClient(srv.URL, time.Second, store), store)

	_, err := c.Login(context.Background(), "v@test.dev", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, gateway.KindUnknown, gateway.KindOf(err))
}

func TestTokenExpiry(t *testing.T) {
	store := credstore.NewMemoryStore()
	c := NewController(nil, store)

	_, ok := c.TokenExpiry()
	assert.False(t, ok)

	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("any key"))
	require.NoError(t, err)
	require.NoError(t, store.Set(credstore.AccessTokenKey, signed))

	got, ok := c.TokenExpiry()
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	require.NoError(t, store.Set(credstore.AccessTokenKey, "opaque"))
	_, ok = c.TokenExpiry()
	assert.False(t, ok)
}
