// SPDX-License-Identifier: AGPL-3.0-only

// Package session logs the user in and out and keeps the resulting tokens in
// a credential store. Nothing else in the client talks to it: the gateway
// only ever reads the store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fluffyriot/foodies/internal/blog"
	"github.com/fluffyriot/foodies/internal/credstore"
	"github.com/fluffyriot/foodies/internal/gateway"
	"github.com/golang-jwt/jwt/v5"
)

// Gateway is the part of gateway.Client the session endpoints need.
type Gateway interface {
	PostJSON(ctx context.Context, path string, body any, requiresAuth bool, out any) error
}

type Controller struct {
	gw    Gateway
	store credstore.Store
}

func NewController(gw Gateway, store credstore.Store) *Controller {
	return &Controller{
		gw:    gw,
		store: store,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type joinRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenEnvelope only decodes when the payload carries an access token, so a
// success response without one surfaces as a decoding failure.
type tokenEnvelope struct {
	Data    blog.User
	Message string
}

func (e *tokenEnvelope) UnmarshalJSON(b []byte) error {
	var raw struct {
		Data    *blog.User `json:"data"`
		Message string     `json:"message"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Data == nil || raw.Data.Token == nil || raw.Data.Token.AccessToken == "" {
		return errors.New("session response: missing access token")
	}

	e.Data = *raw.Data
	e.Message = raw.Message
	return nil
}

type logoutEnvelope struct {
	Data    *blog.User `json:"data"`
	Message string     `json:"message"`
}

func (c *Controller) Login(ctx context.Context, email, password string) (*blog.User, error) {
	return c.authenticate(ctx, "/user/login", loginRequest{Email: email, Password: password})
}

func (c *Controller) Join(ctx context.Context, name, email, password string) (*blog.User, error) {
	return c.authenticate(ctx, "/user/register", joinRequest{Name: name, Email: email, Password: password})
}

// RefreshToken trades a refresh token for a new pair. When refreshToken is
// empty the stored one is used.
func (c *Controller) RefreshToken(ctx context.Context, refreshToken string) (*blog.User, error) {
	if refreshToken == "" {
		stored, err := c.store.Get(credstore.RefreshTokenKey)
		if err != nil {
			return nil, fmt.Errorf("read refresh token: %w", err)
		}
		refreshToken = stored
	}
	return c.authenticate(ctx, "/user/token-refresh", refreshRequest{RefreshToken: refreshToken})
}

func (c *Controller) authenticate(ctx context.Context, path string, body any) (*blog.User, error) {
	var resp tokenEnvelope
	if err := c.gw.PostJSON(ctx, path, body, false, &resp); err != nil {
		return nil, err
	}

	user := resp.Data
	if err := c.store.Set(credstore.AccessTokenKey, user.Token.AccessToken); err != nil {
		return nil, fmt.Errorf("store access token: %w", err)
	}
	if user.Token.RefreshToken != "" {
		if err := c.store.Set(credstore.RefreshTokenKey, user.Token.RefreshToken); err != nil {
			return nil, fmt.Errorf("store refresh token: %w", err)
		}
	}

	return &user, nil
}

// Logout ends the session on the server and then forgets both tokens. On
// failure the stored tokens are left in place.
func (c *Controller) Logout(ctx context.Context) (*blog.User, error) {
	var resp logoutEnvelope
	if err := c.gw.PostJSON(ctx, "/user/logout", nil, true, &resp); err != nil {
		return nil, err
	}

	for _, key := range []string{credstore.AccessTokenKey, credstore.RefreshTokenKey} {
		if err := c.store.Delete(key); err != nil {
			return nil, fmt.Errorf("delete %s: %w", key, err)
		}
	}

	return resp.Data, nil
}

// LogoutWithRetry calls Logout up to attempts times. An Unauthorized failure
// is returned at once: retrying cannot produce a token.
func (c *Controller) LogoutWithRetry(ctx context.Context, attempts int) (*blog.User, error) {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		var user *blog.User
		user, err = c.Logout(ctx)
		if err == nil {
			return user, nil
		}
		if errors.Is(err, gateway.ErrUnauthorized) || ctx.Err() != nil {
			return nil, err
		}
		log.Printf("Session: logout attempt %d/%d failed: %v", i, attempts, err)
	}
	return nil, err
}

func (c *Controller) IsLoggedIn() bool {
	token, err := c.store.Get(credstore.AccessTokenKey)
	return err == nil && token != ""
}

// TokenExpiry reports the exp claim of the stored access token. The signature
// is not checked; only the server can do that. ok is false when there is no
// token, it is not a JWT, or it carries no exp.
func (c *Controller) TokenExpiry() (expiry time.Time, ok bool) {
	token, err := c.store.Get(credstore.AccessTokenKey)
	if err != nil || token == "" {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
