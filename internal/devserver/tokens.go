// SPDX-License-Identifier: AGPL-3.0-only
package devserver

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type tokenPair struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) issueTokens(userID int) (tokenPair, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return tokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh := uuid.NewString()
	s.store.putRefresh(refresh, userID)

	return tokenPair{
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTTL / time.Second),
		AccessToken:  signed,
		RefreshToken: refresh,
	}, nil
}

// parseAccessToken verifies signature, expiry and revocation and returns the
// user id and token id.
func (s *Server) parseAccessToken(raw string) (int, *jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return 0, nil, err
	}

	if s.store.isRevoked(claims.ID) {
		return 0, nil, errors.New("token revoked")
	}

	userID, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return 0, nil, fmt.Errorf("bad subject: %w", err)
	}
	if _, err := s.store.account(userID); err != nil {
		return 0, nil, errors.New("unknown user")
	}
	return userID, claims, nil
}
