// SPDX-License-Identifier: AGPL-3.0-only
package devserver

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type userJSON struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	PostCount int    `json:"post_count"`
	Avatar    string `json:"avatar,omitempty"`
}

type sessionJSON struct {
	User  userJSON  `json:"user"`
	Token tokenPair `json:"token"`
}

func (s *Server) toUserJSON(a account) userJSON {
	return userJSON{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		PostCount: s.store.postCount(a.ID),
		Avatar:    a.Avatar,
	}
}

func (s *Server) registerHandler(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Malformed JSON body."})
		return
	}

	if field, err := validateRegistration(req.Name, req.Email, req.Password); err != nil {
		validationError(c, field, err.Error())
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("Dev server: hash password: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not create account."})
		return
	}

	a, err := s.store.addAccount(req.Name, req.Email, hash)
	if errors.Is(err, errEmailTaken) {
		validationError(c, "email", "The email has already been taken.")
		return
	}

	s.respondWithSession(c, http.StatusCreated, a, "User registered")
}

func (s *Server) loginHandler(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Malformed JSON body."})
		return
	}

	a, err := s.store.accountByEmail(req.Email)
	if err != nil || !checkPasswordHash(a.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials."})
		return
	}

	s.respondWithSession(c, http.StatusOK, a, "Logged in")
}

func (s *Server) refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		validationError(c, "refresh_token", "The refresh token field is required.")
		return
	}

	userID, ok := s.store.takeRefresh(req.RefreshToken)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid refresh token."})
		return
	}

	a, err := s.store.account(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid refresh token."})
		return
	}

	s.respondWithSession(c, http.StatusOK, a, "Token refreshed")
}

func (s *Server) logoutHandler(c *gin.Context) {
	claims := c.MustGet(claimsKey).(*jwt.RegisteredClaims)

	until := s.now()
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	s.store.pruneRevoked(s.now())
	s.store.revoke(claims.ID, currentUserID(c), until)

	c.JSON(http.StatusOK, gin.H{"data": nil, "message": "Logged out"})
}

func (s *Server) respondWithSession(c *gin.Context, status int, a account, message string) {
	tokens, err := s.issueTokens(a.ID)
	if err != nil {
		log.Printf("Dev server: issue tokens for user %d: %v", a.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not issue tokens."})
		return
	}

	c.JSON(status, gin.H{
		"data":    sessionJSON{User: s.toUserJSON(a), Token: tokens},
		"message": message,
	})
}
