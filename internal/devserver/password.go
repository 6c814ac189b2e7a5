// SPDX-License-Identifier: AGPL-3.0-only
package devserver

import (
	"fmt"
	"net/mail"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func checkPasswordHash(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// validateRegistration mirrors the API's validation rules for new accounts.
func validateRegistration(name, email, password string) (field string, err error) {
	if name == "" {
		return "name", fmt.Errorf("The name field is required.")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "email", fmt.Errorf("The email must be a valid email address.")
	}
	if len(password) < 8 {
		return "password", fmt.Errorf("The password must be at least 8 characters.")
	}

	var hasLetter, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsLetter(char):
			hasLetter = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}
	if !hasLetter || !hasNumber {
		return "password", fmt.Errorf("The password must contain letters and numbers.")
	}

	return "", nil
}
