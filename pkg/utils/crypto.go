package utils

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateOpaqueToken mints the random bearer tokens stored on users:
// auth tokens replaced on every login and password-reset tokens. Tokens
// are never derived from user data and never reused across users.
func GenerateOpaqueToken() string {
	return uuid.NewString()
}
