// ABOUTME: Session token loading and identity extraction for the chat client
// ABOUTME: Reads the token from env or file and takes the user ID from its JWT subject

package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenEnv is the environment variable checked first for the session token.
const TokenEnv = "COVEN_CHAT_TOKEN"

// LoadToken returns the token from COVEN_CHAT_TOKEN or the token file at
// $XDG_CONFIG_HOME/coven-chat/token (default ~/.config). It returns ""
// when neither is set.
func LoadToken() string {
	if token := os.Getenv(TokenEnv); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "coven-chat", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SubjectFromToken returns the "sub" claim of a JWT. The signature is not
// checked; the server verifies the token on every request.
func SubjectFromToken(tokenString string) (string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		// Some servers put the id in a userId claim instead.
		if id, ok := claims["userId"].(string); ok && id != "" {
			return id, nil
		}
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}
