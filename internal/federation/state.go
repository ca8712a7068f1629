package federation

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateState returns a fresh, unguessable value for the state parameter.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
