package validation

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const (
	// p256dhKeyLength is the size of an uncompressed P-256 public key.
	p256dhKeyLength = 65
	// authSecretLength is the size of the Web Push auth secret.
	authSecretLength = 16
)

// ValidateEndpoint checks that a push endpoint is an absolute https URL.
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("endpoint must use https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint has no host")
	}
	return nil
}

// ValidateP256dh checks that key is a base64url-encoded uncompressed P-256 point.
func ValidateP256dh(key string) error {
	raw, err := DecodeKey(key)
	if err != nil {
		return fmt.Errorf("invalid p256dh key: %w", err)
	}
	if len(raw) != p256dhKeyLength {
		return fmt.Errorf("invalid p256dh key length: expected %d bytes, got %d", p256dhKeyLength, len(raw))
	}
	if raw[0] != 0x04 {
		return fmt.Errorf("p256dh key is not an uncompressed point")
	}
	return nil
}

// ValidateAuth checks that secret is a base64url-encoded 16 byte auth secret.
func ValidateAuth(secret string) error {
	raw, err := DecodeKey(secret)
	if err != nil {
		return fmt.Errorf("invalid auth secret: %w", err)
	}
	if len(raw) != authSecretLength {
		return fmt.Errorf("invalid auth secret length: expected %d bytes, got %d", authSecretLength, len(raw))
	}
	return nil
}

// DecodeKey decodes browser key material. Browsers emit unpadded base64url,
// some client libraries pad it or use the standard alphabet.
func DecodeKey(key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}
	trimmed := strings.TrimRight(key, "=")
	if raw, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(trimmed)
}

// ValidateUUID checks the canonical textual form of a UUID.
func ValidateUUID(s string) error {
	if s == "" {
		return fmt.Errorf("uuid cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return fmt.Errorf("invalid uuid: %w", err)
	}
	return nil
}

// TruncateEndpoint shortens an endpoint for logs and listings.
func TruncateEndpoint(endpoint string) string {
	const keep = 50
	if len(endpoint) <= keep {
		return endpoint
	}
	return endpoint[:keep] + "..."
}
