package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

const (
	refreshTokenRawSize = 48
	maxDeviceLength     = 128
)

// NewRefreshToken returns 48 random bytes as unpadded base64url (64 characters).
func NewRefreshToken() (string, error) {
	var raw [refreshTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashRefreshToken returns the lowercase hex sha256 of the presented token text.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// WellFormedRefreshToken reports whether raw could have been produced by
// NewRefreshToken. Anything else cannot match a stored hash.
func WellFormedRefreshToken(raw string) bool {
	if len(raw) != base64.RawURLEncoding.EncodedLen(refreshTokenRawSize) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(raw)
	return err == nil
}

// NormalizeDevice trims a client-supplied device label and bounds its length.
// An empty label becomes fallback.
func NormalizeDevice(device, fallback string) string {
	device = strings.TrimSpace(device)
	if device == "" {
		return fallback
	}
	if len(device) > maxDeviceLength {
		device = device[:maxDeviceLength]
		for !utf8.ValidString(device) {
			device = device[:len(device)-1]
		}
	}
	return device
}
