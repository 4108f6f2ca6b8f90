// Package jwt issues and verifies HMAC-signed access tokens carrying a subject
// and role. Verification takes an explicit instant so callers control the clock.
package jwt
