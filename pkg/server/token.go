package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenPrefix identifies staging session tokens.
const TokenPrefix = "sanity_"

// MintSessionToken creates a signed session token for a subject, valid for
// the given duration. Format: sanity_<base64url(subject)>.<expiryUnix>.<base64url(hmac)>
func MintSessionToken(secret []byte, subject string, validity time.Duration, now time.Time) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(subject)) + "." +
		strconv.FormatInt(now.Add(validity).Unix(), 10)
	return TokenPrefix + payload + "." + sign(secret, payload)
}

// VerifySessionToken checks a token's signature and expiry, returning the
// subject it was minted for.
func VerifySessionToken(secret []byte, token string, now time.Time) (string, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return "", fmt.Errorf("token must start with %q", TokenPrefix)
	}

	parts := strings.Split(strings.TrimPrefix(token, TokenPrefix), ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed token")
	}

	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(sign(secret, payload)), []byte(parts[2])) {
		return "", fmt.Errorf("invalid token signature")
	}

	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed token expiry")
	}
	if now.Unix() >= expiry {
		return "", fmt.Errorf("token expired")
	}

	subject, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("malformed token subject")
	}
	return string(subject), nil
}

func sign(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
