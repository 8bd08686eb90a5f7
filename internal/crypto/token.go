package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidToken is returned for malformed, forged or expired tokens.
var ErrInvalidToken = errors.New("crypto: invalid session token")

var b64 = base64.RawURLEncoding

// TokenSigner issues and verifies stateless session tokens of the form
// base64(identityID "|" unixIssued) "." base64(HMAC-SHA256(payload)).
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner returns a signer keyed by secret. Tokens older than ttl are
// rejected; ttl <= 0 disables expiry. An empty secret is replaced by 32
// random bytes, so tokens do not survive a restart.
func NewTokenSigner(secret string, ttl time.Duration) (*TokenSigner, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("crypto: generate token secret: %w", err)
		}
	}
	return &TokenSigner{secret: key, ttl: ttl, now: time.Now}, nil
}

// Sign returns a token for identityID.
func (s *TokenSigner) Sign(identityID string) string {
	payload := identityID + "|" + strconv.FormatInt(s.now().Unix(), 10)
	enc := b64.EncodeToString([]byte(payload))
	return enc + "." + s.mac(enc)
}

// Verify returns the identity a token was issued to.
func (s *TokenSigner) Verify(token string) (string, error) {
	enc, sig, ok := strings.Cut(token, ".")
	if !ok || enc == "" || sig == "" {
		return "", ErrInvalidToken
	}
	if !hmac.Equal([]byte(sig), []byte(s.mac(enc))) {
		return "", ErrInvalidToken
	}

	raw, err := b64.DecodeString(enc)
	if err != nil {
		return "", ErrInvalidToken
	}
	id, issuedStr, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return "", ErrInvalidToken
	}
	issued, err := strconv.ParseInt(issuedStr, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if s.ttl > 0 && s.now().Sub(time.Unix(issued, 0)) > s.ttl {
		return "", ErrInvalidToken
	}
	return id, nil
}

func (s *TokenSigner) mac(msg string) string {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(msg))
	return b64.EncodeToString(m.Sum(nil))
}
