package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/jrsteele09/lm-mcp-gateway/oauthmodel"
)

// S256Challenge derives the PKCE challenge for verifier.
func S256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// VerifyPKCE reports whether verifier matches the stored challenge. Only S256
// challenges are ever stored, and an empty pair never verifies.
func VerifyPKCE(challenge string, method oauthmodel.CodeMethodType, verifier string) bool {
	if challenge == "" || verifier == "" || method != oauthmodel.CodeMethodTypeS256 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(S256Challenge(verifier)), []byte(challenge)) == 1
}
