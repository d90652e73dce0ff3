package auth

import "vellum/internal/domain/models"

// JWTVerifier validates bearer tokens and extracts claims. Abstracted so
// middleware and tests don't depend on the JWKS-backed implementation.
type JWTVerifier interface {
	// VerifyToken validates a JWT token string and returns the parsed claims.
	// Returns an error if the token is invalid, expired, or has an invalid signature.
	VerifyToken(tokenString string) (*models.SupabaseClaims, error)

	// Close releases any resources held by the verifier.
	Close() error
}
