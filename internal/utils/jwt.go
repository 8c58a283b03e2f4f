package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA-256 hashing for session lookup
    "encoding/hex"  // hex encoding and decoding functions
    "errors"
    "time" // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
    "github.com/google/uuid"
)

// ErrInvalidToken is the single failure signal of token verification.  Bad
// signatures, expired tokens and malformed input all collapse to it.
var ErrInvalidToken = errors.New("invalid or expired token")

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// Claims carries the identity of the bearer.  ID (jti) is random per token
// so two logins within the same second still hash to distinct sessions.
type Claims struct {
    UserID   uint64 `json:"userId"`
    Username string `json:"username"`
    Role     string `json:"role"`
    jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 bearer tokens with a server-held secret.
type TokenIssuer struct {
    secret []byte
    ttl    time.Duration
    now    func() time.Time
}

// NewTokenIssuer returns an issuer minting tokens that live for ttl.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
    return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source used for iat/exp and for verification.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
    t.now = now
    return t
}

// TTL returns the lifetime of minted tokens.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Mint builds and signs a token for the given identity.
func (t *TokenIssuer) Mint(userID uint64, username, role string) (AccessToken, error) {
    issued := t.now().UTC()
    exp := issued.Add(t.ttl)
    claims := Claims{
        UserID:   userID,
        Username: username,
        Role:     role,
        RegisteredClaims: jwt.RegisteredClaims{
            ID:        uuid.NewString(),
            IssuedAt:  jwt.NewNumericDate(issued),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
    if err != nil {
        return AccessToken{}, err
    }
    // exp is encoded with second precision; report what the token says.
    return AccessToken{Token: signed, Exp: claims.ExpiresAt.Time.UTC()}, nil
}

// Verify checks signature and expiry together.
func (t *TokenIssuer) Verify(raw string) (*Claims, error) {
    return t.parse(raw, jwt.WithExpirationRequired())
}

// VerifySignature checks signature and structure but ignores exp, so an
// expired token can still identify the session it was issued for.
func (t *TokenIssuer) VerifySignature(raw string) (*Claims, error) {
    return t.parse(raw, jwt.WithoutClaimsValidation())
}

func (t *TokenIssuer) parse(raw string, extra ...jwt.ParserOption) (*Claims, error) {
    opts := append([]jwt.ParserOption{
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithTimeFunc(t.now),
    }, extra...)
    claims := &Claims{}
    tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
        return t.secret, nil
    }, opts...)
    if err != nil || !tok.Valid || claims.UserID == 0 {
        return nil, ErrInvalidToken
    }
    return claims, nil
}

// HashToken returns the SHA-256 hash of a raw bearer token as a hex string.
// Only this digest is stored, so a leaked sessions table cannot be replayed.
func HashToken(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

// RandomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func RandomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
