/**
 * @description
 * This package provides middleware for the HTTP server, specifically for
 * handling authentication and authorization.
 *
 * Key features:
 * - Verifies Clerk session JWTs (RS256) against the JWKS endpoint, caching keys
 *   and refetching them when an unknown `kid` appears.
 * - Optionally trusts the `X-Clerk-User-Id` header set by the API gateway.
 * - Resolves the Clerk subject to the internal user id.
 * - Exposes authentication both as a lazy call (`Authenticate`) and as a
 *   `RequireUser` middleware.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: JWT parsing and signature verification.
 */
package middleware

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthContextKey is a custom type for the context key to avoid collisions.
type AuthContextKey string

const (
	// UserIDKey is the key used to store the internal user ID in the request context.
	UserIDKey AuthContextKey = "userID"

	gatewayUserHeader = "X-Clerk-User-Id"
	jwksCacheTTL      = 10 * time.Minute
	jwksMinRefresh    = 30 * time.Second
)

// ErrUnauthenticated is returned when the caller cannot be identified.
var ErrUnauthenticated = errors.New("not authenticated")

// Authenticator resolves the caller of a request to an internal user id.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// UserResolver maps a Clerk user id to the internal user id.
type UserResolver interface {
	FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (string, error)
}

// JWKSVerifier validates RS256 JWTs against a JWKS endpoint.
type JWKSVerifier struct {
	jwksURL    string
	issuer     string
	audience   string
	httpClient *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewJWKSVerifier creates a verifier. Empty issuer or audience disables that check.
func NewJWKSVerifier(jwksURL, issuer, audience string) *JWKSVerifier {
	return &JWKSVerifier{
		jwksURL:    jwksURL,
		issuer:     issuer,
		audience:   audience,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		keys:       make(map[string]*rsa.PublicKey),
	}
}

// Verify parses and validates tokenString and returns its subject.
func (v *JWKSVerifier) Verify(ctx context.Context, tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("kid not found in token header")
		}
		return v.publicKey(ctx, kid)
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token claims")
	}
	return claims.Subject, nil
}

func (v *JWKSVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := time.Since(v.fetchedAt) < jwksCacheTTL
	recent := time.Since(v.fetchedAt) < jwksMinRefresh
	v.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}
	if !ok && recent {
		return nil, fmt.Errorf("key with kid %s not found", kid)
	}

	if err := v.refresh(ctx); err != nil {
		if ok {
			log.Printf("level=warn component=auth msg=\"jwks refresh failed; using cached key\" err=%v", err)
			return key, nil
		}
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("key with kid %s not found", kid)
}

func (v *JWKSVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create jwks request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			log.Printf("level=warn component=auth msg=\"skipping malformed jwk\" kid=%s err=%v", k.Kid, err)
			continue
		}
		keys[k.Kid] = pub
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()
	return nil
}

// parseRSAPublicKey parses an RSA public key from its base64url modulus and exponent.
func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(nb) == 0 || len(eb) == 0 {
		return nil, errors.New("empty modulus or exponent")
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp)}, nil
}

// SessionAuthenticator identifies callers from a bearer JWT or, when enabled,
// the gateway's user header.
type SessionAuthenticator struct {
	verifier           *JWKSVerifier
	users              UserResolver
	trustGatewayHeader bool
}

// NewSessionAuthenticator creates a SessionAuthenticator. verifier may be nil
// when only the gateway header is trusted.
func NewSessionAuthenticator(verifier *JWKSVerifier, users UserResolver, trustGatewayHeader bool) *SessionAuthenticator {
	return &SessionAuthenticator{
		verifier:           verifier,
		users:              users,
		trustGatewayHeader: trustGatewayHeader,
	}
}

// Authenticate returns the internal user id of the caller.
func (a *SessionAuthenticator) Authenticate(r *http.Request) (string, error) {
	subject, err := a.subject(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	userID, err := a.users.FindUserIDByClerkUserID(r.Context(), subject)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return userID, nil
}

func (a *SessionAuthenticator) subject(r *http.Request) (string, error) {
	if a.trustGatewayHeader {
		if clerkUserID := strings.TrimSpace(r.Header.Get(gatewayUserHeader)); clerkUserID != "" {
			return clerkUserID, nil
		}
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing auth credentials")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid Authorization header format")
	}
	if a.verifier == nil {
		return "", errors.New("token verification is not configured")
	}
	return a.verifier.Verify(r.Context(), strings.TrimSpace(parts[1]))
}

// RequireUser rejects unauthenticated requests with 401 and stores the
// internal user id in the request context.
func RequireUser(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := auth.Authenticate(r)
			if err != nil {
				log.Printf("level=info component=auth msg=\"request rejected\" path=%s err=%v", r.URL.Path, err)
				writeJSONError(w, http.StatusUnauthorized, "Not authenticated", "You must be signed in to perform this action.")
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext retrieves the user ID from the request context.
// It returns an empty string if the user ID is not found.
func GetUserIDFromContext(ctx context.Context) string {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

func writeJSONError(w http.ResponseWriter, status int, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": errMsg, "message": message})
}
