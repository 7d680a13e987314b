package authority

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const namespaceKey contextKey = "namespace"

// Claims binds a bearer token to one namespace.
type Claims struct {
	Namespace string `json:"namespace"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HMAC-signed device tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// IssueToken signs a token for device in namespace. A zero ttl never expires.
func (a *Authenticator) IssueToken(namespace, device string, ttl time.Duration) (string, error) {
	if namespace == "" {
		return "", errors.New("namespace is required")
	}
	now := time.Now()
	claims := Claims{
		Namespace: namespace,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  device,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies tokenString and returns its claims.
func (a *Authenticator) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Namespace == "" {
		return nil, errors.New("token has no namespace")
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// token's namespace in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		claims, err := a.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), namespaceKey, claims.Namespace)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NamespaceFromContext returns the namespace of the authenticated caller.
func NamespaceFromContext(ctx context.Context) (string, bool) {
	ns, ok := ctx.Value(namespaceKey).(string)
	return ns, ok && ns != ""
}
