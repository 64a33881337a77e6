package auth

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dibbs-platform/ecr-viewer/internal/shared/config"
)

const tokenCookie = "auth-token"

// Verifier validates signed NBS tokens against the configured public key.
type Verifier struct {
	key      *rsa.PublicKey
	authPath string
}

// NewVerifier parses the PEM-encoded RS256 public key from config.
// authPath is where unauthenticated page requests are routed.
func NewVerifier(cfg config.AuthConfig, authPath string) (*Verifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse NBS public key: %w", err)
	}
	return &Verifier{key: key, authPath: authPath}, nil
}

// Middleware gates requests on a valid signed token. The token is taken from
// the auth-token cookie or a bearer Authorization header. A token arriving as
// an ?auth= query parameter is exchanged for an HTTP-only cookie via redirect
// so the parameter never lingers in the address bar or referrer headers.
// Failures route to the authentication-failed page instead of normal content.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if param := r.URL.Query().Get("auth"); param != "" {
			v.setAuthCookie(w, r, param)
			return
		}

		if token := v.extractToken(r); token != "" && v.verify(token) == nil {
			next.ServeHTTP(w, r)
			return
		}

		v.unauthorized(w, r)
	})
}

func (v *Verifier) setAuthCookie(w http.ResponseWriter, r *http.Request, token string) {
	u := *r.URL
	q := u.Query()
	q.Del("auth")
	u.RawQuery = q.Encode()

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, u.String(), http.StatusTemporaryRedirect)
}

func (v *Verifier) extractToken(r *http.Request) string {
	if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

func (v *Verifier) verify(tokenString string) error {
	_, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	return err
}

func (v *Verifier) unauthorized(w http.ResponseWriter, r *http.Request) {
	// API clients get a 401; page requests go to the auth error page.
	if strings.HasPrefix(r.URL.Path, "/api") || strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "Auth required"})
		return
	}
	http.Redirect(w, r, v.authPath, http.StatusTemporaryRedirect)
}
