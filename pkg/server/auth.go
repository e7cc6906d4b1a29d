package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stellarlinkco/chatrelay/pkg/config"
)

// authenticator guards the API endpoints. Health endpoints always bypass it
// so probes keep working when credentials rotate.
type authenticator struct {
	mode        string
	apiKeys     []string
	jwtSecret   []byte
	jwtIssuer   string
	jwtAudience string
}

func newAuthenticator(cfg config.AuthConfig) *authenticator {
	return &authenticator{
		mode:        cfg.Mode,
		apiKeys:     cfg.APIKeys,
		jwtSecret:   []byte(cfg.JWTSecret),
		jwtIssuer:   cfg.JWTIssuer,
		jwtAudience: cfg.JWTAudience,
	}
}

func (a *authenticator) wrap(next http.Handler) http.Handler {
	if a.mode == config.AuthOff {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") {
			next.ServeHTTP(w, r)
			return
		}
		if err := a.authorize(r); err != nil {
			code := CodeAuthInvalid
			if errMissingCredentials(err) {
				code = CodeAuthRequired
			}
			writeError(w, http.StatusUnauthorized, code, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

type missingCredentialsError struct{}

func (missingCredentialsError) Error() string { return "missing credentials" }

func errMissingCredentials(err error) bool {
	_, ok := err.(missingCredentialsError)
	return ok
}

func (a *authenticator) authorize(r *http.Request) error {
	token := bearerToken(r)
	switch a.mode {
	case config.AuthAPIKey:
		if token == "" {
			token = r.Header.Get("X-API-Key")
		}
		if token == "" {
			return missingCredentialsError{}
		}
		return a.checkAPIKey(token)
	case config.AuthJWT:
		if token == "" {
			return missingCredentialsError{}
		}
		return a.checkJWT(token)
	}
	return fmt.Errorf("unsupported auth mode %q", a.mode)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// checkAPIKey compares against every configured key in constant time per
// key, so timing does not reveal which prefix matched.
func (a *authenticator) checkAPIKey(candidate string) error {
	matched := false
	for _, key := range a.apiKeys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			matched = true
		}
	}
	if !matched {
		return fmt.Errorf("invalid api key")
	}
	return nil
}

func (a *authenticator) checkJWT(raw string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.jwtIssuer != "" {
		opts = append(opts, jwt.WithIssuer(a.jwtIssuer))
	}
	if a.jwtAudience != "" {
		opts = append(opts, jwt.WithAudience(a.jwtAudience))
	}
	_, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		return a.jwtSecret, nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	return nil
}
