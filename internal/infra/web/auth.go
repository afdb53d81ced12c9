package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionCookie = "playground_session"
	tokenIssuer   = "ai-playground"
	clockSkew     = 30 * time.Second
)

var (
	errNoToken  = errors.New("no session token")
	errBadToken = errors.New("invalid session token")
)

// AuthManager ties a browser to the playground session it started. There
// are no accounts: the token subject is the session ID and holding the token
// is the only proof of ownership.
type AuthManager struct {
	secret []byte
	secure bool
	domain string
	ttl    time.Duration
}

// NewAuthManager signs tokens with secret (HS256). ttl defaults to a day.
func NewAuthManager(secret string, secure bool, domain string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthManager{secret: []byte(secret), secure: secure, domain: domain, ttl: ttl}
}

// Token signs a session token without touching any response.
func (a *AuthManager) Token(sessionID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Mint issues a token and stores it in an HttpOnly cookie. The token is
// returned too, for API clients that send it as a Bearer header.
func (a *AuthManager) Mint(w http.ResponseWriter, sessionID string) (string, error) {
	tok, err := a.Token(sessionID)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, a.cookie(tok, int(a.ttl.Seconds())))
	return tok, nil
}

// Clear expires the session cookie.
func (a *AuthManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, a.cookie("", -1))
}

func (a *AuthManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		Domain:   a.domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// sessionOf returns the session ID a request's token was minted for. An
// Authorization header takes precedence over the cookie and must use the
// Bearer scheme.
func (a *AuthManager) sessionOf(r *http.Request) (string, error) {
	raw := ""
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			return "", errBadToken
		}
		raw = strings.TrimSpace(tok)
	} else if c, err := r.Cookie(sessionCookie); err == nil {
		raw = c.Value
	}
	if raw == "" {
		return "", errNoToken
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil || claims.Subject == "" {
		return "", errBadToken
	}
	return claims.Subject, nil
}

// RequireSession admits a request only when its token names the session in
// the {id} route parameter: 401 without a valid token, 403 for another
// session's token.
func (a *AuthManager) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := a.sessionOf(r)
		if err != nil {
			writeStatus(w, http.StatusUnauthorized, "unauthorized", "Start a session first.")
			return
		}
		if owner != chi.URLParam(r, "id") {
			writeStatus(w, http.StatusForbidden, "forbidden", "This session belongs to another browser.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
