// Package auth guards the admin area with a single shared password. A
// successful login is remembered in a signed cookie.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName = "admin_auth"
	DefaultTTL = 7 * 24 * time.Hour

	LoginPath = "/admin/login"
	HomePath  = "/admin"

	issuer  = "kotoba"
	subject = "admin"
)

var (
	ErrNotConfigured   = errors.New("admin password is not configured")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidToken    = errors.New("invalid session token")
)

type Options struct {
	Password string
	// HMAC key for session tokens. Empty means a random key per process.
	Secret string
	TTL    time.Duration
	Secure bool
	Now    func() time.Time
}

type Authenticator struct {
	password string
	secret   []byte
	ttl      time.Duration
	secure   bool
	now      func() time.Time
}

func New(opt Options) (*Authenticator, error) {
	a := &Authenticator{
		password: opt.Password,
		secret:   []byte(opt.Secret),
		ttl:      opt.TTL,
		secure:   opt.Secure,
		now:      opt.Now,
	}
	if a.ttl <= 0 {
		a.ttl = DefaultTTL
	}
	if a.now == nil {
		a.now = time.Now
	}
	if len(a.secret) == 0 {
		a.secret = make([]byte, 32)
		if _, err := rand.Read(a.secret); err != nil {
			return nil, fmt.Errorf("auth: generate secret: %w", err)
		}
	}
	return a, nil
}

// Login checks password and returns a signed session token.
func (a *Authenticator) Login(password string) (string, error) {
	if a.password == "" {
		return "", ErrNotConfigured
	}
	want := sha256.Sum256([]byte(a.password))
	got := sha256.Sum256([]byte(password))
	if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
		return "", ErrInvalidPassword
	}

	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Verify(token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(subject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

func (a *Authenticator) Authenticated(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return a.Verify(c.Value) == nil
}

func (a *Authenticator) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.ttl / time.Second),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *Authenticator) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware protects /admin pages and the /api/admin API. Pages redirect
// to the login form; the API answers 401. The login form itself sends an
// already authenticated visitor to the dashboard.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		switch {
		case p == LoginPath:
			if a.Authenticated(r) {
				http.Redirect(w, r, HomePath, http.StatusTemporaryRedirect)
				return
			}
		case p == "/api/admin/login" || p == "/api/admin/logout":
		case strings.HasPrefix(p, "/api/admin/"):
			if !a.Authenticated(r) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
		case p == HomePath || strings.HasPrefix(p, HomePath+"/"):
			if !a.Authenticated(r) {
				http.Redirect(w, r, LoginPath+"?redirect="+url.QueryEscape(p), http.StatusTemporaryRedirect)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// SafeRedirect returns target when it is a local admin path, else HomePath.
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return HomePath
	}
	if target != HomePath && !strings.HasPrefix(target, HomePath+"/") {
		return HomePath
	}
	return target
}
