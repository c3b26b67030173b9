package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"campus-assistant/internal/domain"
)

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid or expired token")
	ErrNoSubject    = errors.New("auth: token has no subject")
)

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Claims is the access token payload issued by the campus identity service.
type Claims struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

type secretPayload struct {
	Token string `json:"token"`
}

// Authenticator resolves the caller identity from an HS256 bearer token.
// The signing secret is read from SSM on first use; a failed read is retried
// on the next request.
type Authenticator struct {
	getter    Getter
	paramName string

	mu     sync.RWMutex
	secret []byte
}

func NewAuthenticator(getter Getter, paramPrefix string) (*Authenticator, error) {
	if getter == nil {
		return nil, errors.New("auth: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("auth: parameter prefix must not be empty")
	}
	return &Authenticator{getter: getter, paramName: paramPrefix + "/jwt-secret"}, nil
}

// Authenticate returns the verified identity for the request headers.
func (a *Authenticator) Authenticate(ctx context.Context, headers map[string]string) (domain.UserIdentity, error) {
	token := bearerToken(headers)
	if token == "" {
		return domain.UserIdentity{}, ErrMissingToken
	}
	secret, err := a.signingSecret(ctx)
	if err != nil {
		return domain.UserIdentity{}, err
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return domain.UserIdentity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return domain.UserIdentity{}, ErrNoSubject
	}
	fullName := claims.FullName
	if fullName == "" {
		fullName = claims.Name
	}
	return domain.UserIdentity{
		UserID:   userID,
		Email:    claims.Email,
		Role:     claims.Role,
		FullName: fullName,
	}, nil
}

func (a *Authenticator) signingSecret(ctx context.Context) ([]byte, error) {
	a.mu.RLock()
	if a.secret != nil {
		defer a.mu.RUnlock()
		return a.secret, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.secret != nil {
		return a.secret, nil
	}

	raw, err := a.getter.GetParameter(ctx, a.paramName)
	if err != nil {
		return nil, fmt.Errorf("auth: fetch signing secret: %w", err)
	}
	var sp secretPayload
	if err := json.Unmarshal([]byte(raw), &sp); err != nil {
		return nil, fmt.Errorf("auth: unmarshal signing secret: %w", err)
	}
	if sp.Token == "" {
		return nil, errors.New("auth: signing secret is empty")
	}
	a.secret = []byte(sp.Token)
	return a.secret, nil
}

// bearerToken reads the Authorization header. The canonical key wins over
// other spellings; among those the lowest key in byte order is used.
func bearerToken(headers map[string]string) string {
	v, ok := headers["Authorization"]
	if !ok {
		key, found := "", false
		for k := range headers {
			if strings.EqualFold(k, "Authorization") && (!found || k < key) {
				key, found = k, true
			}
		}
		if !found {
			return ""
		}
		v = headers[key]
	}
	v = strings.TrimSpace(v)
	if len(v) > 7 && strings.EqualFold(v[:7], "Bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}
