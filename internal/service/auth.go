// Package service contains the record store's application services: staff
// authentication and role-checked record access.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/kennelsync/internal/crypto"
	"github.com/and161185/kennelsync/internal/errs"
	"github.com/and161185/kennelsync/internal/limiter"
	"github.com/and161185/kennelsync/internal/model"
	"github.com/and161185/kennelsync/internal/repository"
)

// Principal is the authenticated caller of a record RPC.
type Principal struct {
	ID   uuid.UUID
	Name string
	Role model.Role
}

// Claims are the access token claims. Subject carries the staff id.
type Claims struct {
	Name string     `json:"name,omitempty"`
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// AuthService defines staff account and session operations.
type AuthService interface {
	// Register creates a staff account with a salted Argon2id password hash.
	Register(ctx context.Context, username, displayName, password string, role model.Role) (uuid.UUID, error)
	// LoginWithIP applies rate limiting and authenticates the account.
	LoginWithIP(ctx context.Context, username, password, ip string) (model.Tokens, model.Staff, error)
	// Authenticate verifies an access token and returns its principal.
	Authenticate(token string) (Principal, error)
}

type AuthServiceImpl struct {
	staff     repository.StaffRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	now       func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(staff repository.StaffRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{staff: staff, signKey: signKey, accessTTL: accessTTL, lim: lim, now: time.Now}
}

// Register creates a new staff record with a per-account salt.
func (s *AuthServiceImpl) Register(ctx context.Context, username, displayName, password string, role model.Role) (uuid.UUID, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return uuid.Nil, fmt.Errorf("%w: empty username", errs.ErrValidation)
	}
	if !role.Valid() {
		return uuid.Nil, fmt.Errorf("%w: unknown role %q", errs.ErrValidation, role)
	}
	hash, salt, err := pkgcrypto.NewCredentials(password)
	if err != nil {
		if errors.Is(err, pkgcrypto.ErrWeakPassword) {
			return uuid.Nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
		}
		return uuid.Nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	if displayName == "" {
		displayName = username
	}
	st := &model.Staff{
		ID:          id,
		Username:    username,
		DisplayName: displayName,
		Role:        role,
		PwdHash:     hash,
		SaltAuth:    salt,
	}
	if err := s.staff.Create(ctx, st); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// LoginWithIP authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, username, password, ip string) (model.Tokens, model.Staff, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return model.Tokens{}, model.Staff{}, err
	}
	if !allowed {
		return model.Tokens{}, model.Staff{}, errs.ErrRateLimited
	}

	st, err := s.staff.GetByUsername(ctx, username)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), st.SaltAuth, st.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.Staff{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.Tokens{}, model.Staff{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, username, ipHash)

	tok, err := s.issueAccessToken(st)
	if err != nil {
		return model.Tokens{}, model.Staff{}, err
	}
	out := *st
	out.PwdHash, out.SaltAuth = nil, nil
	return tok, out, nil
}

func (s *AuthServiceImpl) issueAccessToken(st *model.Staff) (model.Tokens, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := Claims{
		Name: st.DisplayName,
		Role: st.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   st.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// Authenticate verifies an HS256 token and returns the principal it names.
func (s *AuthServiceImpl) Authenticate(token string) (Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("%w: invalid token", errs.ErrNotAuthenticated)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: bad subject", errs.ErrNotAuthenticated)
	}
	if !claims.Role.Valid() {
		return Principal{}, fmt.Errorf("%w: bad role", errs.ErrNotAuthenticated)
	}
	return Principal{ID: id, Name: claims.Name, Role: claims.Role}, nil
}
