package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/store"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrPasswordMismatch = errors.New("user password does not match")
	ErrInactiveUser     = errors.New("user is not active")
	ErrInvalidToken     = errors.New("invalid auth token")
)

// tokenClaims ties a token to the user's uniquifier, so that rotating the
// uniquifier revokes every token handed out before.
type tokenClaims struct {
	Uniquifier string `json:"fsu"`
	jwt.RegisteredClaims
}

type AuthService struct {
	users  domain.UserStore
	secret []byte
	maxAge time.Duration
}

func NewAuthService(users domain.UserStore, secret []byte, maxAge time.Duration) *AuthService {
	return &AuthService{users: users, secret: secret, maxAge: maxAge}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *AuthService) Lookup(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// Login checks the user's password and hands out a fresh token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	u, err := s.Lookup(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrPasswordMismatch
	}
	if !u.Active {
		return "", nil, ErrInactiveUser
	}

	token, err := s.IssueToken(u)
	if err != nil {
		return "", nil, err
	}
	if err := s.users.UpdateLastLogin(ctx, u.ID, time.Now().UTC()); err != nil {
		return "", nil, fmt.Errorf("update last login: %w", err)
	}
	return token, u, nil
}

func (s *AuthService) IssueToken(u *domain.User) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Uniquifier: u.FSUniquifier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Authenticate resolves a token to an active user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if u.FSUniquifier != claims.Uniquifier || !u.Active {
		return nil, ErrInvalidToken
	}
	return u, nil
}
