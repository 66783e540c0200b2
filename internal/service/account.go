package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/store"
	"github.com/google/uuid"
)

const minPasswordLength = 8

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountConflict  = errors.New("account with this name already exists")
	ErrUserConflict     = errors.New("user with this email already exists")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrInvalidRole      = errors.New("invalid role")
)

type AccountService struct {
	accounts domain.AccountStore
	users    domain.UserStore
}

func NewAccountService(accounts domain.AccountStore, users domain.UserStore) *AccountService {
	return &AccountService{accounts: accounts, users: users}
}

func (s *AccountService) CreateAccount(ctx context.Context, name string) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("account name is required")
	}
	a := &domain.Account{Name: name}
	if err := s.accounts.Create(ctx, a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrAccountConflict
		}
		return nil, err
	}
	return a, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return a, nil
}

type NewUser struct {
	Username  string
	Email     string
	Password  string
	AccountID int64
	Roles     []string
}

// CreateUser hashes the password and gives the user a fresh uniquifier.
func (s *AccountService) CreateUser(ctx context.Context, nu NewUser) (*domain.User, error) {
	email := strings.TrimSpace(nu.Email)
	if at := strings.IndexByte(email, '@'); at < 1 || at == len(email)-1 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, nu.Email)
	}
	if len(nu.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}
	var roles []domain.Role
	for _, r := range nu.Roles {
		if !domain.ValidRole(r) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, r)
		}
		roles = append(roles, domain.Role(r))
	}
	if _, err := s.GetAccount(ctx, nu.AccountID); err != nil {
		return nil, err
	}

	hash, err := HashPassword(nu.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	username := nu.Username
	if username == "" {
		username = email[:strings.IndexByte(email, '@')]
	}
	u := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		AccountID:    nu.AccountID,
		Roles:        roles,
		Active:       true,
		FSUniquifier: uuid.NewString(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrUserConflict
		}
		return nil, err
	}
	return u, nil
}

func (s *AccountService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
