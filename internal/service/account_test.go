package service

import (
	"context"
	"testing"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAccountService_CreateAccount(t *testing.T) {
	svc := NewAccountService(newMockAccountStore(), newMockUserStore())
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, " Test MDC Account ")
	require.NoError(t, err)
	assert.Equal(t, "Test MDC Account", a.Name)
	assert.NotZero(t, a.ID)

	_, err = svc.CreateAccount(ctx, "Test MDC Account")
	assert.ErrorIs(t, err, ErrAccountConflict)

	_, err = svc.CreateAccount(ctx, "  ")
	assert.Error(t, err)

	_, err = svc.GetAccount(ctx, 42)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountService_CreateUser(t *testing.T) {
	svc := NewAccountService(newMockAccountStore(), newMockUserStore())
	ctx := context.Background()
	account, err := svc.CreateAccount(ctx, "Test Prosumer Account")
	require.NoError(t, err)

	u, err := svc.CreateUser(ctx, NewUser{
		Email:     "test_prosumer@seita.nl",
		Password:  "testtest",
		AccountID: account.ID,
		Roles:     []string{"Prosumer", "MDC"},
	})
	require.NoError(t, err)

	assert.Equal(t, "test_prosumer", u.Username)
	assert.True(t, u.Active)
	assert.NotEmpty(t, u.FSUniquifier)
	assert.Equal(t, []domain.Role{domain.RoleProsumer, domain.RoleMDC}, u.Roles)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("testtest")))

	got, err := svc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
}

func TestAccountService_CreateUser_Invalid(t *testing.T) {
	svc := NewAccountService(newMockAccountStore(), newMockUserStore())
	ctx := context.Background()
	account, err := svc.CreateAccount(ctx, "Test Account")
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, NewUser{Email: "taken@seita.nl", Password: "testtest", AccountID: account.ID})
	require.NoError(t, err)

	tests := []struct {
		name    string
		user    NewUser
		wantErr error
	}{
		{"bad email", NewUser{Email: "no-at-sign", Password: "testtest", AccountID: account.ID}, ErrInvalidEmail},
		{"email without domain", NewUser{Email: "user@", Password: "testtest", AccountID: account.ID}, ErrInvalidEmail},
		{"short password", NewUser{Email: "a@seita.nl", Password: "short", AccountID: account.ID}, ErrPasswordTooShort},
		{"unknown role", NewUser{Email: "a@seita.nl", Password: "testtest", AccountID: account.ID, Roles: []string{"Overlord"}}, ErrInvalidRole},
		{"unknown account", NewUser{Email: "a@seita.nl", Password: "testtest", AccountID: 99}, ErrAccountNotFound},
		{"duplicate email", NewUser{Email: "taken@seita.nl", Password: "testtest", AccountID: account.ID}, ErrUserConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateUser(ctx, tt.user)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
