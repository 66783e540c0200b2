package domain

import (
	"time"
)

type Role string

// USEF market roles plus administrative roles.
const (
	RoleAggregator Role = "Aggregator"
	RoleSupplier   Role = "Supplier"
	RoleMDC        Role = "MDC"
	RoleDSO        Role = "DSO"
	RoleProsumer   Role = "Prosumer"
	RoleESCo       Role = "ESCo"
	RoleAdmin      Role = "admin"
)

func ValidRole(r string) bool {
	switch Role(r) {
	case RoleAggregator, RoleSupplier, RoleMDC, RoleDSO, RoleProsumer, RoleESCo, RoleAdmin:
		return true
	}
	return false
}

type Account struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	AccountID    int64      `json:"account_id"`
	Roles        []Role     `json:"roles"`
	Active       bool       `json:"active"`
	FSUniquifier string     `json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (u *User) HasRole(r Role) bool {
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the user holds one of roles. Admins hold all roles.
func (u *User) HasAnyRole(roles ...Role) bool {
	if u.HasRole(RoleAdmin) {
		return true
	}
	for _, r := range roles {
		if u.HasRole(r) {
			return true
		}
	}
	return false
}
