package store

import (
	"context"
	"errors"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserStore struct {
	db *pgxpool.Pool
}

func NewUserStore(db *pgxpool.Pool) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, username, email, password_hash, account_id, roles, active, fs_uniquifier, last_login_at, created_at`

func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, account_id, roles, active, fs_uniquifier)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		u.Username, u.Email, u.PasswordHash, u.AccountID, rolesToStrings(u.Roles), u.Active, u.FSUniquifier,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.get(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *UserStore) get(ctx context.Context, query string, arg any) (*domain.User, error) {
	u := &domain.User{}
	var roles []string
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.AccountID, &roles,
		&u.Active, &u.FSUniquifier, &u.LastLoginAt, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	for _, r := range roles {
		u.Roles = append(u.Roles, domain.Role(r))
	}
	return u, nil
}

func rolesToStrings(roles []domain.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
