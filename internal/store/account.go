package store

import (
	"context"
	"errors"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AccountStore struct {
	db *pgxpool.Pool
}

func NewAccountStore(db *pgxpool.Pool) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, a *domain.Account) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO accounts (name) VALUES ($1)
		 RETURNING id, created_at`,
		a.Name,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *AccountStore) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	return s.get(ctx, `SELECT id, name, created_at FROM accounts WHERE id = $1`, id)
}

func (s *AccountStore) GetByName(ctx context.Context, name string) (*domain.Account, error) {
	return s.get(ctx, `SELECT id, name, created_at FROM accounts WHERE name = $1`, name)
}

func (s *AccountStore) get(ctx context.Context, query string, arg any) (*domain.Account, error) {
	a := &domain.Account{}
	err := s.db.QueryRow(ctx, query, arg).Scan(&a.ID, &a.Name, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}
