package store

import (
	"context"
	"fmt"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AnnotationStore struct {
	db *pgxpool.Pool
}

func NewAnnotationStore(db *pgxpool.Pool) *AnnotationStore {
	return &AnnotationStore{db: db}
}

// Create stores the annotation, reusing an identical existing one, and links
// it to its accounts.
func (s *AnnotationStore) Create(ctx context.Context, a *domain.Annotation) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO annotations (content, start, "end", type, source_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (content, start, "end", source_id, type) DO UPDATE SET content = EXCLUDED.content
		 RETURNING id, created_at`,
		a.Content, a.Start, a.End, string(a.Type), a.SourceID,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert annotation: %w", err)
	}

	for _, accountID := range a.AccountIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO annotations_accounts (annotation_id, account_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			a.ID, accountID,
		); err != nil {
			return fmt.Errorf("link annotation to account %d: %w", accountID, err)
		}
	}
	return tx.Commit(ctx)
}

// ListByAccount returns the account's annotations overlapping [start, end).
func (s *AnnotationStore) ListByAccount(ctx context.Context, accountID int64, start, end time.Time) ([]domain.Annotation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT a.id, a.content, a.start, a."end", a.type, a.source_id, a.created_at
		 FROM annotations a JOIN annotations_accounts aa ON aa.annotation_id = a.id
		 WHERE aa.account_id = $1 AND a.start < $3 AND a."end" > $2
		 ORDER BY a.start, a.id`,
		accountID, start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var annotations []domain.Annotation
	for rows.Next() {
		var a domain.Annotation
		if err := rows.Scan(&a.ID, &a.Content, &a.Start, &a.End, &a.Type, &a.SourceID, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.AccountIDs = []int64{accountID}
		annotations = append(annotations, a)
	}
	return annotations, rows.Err()
}
