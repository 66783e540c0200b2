package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
)

const defaultAnnotationLength = 24 * time.Hour

var ErrInvalidAnnotation = errors.New("invalid annotation")

type AnnotationService struct {
	annotations domain.AnnotationStore
	sources     domain.DataSourceStore
	accounts    *AccountService
}

func NewAnnotationService(annotations domain.AnnotationStore, sources domain.DataSourceStore, accounts *AccountService) *AnnotationService {
	return &AnnotationService{annotations: annotations, sources: sources, accounts: accounts}
}

type NewAnnotation struct {
	Content    string
	Start      time.Time
	End        time.Time // zero means one day after Start
	Type       string    // empty means label
	AccountIDs []int64
	UserID     *int64
}

// Add records the annotation for the given accounts. It is attributed to the
// user's data source, or to a script source when no user is given.
func (s *AnnotationService) Add(ctx context.Context, na NewAnnotation) (*domain.Annotation, error) {
	content := strings.TrimSpace(na.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidAnnotation)
	}
	if na.Start.IsZero() {
		return nil, fmt.Errorf("%w: start is required", ErrInvalidAnnotation)
	}
	end := na.End
	if end.IsZero() {
		end = na.Start.Add(defaultAnnotationLength)
	}
	if !end.After(na.Start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidAnnotation)
	}
	typ := na.Type
	if typ == "" {
		typ = string(domain.AnnotationLabel)
	}
	if !domain.ValidAnnotationType(typ) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAnnotation, typ)
	}
	if len(na.AccountIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one account is required", ErrInvalidAnnotation)
	}
	for _, id := range na.AccountIDs {
		if _, err := s.accounts.GetAccount(ctx, id); err != nil {
			return nil, fmt.Errorf("account %d: %w", id, err)
		}
	}

	source := &domain.DataSource{Name: "FlexMeasures", Type: domain.SourceTypeScript}
	if na.UserID != nil {
		u, err := s.accounts.GetUser(ctx, *na.UserID)
		if err != nil {
			return nil, err
		}
		source = &domain.DataSource{Name: u.Username, Type: domain.SourceTypeUser, UserID: &u.ID}
	}
	if err := s.sources.GetOrCreate(ctx, source); err != nil {
		return nil, fmt.Errorf("data source: %w", err)
	}

	a := &domain.Annotation{
		Content:    content,
		Start:      na.Start,
		End:        end,
		Type:       domain.AnnotationType(typ),
		SourceID:   source.ID,
		AccountIDs: na.AccountIDs,
	}
	if err := s.annotations.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AnnotationService) List(ctx context.Context, accountID int64, start, end time.Time) ([]domain.Annotation, error) {
	return s.annotations.ListByAccount(ctx, accountID, start, end)
}
