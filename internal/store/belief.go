package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BeliefStore struct {
	db *pgxpool.Pool
}

func NewBeliefStore(db *pgxpool.Pool) *BeliefStore {
	return &BeliefStore{db: db}
}

func (s *BeliefStore) Save(ctx context.Context, beliefs []domain.Belief) (int64, error) {
	if len(beliefs) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, b := range beliefs {
		cp := b.CumulativeProbability
		if cp == 0 {
			cp = domain.DefaultCumulativeProbability
		}
		batch.Queue(
			`INSERT INTO timed_beliefs (sensor_id, event_start, belief_horizon, source_id, cumulative_probability, event_value)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT DO NOTHING`,
			b.SensorID, b.EventStart, b.BeliefHorizon, b.SourceID, cp, b.EventValue,
		)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := range beliefs {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("save belief %d: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// Search narrows by event window and sources in SQL. Belief time and horizon
// criteria depend on the sensor's knowledge horizon and are left to the caller.
func (s *BeliefStore) Search(ctx context.Context, q domain.BeliefSearch) ([]domain.Belief, error) {
	var conditions []string
	var args []any

	conditions = append(conditions, fmt.Sprintf("b.sensor_id = $%d", len(args)+1))
	args = append(args, q.SensorID)

	if !q.EventStartsAfter.IsZero() {
		conditions = append(conditions, fmt.Sprintf("b.event_start >= $%d", len(args)+1))
		args = append(args, q.EventStartsAfter)
	}
	if !q.EventEndsBefore.IsZero() {
		conditions = append(conditions, fmt.Sprintf("b.event_start + s.event_resolution <= $%d", len(args)+1))
		args = append(args, q.EventEndsBefore)
	}
	if len(q.SourceIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("b.source_id = ANY($%d)", len(args)+1))
		args = append(args, q.SourceIDs)
	}
	if q.HorizonsAtLeast != nil {
		conditions = append(conditions, fmt.Sprintf("b.belief_horizon >= $%d", len(args)+1))
		args = append(args, *q.HorizonsAtLeast)
	}
	if q.HorizonsAtMost != nil {
		conditions = append(conditions, fmt.Sprintf("b.belief_horizon <= $%d", len(args)+1))
		args = append(args, *q.HorizonsAtMost)
	}

	query := fmt.Sprintf(
		`SELECT b.sensor_id, b.event_start, b.belief_horizon, b.source_id, b.event_value, b.cumulative_probability
		 FROM timed_beliefs b JOIN sensors s ON s.id = b.sensor_id
		 WHERE %s
		 ORDER BY b.event_start, b.belief_horizon, b.source_id`,
		strings.Join(conditions, " AND "),
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search beliefs: %w", err)
	}
	defer rows.Close()

	var beliefs []domain.Belief
	for rows.Next() {
		var b domain.Belief
		if err := rows.Scan(&b.SensorID, &b.EventStart, &b.BeliefHorizon, &b.SourceID, &b.EventValue, &b.CumulativeProbability); err != nil {
			return nil, fmt.Errorf("scan belief: %w", err)
		}
		beliefs = append(beliefs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("belief rows: %w", err)
	}
	return beliefs, nil
}
