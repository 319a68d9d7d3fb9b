package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const reflectionColumns = `
	id, trade_id, what_went_well, what_went_wrong, lessons_learned,
	action_items, satisfaction_rating, created_at, updated_at`

func scanReflection(row tradeRow) (*TradeReflection, error) {
	ref := &TradeReflection{}
	err := row.Scan(
		&ref.ID, &ref.TradeID, &ref.WhatWentWell, &ref.WhatWentWrong,
		&ref.LessonsLearned, &ref.ActionItems, &ref.SatisfactionRating,
		&ref.CreatedAt, &ref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// CreateReflection inserts a reflection. The unique trade_id constraint makes
// a duplicate insert fail even under concurrent creation.
func (r *Repository) CreateReflection(ctx context.Context, ref *TradeReflection) error {
	query := `
		INSERT INTO trade_reflections (
			trade_id, what_went_well, what_went_wrong, lessons_learned,
			action_items, satisfaction_rating
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		ref.TradeID, ref.WhatWentWell, ref.WhatWentWrong,
		ref.LessonsLearned, ref.ActionItems, ref.SatisfactionRating,
	).Scan(&ref.ID, &ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		return err
	}
	return nil
}

// GetReflectionByTradeID retrieves the reflection attached to a trade.
// Returns nil when the trade has no reflection.
func (r *Repository) GetReflectionByTradeID(ctx context.Context, tradeID string) (*TradeReflection, error) {
	query := `SELECT ` + reflectionColumns + ` FROM trade_reflections WHERE trade_id = $1`
	ref, err := scanReflection(r.db.Pool.QueryRow(ctx, query, tradeID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reflection: %w", err)
	}
	return ref, nil
}

// UpdateReflection writes all mutable fields of a reflection
func (r *Repository) UpdateReflection(ctx context.Context, ref *TradeReflection) error {
	query := `
		UPDATE trade_reflections SET
			what_went_well = $2, what_went_wrong = $3, lessons_learned = $4,
			action_items = $5, satisfaction_rating = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		ref.ID, ref.WhatWentWell, ref.WhatWentWrong, ref.LessonsLearned,
		ref.ActionItems, ref.SatisfactionRating,
	).Scan(&ref.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update reflection: %w", err)
	}
	return nil
}
