package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/plan-export-api/internal/models"
)

// RecordRepository loads the plan, meeting and final records of students.
// Every list is ordered oldest-created first.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs a RecordRepository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// ListPlans returns the plans of the given students.
func (r *RecordRepository) ListPlans(ctx context.Context, schoolIDs []string) ([]models.Plan, error) {
	if len(schoolIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, school_id, class_id, start_date, deadline, content, status, created_at
FROM plans WHERE school_id = ANY($1) ORDER BY created_at ASC, id ASC`
	var plans []models.Plan
	if err := r.db.SelectContext(ctx, &plans, query, pq.Array(schoolIDs)); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// ListMeetings returns the meeting records of the given students.
func (r *RecordRepository) ListMeetings(ctx context.Context, schoolIDs []string) ([]models.Meeting, error) {
	if len(schoolIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, school_id, class_id, date, content, created_at
FROM meetings WHERE school_id = ANY($1) ORDER BY created_at ASC, id ASC`
	var meetings []models.Meeting
	if err := r.db.SelectContext(ctx, &meetings, query, pq.Array(schoolIDs)); err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	return meetings, nil
}

// ListFinals returns the final evaluations of the given students.
func (r *RecordRepository) ListFinals(ctx context.Context, schoolIDs []string) ([]models.Final, error) {
	if len(schoolIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, school_id, class_id, rate, remark, created_at, updated_at
FROM finals WHERE school_id = ANY($1) ORDER BY created_at ASC, id ASC`
	var finals []models.Final
	if err := r.db.SelectContext(ctx, &finals, query, pq.Array(schoolIDs)); err != nil {
		return nil, fmt.Errorf("list finals: %w", err)
	}
	return finals, nil
}
