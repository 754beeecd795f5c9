package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/plan-export-api/internal/models"
)

const profileColumns = "school_id, name, supervisor, grade, class_id, prev_classes"

// ProfileRepository reads student profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs a ProfileRepository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindBySchoolID returns the profile with the given school id. A missing row
// surfaces as sql.ErrNoRows.
func (r *ProfileRepository) FindBySchoolID(ctx context.Context, schoolID string) (*models.StudentProfile, error) {
	query := "SELECT " + profileColumns + " FROM profiles WHERE school_id = $1"
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, schoolID); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &profile, nil
}

// ListByClass returns every profile currently enrolled in classID.
func (r *ProfileRepository) ListByClass(ctx context.Context, classID string) ([]models.StudentProfile, error) {
	query := "SELECT " + profileColumns + " FROM profiles WHERE class_id = $1 ORDER BY school_id ASC"
	var profiles []models.StudentProfile
	if err := r.db.SelectContext(ctx, &profiles, query, classID); err != nil {
		return nil, fmt.Errorf("list profiles by class: %w", err)
	}
	return profiles, nil
}
