package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/plan-export-api/internal/models"
	appErrors "github.com/noah-isme/plan-export-api/pkg/errors"
)

type profileReader interface {
	FindBySchoolID(ctx context.Context, schoolID string) (*models.StudentProfile, error)
	ListByClass(ctx context.Context, classID string) ([]models.StudentProfile, error)
}

type recordReader interface {
	ListPlans(ctx context.Context, schoolIDs []string) ([]models.Plan, error)
	ListMeetings(ctx context.Context, schoolIDs []string) ([]models.Meeting, error)
	ListFinals(ctx context.Context, schoolIDs []string) ([]models.Final, error)
}

// AggregatorService assembles per-student record bundles from the record store.
type AggregatorService struct {
	profiles profileReader
	records  recordReader
}

// NewAggregatorService constructs the aggregator.
func NewAggregatorService(profiles profileReader, records recordReader) *AggregatorService {
	return &AggregatorService{profiles: profiles, records: records}
}

// FetchForStudent loads one student's profile and records.
func (s *AggregatorService) FetchForStudent(ctx context.Context, schoolID string) (*models.StudentAggregate, error) {
	schoolID = strings.TrimSpace(schoolID)
	if schoolID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	profile, err := s.profiles.FindBySchoolID(ctx, schoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrProfileNotFound, fmt.Sprintf("student profile %s does not exist", schoolID))
		}
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load student profile")
	}
	aggregates, err := s.attachRecords(ctx, []models.StudentProfile{*profile})
	if err != nil {
		return nil, err
	}
	return &aggregates[0], nil
}

// FetchForClass loads every student currently enrolled in classID.
func (s *AggregatorService) FetchForClass(ctx context.Context, classID string) ([]models.StudentAggregate, error) {
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classId is required")
	}
	profiles, err := s.profiles.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load class profiles")
	}
	if len(profiles) == 0 {
		return nil, appErrors.Clone(appErrors.ErrClassEmpty, fmt.Sprintf("no students enrolled in class %s", classID))
	}
	return s.attachRecords(ctx, profiles)
}

// attachRecords loads records for all profiles in one query per record kind
// and groups them by school id, keeping the store's creation order.
func (s *AggregatorService) attachRecords(ctx context.Context, profiles []models.StudentProfile) ([]models.StudentAggregate, error) {
	ids := make([]string, 0, len(profiles))
	for _, profile := range profiles {
		ids = append(ids, profile.SchoolID)
	}

	plans, err := s.records.ListPlans(ctx, ids)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load plans")
	}
	meetings, err := s.records.ListMeetings(ctx, ids)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load meetings")
	}
	finals, err := s.records.ListFinals(ctx, ids)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load finals")
	}

	aggregates := make([]models.StudentAggregate, len(profiles))
	index := make(map[string]int, len(profiles))
	for i, profile := range profiles {
		aggregates[i].Profile = profile
		index[profile.SchoolID] = i
	}
	for _, plan := range plans {
		if i, ok := index[plan.SchoolID]; ok {
			aggregates[i].Plans = append(aggregates[i].Plans, plan)
		}
	}
	for _, meeting := range meetings {
		if i, ok := index[meeting.SchoolID]; ok {
			aggregates[i].Meetings = append(aggregates[i].Meetings, meeting)
		}
	}
	for _, final := range finals {
		if i, ok := index[final.SchoolID]; ok {
			aggregates[i].Finals = append(aggregates[i].Finals, final)
		}
	}
	return aggregates, nil
}
