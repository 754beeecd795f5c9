package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/plan-export-api/internal/models"
)

func TestRecordRepositoryListPlans(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "school_id", "class_id", "start_date", "deadline", "content", "status", "created_at"}).
		AddRow(1, "1", "C1", now, now.Add(24*time.Hour), "read papers", "approved", now).
		AddRow(2, "2", "C1", now, now.Add(48*time.Hour), "build robot", "unreviewed", now.Add(time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("FROM plans WHERE school_id = ANY($1) ORDER BY created_at ASC, id ASC")).
		WithArgs(pq.Array([]string{"1", "2"})).
		WillReturnRows(rows)

	plans, err := repo.ListPlans(context.Background(), []string{"1", "2"})
	require.NoError(t, err)
	require.Len(t, plans, 2)
	require.Equal(t, models.PlanStatusApproved, plans[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListMeetings(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "school_id", "class_id", "date", "content", "created_at"}).
		AddRow(7, "1", "C1", now, "weekly sync", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM meetings WHERE school_id = ANY($1)")).
		WithArgs(pq.Array([]string{"1"})).
		WillReturnRows(rows)

	meetings, err := repo.ListMeetings(context.Background(), []string{"1"})
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	require.Equal(t, "weekly sync", meetings[0].Content)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListFinalsNullableFields(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "school_id", "class_id", "rate", "remark", "created_at", "updated_at"}).
		AddRow(3, "1", "C1", "A", nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM finals WHERE school_id = ANY($1)")).
		WithArgs(pq.Array([]string{"1"})).
		WillReturnRows(rows)

	finals, err := repo.ListFinals(context.Background(), []string{"1"})
	require.NoError(t, err)
	require.Len(t, finals, 1)
	require.NotNil(t, finals[0].Rating)
	require.Equal(t, "A", *finals[0].Rating)
	require.Nil(t, finals[0].Remark)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositorySkipsEmptyInput(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	plans, err := repo.ListPlans(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, plans)
	require.NoError(t, mock.ExpectationsWereMet())
}
