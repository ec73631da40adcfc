package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/samogod/mentorloop/pkg/config"
	"github.com/samogod/mentorloop/pkg/types"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledDatabase(t *testing.T) {
	db, err := New(context.Background(), &config.Database{Enabled: false})
	require.NoError(t, err)
	defer db.Close()

	assert.False(t, db.IsEnabled())
	assert.NoError(t, db.SaveTrainingSession(context.Background(), &types.TrainingResult{SessionID: "s"}))

	_, err = db.QuerySessions(context.Background(), 5)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestRecordOf(t *testing.T) {
	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(time.Hour)

	tests := []struct {
		name   string
		result *types.TrainingResult
		want   SessionRecord
	}{
		{
			name: "complete",
			result: &types.TrainingResult{
				SessionID:       "abc",
				CyclesCompleted: 3,
				Baseline:        &types.Snapshot{Accuracy: 0.2},
				Final:           &types.Snapshot{Accuracy: 0.6, Improvement: 0.4},
				StopReason:      types.StopReasonPlateau,
				StartedAt:       started,
				FinishedAt:      finished,
			},
			want: SessionRecord{
				SessionID:        "abc",
				StartedAt:        started,
				FinishedAt:       finished,
				CyclesCompleted:  3,
				StopReason:       "plateau",
				BaselineAccuracy: 0.2,
				FinalAccuracy:    0.6,
				Improvement:      0.4,
			},
		},
		{
			name: "interrupted without snapshots",
			result: &types.TrainingResult{
				SessionID:   "def",
				StopReason:  types.StopReasonError,
				Interrupted: true,
				StartedAt:   started,
				FinishedAt:  finished,
			},
			want: SessionRecord{
				SessionID:   "def",
				StartedAt:   started,
				FinishedAt:  finished,
				StopReason:  "error",
				Interrupted: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecordOf(tt.result))
		})
	}
}

func TestRecordOfFillsFinishTime(t *testing.T) {
	rec := RecordOf(&types.TrainingResult{SessionID: "x"})
	assert.False(t, rec.FinishedAt.IsZero())
}

func sampleSession() *types.TrainingResult {
	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return &types.TrainingResult{
		SessionID:       "sess-1",
		CyclesCompleted: 2,
		Baseline:        &types.Snapshot{Accuracy: 0.2},
		Final:           &types.Snapshot{Accuracy: 0.5, Improvement: 0.3},
		StopReason:      types.StopReasonLimit,
		StartedAt:       started,
		FinishedAt:      started.Add(time.Minute),
		LearningProgression: []types.CycleResult{
			{CycleNumber: 0, QuestionsProcessed: 4, CorrectAnswers: 1, ImprovementsMade: 2, StartedAt: started},
			{CycleNumber: 1, QuestionsProcessed: 4, CorrectAnswers: 3, ImprovementsMade: 1, StartedAt: started},
		},
	}
}

var (
	upsertSession = regexp.QuoteMeta("INSERT INTO training_sessions")
	deleteCycles  = regexp.QuoteMeta("DELETE FROM training_cycles WHERE session_id = $1")
	insertCycle   = regexp.QuoteMeta("INSERT INTO training_cycles")
)

func TestSaveTrainingSessionReplacesCycles(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := NewWithConn(conn)

	mock.ExpectBegin()
	mock.ExpectExec(upsertSession).
		WithArgs("sess-1", sqlmock.AnyArg(), sqlmock.AnyArg(), 2, "max_cycles", false, 0.2, 0.5, 0.3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteCycles).WithArgs("sess-1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(insertCycle).
		WithArgs("sess-1", 0, 4, 1, 2, 0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertCycle).
		WithArgs("sess-1", 1, 4, 3, 1, 0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, db.SaveTrainingSession(context.Background(), sampleSession()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTrainingSessionRollsBackOnCycleFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := NewWithConn(conn)

	mock.ExpectBegin()
	mock.ExpectExec(upsertSession).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteCycles).WithArgs("sess-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertCycle).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertCycle).WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err = db.SaveTrainingSession(context.Background(), sampleSession())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save cycle 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTrainingSessionUpsertFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := NewWithConn(conn)

	mock.ExpectBegin()
	mock.ExpectExec(upsertSession).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = db.SaveTrainingSession(context.Background(), sampleSession())
	assert.ErrorContains(t, err, "failed to save session sess-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuerySessions(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := NewWithConn(conn)

	started := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"session_id", "started_at", "finished_at", "cycles_completed", "stop_reason",
		"interrupted", "baseline_accuracy", "final_accuracy", "improvement"}).
		AddRow("new", started, started.Add(time.Hour), 4, "plateau", false, 0.1, 0.4, 0.3).
		AddRow("old", started.Add(-time.Hour), started, 1, "error", true, 0.2, 0.0, 0.0)

	mock.ExpectQuery(regexp.QuoteMeta("FROM training_sessions")).WithArgs(20).WillReturnRows(rows)

	records, err := db.QuerySessions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "new", records[0].SessionID)
	assert.Equal(t, 4, records[0].CyclesCompleted)
	assert.InDelta(t, 0.3, records[0].Improvement, 1e-9)
	assert.True(t, records[1].Interrupted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
