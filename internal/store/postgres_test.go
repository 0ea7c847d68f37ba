package store

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/domain-scout/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgres(mock), mock
}

func TestPostgresSeedCandidates(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO domains`).
		WithArgs("abc.io", model.AvailabilityUnknown, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO domains`).
		WithArgs("def.io", model.AvailabilityUnknown, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := s.SeedCandidates(context.Background(), []string{"ABC.io", "def.io"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApplyAvailabilityRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO domains`).
		WithArgs("abc.io", model.AvailabilityAvailable, nil, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.ApplyAvailability(context.Background(), []AvailabilityUpdate{
		{Domain: "abc.io", Status: model.AvailabilityAvailable},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUnscoredAvailable(t *testing.T) {
	s, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"domain"}).
		AddRow("abc.io").
		AddRow("def.io")
	mock.ExpectQuery(`SELECT domain FROM domains`).
		WithArgs(string(model.AvailabilityAvailable)).
		WillReturnRows(rows)

	got, err := s.UnscoredAvailable(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc.io", "def.io"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteRun(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE pipeline_runs SET summary`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "run-id").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CompleteRun(context.Background(), "run-id", model.RunSummary{Stage: "price"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
