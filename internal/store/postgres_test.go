package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWhere(t *testing.T) {
	clause, args, err := buildWhere("NeatNetworkApplicants", Filter{
		"outputs": 5,
		"inputs":  180,
		"ticker":  In{"BTCUSDT", "ETHUSDT"},
	})
	require.NoError(t, err)

	assert.Equal(t,
		"class = $1 AND fields->$2 = $3::text::jsonb AND fields->$4 = $5::text::jsonb AND fields->$6 = ANY($7::text[]::jsonb[])",
		clause)
	assert.Equal(t, []interface{}{
		"NeatNetworkApplicants",
		"inputs", "180",
		"outputs", "5",
		"ticker", []string{`"BTCUSDT"`, `"ETHUSDT"`},
	}, args)
}

func TestBuildWhere_NoFilter(t *testing.T) {
	clause, args, err := buildWhere("NeatNetworks", nil)
	require.NoError(t, err)
	assert.Equal(t, "class = $1", clause)
	assert.Equal(t, []interface{}{"NeatNetworks"}, args)
}

func TestPostgresStore_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT fields, created_at, updated_at").
		WithArgs("NeatNetworks", "n1").
		WillReturnRows(pgxmock.NewRows([]string{"fields", "created_at", "updated_at"}).
			AddRow([]byte(`{"inputs":180,"outputs":5}`), now, now))

	s := NewPostgresStore(mock)
	obj, found, err := s.Get(context.Background(), "NeatNetworks", "n1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "n1", obj.ID())
	assert.Equal(t, float64(180), obj["inputs"])
	assert.Equal(t, "2024-01-01T00:00:00Z", obj["createdAt"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT fields, created_at, updated_at").
		WithArgs("NeatNetworks", "missing").
		WillReturnError(pgx.ErrNoRows)

	s := NewPostgresStore(mock)
	obj, found, err := s.Get(context.Background(), "NeatNetworks", "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, obj)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryInSet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ids := []string{`"a1"`, `"a2"`}
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM objects WHERE class = \$1 AND fields->\$2 = ANY\(\$3::text\[\]::jsonb\[\]\)`).
		WithArgs("NeatNetworkResults", "applicantId", ids).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1001))

	mock.ExpectQuery(`SELECT id, fields, created_at, updated_at\s+FROM objects\s+WHERE class = \$1 AND fields->\$2 = ANY\(\$3::text\[\]::jsonb\[\]\)\s+ORDER BY created_at, id\s+LIMIT \$4 OFFSET \$5`).
		WithArgs("NeatNetworkResults", "applicantId", ids, 1000, 1000).
		WillReturnRows(pgxmock.NewRows([]string{"id", "fields", "created_at", "updated_at"}).
			AddRow("r1", []byte(`{"applicantId":"a1","wallet":110.4,"drawdown":1}`), now, now))

	s := NewPostgresStore(mock)
	res, err := s.Query(context.Background(), "NeatNetworkResults", Query{
		Where: Filter{"applicantId": In{"a1", "a2"}},
		Limit: 1000,
		Skip:  1000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1001, res.Count)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "r1", res.Results[0].ID())
	assert.Equal(t, 110.4, res.Results[0]["wallet"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryOrderDescending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM objects WHERE class = \$1`).
		WithArgs("NeatNetworkResults").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	mock.ExpectQuery(`ORDER BY fields->\$2 DESC, created_at, id\s+LIMIT \$3 OFFSET \$4`).
		WithArgs("NeatNetworkResults", "score", DefaultPageSize, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "fields", "created_at", "updated_at"}))

	s := NewPostgresStore(mock)
	res, err := s.Query(context.Background(), "NeatNetworkResults", Query{Order: "-score"})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.NotNil(t, res.Results)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryCountError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("NeatNetworkResults").
		WillReturnError(errors.New("connection reset"))

	s := NewPostgresStore(mock)
	_, err = s.Query(context.Background(), "NeatNetworkResults", Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresStore_SaveCreatesID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO objects").
		WithArgs("NeatNetworkResults", pgxmock.AnyArg(), []byte(`{"applicantId":"a1","wallet":120}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewPostgresStore(mock)
	id, err := s.Save(context.Background(), "NeatNetworkResults", "", Object{
		"applicantId": "a1",
		"wallet":      120,
		"objectId":    "ignored",
	})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveUpdateKeepsID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("ON CONFLICT \\(class, id\\) DO UPDATE").
		WithArgs("NeatNetworks", "n1", []byte(`{"parent":"p1"}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewPostgresStore(mock)
	id, err := s.Save(context.Background(), "NeatNetworks", "n1", Object{"parent": "p1"})
	require.NoError(t, err)
	assert.Equal(t, "n1", id)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteIsIdempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM objects").
		WithArgs("NeatNetworkResults", "r1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM objects").
		WithArgs("NeatNetworkResults", "r1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	s := NewPostgresStore(mock)
	require.NoError(t, s.Delete(context.Background(), "NeatNetworkResults", "r1"))
	require.NoError(t, s.Delete(context.Background(), "NeatNetworkResults", "r1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_NilPool(t *testing.T) {
	s := NewPostgresStore(nil)
	_, _, err := s.Get(context.Background(), "NeatNetworks", "n1")
	assert.Error(t, err)
}
