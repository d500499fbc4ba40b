package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/climatedb/internal/archive"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "url_log")
	require.NoError(t, err)
	return mock, store
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad;name")
	require.Error(t, err)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, defaultTable, store.table)
}

func TestLogAddInsertsRowsInOneTransaction(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	records := []archive.URLRecord{
		{URL: "https://bbc.co.uk/a", CollectedAt: now},
		{URL: "https://bbc.co.uk/a", CollectedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO url_log").
		WithArgs("urls.jsonl", records[0].URL, now, "urls.jsonl", records[1].URL, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := store.Log("urls.jsonl").Add(context.Background(), records)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogAddRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO url_log").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Log("urls").Add(context.Background(), []archive.URLRecord{{URL: "https://a.com/x"}})
	require.Error(t, err)
	require.True(t, errors.Is(err, archive.ErrStorage))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogAddEmptyIsNoop(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	require.NoError(t, store.Log("urls").Add(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogAddRejectsEmptyURLBeforeWriting(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	err := store.Log("urls").Add(context.Background(), []archive.URLRecord{{URL: "https://a.com/x"}, {URL: ""}})
	require.ErrorIs(t, err, archive.ErrUsage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogGetReturnsRowsInOrder(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	t1 := time.Unix(100, 0).UTC()
	t2 := time.Unix(200, 0).UTC()

	mock.ExpectQuery("SELECT url, collected_at FROM url_log WHERE log_name = \\$1 ORDER BY id").
		WithArgs("urls").
		WillReturnRows(pgxmock.NewRows([]string{"url", "collected_at"}).
			AddRow("https://cnn.com/1", t1).
			AddRow("https://cnn.com/2", t2))

	got, err := store.Log("urls").Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, []archive.URLRecord{
		{URL: "https://cnn.com/1", CollectedAt: t1},
		{URL: "https://cnn.com/2", CollectedAt: t2},
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogLen(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM url_log WHERE log_name = \\$1").
		WithArgs("urls").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := store.Log("urls").Len(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS url_log").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
