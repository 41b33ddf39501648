package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_pending_spots"}, []string{"id", "name", "address"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "pending_spots".+ON CONFLICT \("name", "address"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	cfg := UpsertConfig{
		Table:        "pending_spots",
		Columns:      []string{"id", "name", "address"},
		ConflictKeys: []string{"name", "address"},
	}
	rows := [][]any{
		{"id-1", "Amala Palace", "12 Example Street, Lagos"},
		{"id-2", "Olaiya Foods", "1 Olaiya Junction, Surulere"},
	}
	n, err := BulkUpsert(context.Background(), mock, cfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_UpdateWhere(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_pending_spots"}, []string{"id", "name", "address", "lat"}).WillReturnResult(1)
	mock.ExpectExec(`DO UPDATE SET .+ WHERE EXCLUDED\."lat" IS NOT NULL`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	cfg := UpsertConfig{
		Table:        "pending_spots",
		Columns:      []string{"id", "name", "address", "lat"},
		ConflictKeys: []string{"name", "address"},
		UpdateWhere:  `EXCLUDED."lat" IS NOT NULL`,
	}
	n, err := BulkUpsert(context.Background(), mock, cfg, [][]any{{"id-1", "Amala Palace", "12 Example Street, Lagos", 6.45}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{Table: "pending_spots", Columns: []string{"id"}, ConflictKeys: []string{"id"}}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkUpsert_Validation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{{"id-1"}}

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{Table: "pending_spots", ConflictKeys: []string{"id"}}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{Table: "pending_spots", Columns: []string{"id"}}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_pending_spots"}, []string{"id"}).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	cfg := UpsertConfig{Table: "pending_spots", Columns: []string{"id"}, ConflictKeys: []string{"id"}}
	_, err = BulkUpsert(context.Background(), mock, cfg, [][]any{{"id-1"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
