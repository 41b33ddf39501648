package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_pending_spots"}, []string{"name", "address", "source"}).WillReturnResult(2)

	rows := [][]any{
		{"Amala Palace", "12 Example Street, Lagos", "blog-a"},
		{"Fake Buka", "9 Nowhere Road, Lagos", "blog-b"},
	}
	n, err := CopyFrom(context.Background(), mock, "_tmp_upsert_pending_spots", []string{"name", "address", "source"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_EmptyRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := CopyFrom(context.Background(), mock, "_tmp_upsert_pending_spots", []string{"name"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_pending_spots"}, []string{"name"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "_tmp_upsert_pending_spots", []string{"name"}, [][]any{{"Amala Palace"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO _tmp_upsert_pending_spots")
	assert.NoError(t, mock.ExpectationsWereMet())
}
