package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/clientkeeper/internal/common"
	"github.com/dmitrijs2005/clientkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	insertQuery     = `(?s)^\s*INSERT\s+INTO\s+snapshots\s*\(id,\s*owner_id,\s*clients_count,\s*reminders_count,\s*storage_key,\s*payload,\s*nonce\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7\)\s*RETURNING\s+seq,\s*created_at\s*$`
	latestBySeq     = `(?s)^\s*SELECT\s+id,.*payload,\s*nonce\s+FROM\s+snapshots\s+WHERE\s+owner_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC,\s*seq\s+DESC\s+LIMIT\s+1\s*$`
	latestByID      = `(?s)^\s*SELECT\s+id,.*FROM\s+snapshots\s+WHERE\s+owner_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC,\s*id\s+DESC\s+LIMIT\s+1\s*$`
	listAll         = `(?s)^\s*SELECT\s+id,.*storage_key\s+FROM\s+snapshots\s+WHERE\s+owner_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC,\s*seq\s+DESC\s*$`
	listLimited     = `(?s)^\s*SELECT\s+id,.*ORDER\s+BY\s+created_at\s+DESC,\s*seq\s+DESC\s+LIMIT\s+\$2\s*$`
	deleteTwoQuery  = `(?s)^\s*DELETE\s+FROM\s+snapshots\s+WHERE\s+owner_id\s*=\s*\$1\s+AND\s+id\s+IN\s+\(\$2,\s*\$3\)\s+RETURNING\s+storage_key\s*$`
	latestColumns   = "id,owner_id,seq,created_at,clients_count,reminders_count,storage_key,payload,nonce"
	snapshotOwnerID = "11111111-1111-1111-1111-111111111111"
)

var created = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T, tieBreak string) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db, tieBreak), mock
}

func TestInsert(t *testing.T) {
	repo, mock := newRepoWithMock(t, TieBreakSeq)

	s := &models.Snapshot{
		ID: "snap-1", OwnerID: snapshotOwnerID, ClientsCount: 2, RemindersCount: 1,
		Payload: []byte("sealed"), Nonce: []byte("nonce"),
	}
	mock.ExpectQuery(insertQuery).
		WithArgs("snap-1", snapshotOwnerID, 2, 1, "", []byte("sealed"), []byte("nonce")).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "created_at"}).AddRow(int64(7), created))

	require.NoError(t, repo.Insert(context.Background(), s))
	assert.Equal(t, int64(7), s.Seq)
	assert.True(t, s.CreatedAt.Equal(created))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_Errors(t *testing.T) {
	repo, mock := newRepoWithMock(t, TieBreakSeq)
	s := &models.Snapshot{ID: "snap-1", OwnerID: snapshotOwnerID}

	mock.ExpectQuery(insertQuery).WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, repo.Insert(context.Background(), s), common.ErrorConflict)

	mock.ExpectQuery(insertQuery).WillReturnError(errors.New("db down"))
	err := repo.Insert(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: db down")
}

func TestLatest_TieBreakChangesOrdering(t *testing.T) {
	for _, tc := range []struct {
		tieBreak string
		query    string
	}{
		{TieBreakSeq, latestBySeq},
		{TieBreakID, latestByID},
		{"bogus", latestBySeq},
	} {
		t.Run(tc.tieBreak, func(t *testing.T) {
			repo, mock := newRepoWithMock(t, tc.tieBreak)
			mock.ExpectQuery(tc.query).
				WithArgs(snapshotOwnerID).
				WillReturnRows(sqlmock.NewRows(strings.Split(latestColumns, ",")).
					AddRow("snap-2", snapshotOwnerID, int64(9), created, 3, 4, "key/1", nil, []byte("n")))

			got, err := repo.Latest(context.Background(), snapshotOwnerID)
			require.NoError(t, err)
			assert.Equal(t, "snap-2", got.ID)
			assert.Equal(t, int64(9), got.Seq)
			assert.Equal(t, 3, got.ClientsCount)
			assert.Equal(t, 4, got.RemindersCount)
			assert.Equal(t, "key/1", got.StorageKey)
			assert.Nil(t, got.Payload)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLatest_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t, TieBreakSeq)
	mock.ExpectQuery(latestBySeq).WithArgs(snapshotOwnerID).WillReturnError(sql.ErrNoRows)

	_, err := repo.Latest(context.Background(), snapshotOwnerID)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestList(t *testing.T) {
	repo, mock := newRepoWithMock(t, TieBreakSeq)
	cols := []string{"id", "owner_id", "seq", "created_at", "clients_count", "reminders_count", "storage_key"}

	mock.ExpectQuery(listAll).
		WithArgs(snapshotOwnerID).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("b", snapshotOwnerID, int64(2), created.Add(time.Second), 1, 0, "").
			AddRow("a", snapshotOwnerID, int64(1), created, 1, 0, ""))
	list, err := repo.List(context.Background(), snapshotOwnerID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)

	mock.ExpectQuery(listLimited).
		WithArgs(snapshotOwnerID, 1).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("b", snapshotOwnerID, int64(2), created, 1, 0, ""))
	list, err = repo.List(context.Background(), snapshotOwnerID, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	mock.ExpectQuery(listAll).WithArgs(snapshotOwnerID).WillReturnError(errors.New("boom"))
	_, err = repo.List(context.Background(), snapshotOwnerID, 0)
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t, TieBreakSeq)

	mock.ExpectQuery(deleteTwoQuery).
		WithArgs(snapshotOwnerID, "a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"storage_key"}).AddRow("k/a").AddRow(""))
	keys, err := repo.Delete(context.Background(), snapshotOwnerID, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"k/a", ""}, keys)

	keys, err = repo.Delete(context.Background(), snapshotOwnerID, nil)
	require.NoError(t, err)
	assert.Empty(t, keys)

	mock.ExpectQuery(deleteTwoQuery).WillReturnError(errors.New("boom"))
	_, err = repo.Delete(context.Background(), snapshotOwnerID, []string{"a", "b"})
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
