package profiles

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestSetAvatarURLPostgresStatement(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	repo := NewRepository(conn)
	id := uuid.New()
	url := "https://storage.googleapis.com/user-avatars/a.png"

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "users" SET "avatar_url"=$1,"updated_at"=$2 WHERE id = $3`)).
		WithArgs(url, sqlmock.AnyArg(), id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetAvatarURL(context.Background(), id, url))
	require.NoError(t, mock.ExpectationsWereMet())
}
