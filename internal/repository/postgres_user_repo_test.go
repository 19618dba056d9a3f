package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/rentcam/internal/model"
)

var userRowColumns = []string{"id", "email", "full_name", "role", "is_verified", "telegram_id", "password_hash", "created_at", "updated_at"}

func TestPostgresUserRepo_FindByID_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("user-1", "a@example.com", "Alice", "MANAGER", true, int64(42), "hash", now, now))

	user, err := repo.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "a@example.com", user.Email)
	assert.Equal(t, model.RoleManager, user.Role)
	assert.True(t, user.IsVerified)
	require.NotNil(t, user.TelegramID)
	assert.Equal(t, int64(42), *user.TelegramID)
}

func TestPostgresUserRepo_FindByID_NotFoundReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	user, err := repo.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestPostgresUserRepo_FindByID_RetriesTransientError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	var retries []int
	repo.SetRetryPolicy(fastRetry(), func(attempt int, err error) { retries = append(retries, attempt) })
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs("user-1").
		WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("user-1", "a@example.com", "", "USER", false, nil, "", now, now))

	user, err := repo.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Nil(t, user.TelegramID)
	assert.Equal(t, []int{1}, retries)
}

func newShadowUser(now time.Time) *model.User {
	return &model.User{
		ID:           "user-new",
		Email:        "telegram_42_abcd1234@telegram.rentcam.local",
		FullName:     "Taro Yamada",
		Role:         model.RoleUser,
		PasswordHash: "$argon2id$hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPostgresUserRepo_CreateWithTelegramLink_Created(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now()
	user := newShadowUser(now)
	link := &model.TelegramLink{TelegramID: 42, Username: "taro", FirstName: "Taro", AuthDate: now.Unix()}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs(user.ID, user.Email, user.FullName, "USER", user.PasswordHash, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO telegram_users`)).
		WithArgs(int64(42), user.ID, "taro", "Taro", "", "", now.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_verified = true`)).
		WithArgs(user.ID, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.CreateWithTelegramLink(context.Background(), user, link)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, user.IsVerified)
	require.NotNil(t, user.TelegramID)
	assert.Equal(t, int64(42), *user.TelegramID)
}

func TestPostgresUserRepo_CreateWithTelegramLink_LostRaceRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now()
	user := newShadowUser(now)
	link := &model.TelegramLink{TelegramID: 42}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO telegram_users`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	created, err := repo.CreateWithTelegramLink(context.Background(), user, link)
	require.NoError(t, err)
	assert.False(t, created)
	assert.False(t, user.IsVerified)
}

func TestPostgresUserRepo_UpdateProfile_DuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET full_name = $2, email = $3`)).
		WithArgs("user-1", "New Name", "taken@example.com", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.UpdateProfile(context.Background(), &model.User{
		ID: "user-1", FullName: "New Name", Email: "taken@example.com", UpdatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestPostgresUserRepo_UpdateProfile_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET full_name = $2, email = $3`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateProfile(context.Background(), &model.User{ID: "missing", UpdatedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not found")
}
