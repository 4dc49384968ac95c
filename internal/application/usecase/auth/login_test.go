package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/tagvault/internal/domain/user"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/auth"
	"github.com/khoahotran/tagvault/pkg/logger"
)

type memUserRepo struct {
	users     map[string]*user.User
	recordErr error
}

func (r *memUserRepo) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	u, ok := r.users[email]
	if !ok {
		return nil, apperror.NewNotFound("operator", email)
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) Upsert(ctx context.Context, u *user.User) error {
	r.users[u.Email] = u
	return nil
}

func (r *memUserRepo) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if r.recordErr != nil {
		return r.recordErr
	}
	for _, u := range r.users {
		if u.ID == id {
			u.LastLoginAt = &at
			return nil
		}
	}
	return apperror.NewNotFound("operator", id.String())
}

func newLoginFixture(t *testing.T) (*LoginUseCase, *memUserRepo, *user.User, *auth.JWTService) {
	t.Helper()
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	op := &user.User{ID: uuid.New(), Email: "ops@example.com", PasswordHash: hash}
	repo := &memUserRepo{users: map[string]*user.User{op.Email: op}}
	jwtSvc := auth.NewJWTService("test-secret", time.Hour)
	return NewLoginUseCase(repo, jwtSvc, logger.NewNopLogger()), repo, op, jwtSvc
}

func TestLogin(t *testing.T) {
	uc, _, op, jwtSvc := newLoginFixture(t)

	out, err := uc.Execute(context.Background(), LoginInput{Email: op.Email, Password: "s3cret"})
	require.NoError(t, err)
	claims, err := jwtSvc.ValidateToken(out.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, op.ID, claims.OperatorID)
	assert.Equal(t, op.ID, out.OperatorID)

	_, err = uc.Execute(context.Background(), LoginInput{Email: op.Email, Password: "wrong"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = uc.Execute(context.Background(), LoginInput{Email: "nobody@example.com", Password: "s3cret"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestLogin_RecordsLastLogin(t *testing.T) {
	uc, _, op, _ := newLoginFixture(t)
	ctx := context.Background()

	before := time.Now().UTC()
	first, err := uc.Execute(ctx, LoginInput{Email: "  OPS@example.com ", Password: "s3cret"})
	require.NoError(t, err)
	assert.Nil(t, first.PreviousLoginAt)
	require.NotNil(t, op.LastLoginAt)
	assert.False(t, op.LastLoginAt.Before(before))
	recorded := *op.LastLoginAt

	second, err := uc.Execute(ctx, LoginInput{Email: op.Email, Password: "s3cret"})
	require.NoError(t, err)
	require.NotNil(t, second.PreviousLoginAt)
	assert.True(t, recorded.Equal(*second.PreviousLoginAt))

	failed := *op.LastLoginAt
	_, err = uc.Execute(ctx, LoginInput{Email: op.Email, Password: "wrong"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.True(t, failed.Equal(*op.LastLoginAt))
}

func TestLogin_RecordFailureDoesNotBlockSignIn(t *testing.T) {
	uc, repo, op, _ := newLoginFixture(t)
	repo.recordErr = errors.New("connection reset")

	out, err := uc.Execute(context.Background(), LoginInput{Email: op.Email, Password: "s3cret"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.AccessToken)
	assert.Nil(t, op.LastLoginAt)
}
