package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is an operator allowed to drive exports and restores over HTTP.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	Name         *string    `json:"name"`
	PasswordHash string     `json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at"`
}

// Repository matches emails case-insensitively.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Upsert(ctx context.Context, u *User) error
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}
