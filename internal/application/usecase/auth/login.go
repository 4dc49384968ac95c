package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/internal/domain/user"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/auth"
	"github.com/khoahotran/tagvault/pkg/logger"
)

type LoginUseCase struct {
	userRepo user.Repository
	jwtSvc   *auth.JWTService
	logger   logger.Logger
}

func NewLoginUseCase(repo user.Repository, jwtSvc *auth.JWTService, log logger.Logger) *LoginUseCase {
	return &LoginUseCase{
		userRepo: repo,
		jwtSvc:   jwtSvc,
		logger:   log,
	}
}

type LoginInput struct {
	Email    string
	Password string
}

// PreviousLoginAt is nil on an operator's first sign-in.
type LoginOutput struct {
	AccessToken     string
	OperatorID      uuid.UUID
	PreviousLoginAt *time.Time
}

var tracer = otel.Tracer("auth_usecase")

// Execute reports an unknown email and a wrong password identically. A
// failure to record the login is logged and does not block the sign-in.
func (uc *LoginUseCase) Execute(ctx context.Context, input LoginInput) (*LoginOutput, error) {
	ctx, span := tracer.Start(ctx, "Execute")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(input.Email))
	u, err := uc.userRepo.FindByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NewUnauthorized("email or password is incorrect", nil)
		}
		return nil, err
	}

	if !auth.CheckPasswordHash(input.Password, u.PasswordHash) {
		err := apperror.NewUnauthorized("email or password is incorrect", nil)
		span.RecordError(err)
		return nil, err
	}

	token, err := uc.jwtSvc.GenerateToken(u.ID)
	if err != nil {
		uc.logger.Error("Failed to generate token", err, zap.String("operator_id", u.ID.String()))
		err = apperror.NewInternal("failed to generate token", err)
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("operator_id", u.ID.String()))

	if err := uc.userRepo.RecordLogin(ctx, u.ID, time.Now().UTC()); err != nil {
		uc.logger.Warn("Failed to record operator login", zap.String("operator_id", u.ID.String()), zap.Error(err))
	}
	uc.logger.Info("Operator logged in", zap.String("operator_id", u.ID.String()), zap.String("email", u.Email))

	return &LoginOutput{
		AccessToken:     token,
		OperatorID:      u.ID,
		PreviousLoginAt: u.LastLoginAt,
	}, nil
}
