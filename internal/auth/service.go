package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/forecastlabs/openbook-backend/internal/users"
	"github.com/forecastlabs/openbook-backend/internal/wallet"
	pkgauth "github.com/forecastlabs/openbook-backend/pkg/auth"
	"github.com/forecastlabs/openbook-backend/pkg/auth/session"
	"github.com/forecastlabs/openbook-backend/pkg/config"
	pkgdb "github.com/forecastlabs/openbook-backend/pkg/db"
	"github.com/forecastlabs/openbook-backend/pkg/db/models"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
	pkgerrors "github.com/forecastlabs/openbook-backend/pkg/errors"
	"github.com/forecastlabs/openbook-backend/pkg/security"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type sessionRegistrar interface {
	Create(ctx context.Context, accessID string) error
}

// Result pairs an authenticated user with a fresh access token.
type Result struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Service handles registration and login.
type Service interface {
	Register(ctx context.Context, email, username, password string) (*Result, error)
	Login(ctx context.Context, email, password string) (*Result, error)
}

type service struct {
	users    users.Repository
	wallets  wallet.Service
	sessions sessionRegistrar
	tx       txRunner
	jwt      config.JWTConfig
}

// ServiceParams bundles the auth service dependencies.
type ServiceParams struct {
	Users    users.Repository
	Wallets  wallet.Service
	Sessions sessionRegistrar
	Tx       txRunner
	JWT      config.JWTConfig
}

// NewService builds the auth service.
func NewService(params ServiceParams) (Service, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		users:    params.Users,
		wallets:  params.Wallets,
		sessions: params.Sessions,
		tx:       params.Tx,
		jwt:      params.JWT,
	}, nil
}

// Register creates the user and their wallet in one transaction, then issues
// a token.
func (s *service) Register(ctx context.Context, email, username, password string) (*Result, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if email == "" || username == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and username required")
	}
	if len(password) < 8 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}

	digest, err := security.HashPassword(password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: digest,
		Role:         enums.UserRoleUser,
		IsActive:     true,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).Create(ctx, user); err != nil {
			if pkgdb.IsUniqueViolation(err) {
				return pkgerrors.New(pkgerrors.CodeConflict, "email or username already taken")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}
		if _, err := s.wallets.CreateForUser(ctx, tx, user.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.issue(ctx, user)
}

func (s *service) Login(ctx context.Context, email, password string) (*Result, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is deactivated")
	}
	if !security.VerifyPassword(password, user.PasswordHash) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	return s.issue(ctx, user)
}

func (s *service) issue(ctx context.Context, user *models.User) (*Result, error) {
	jti := session.NewAccessID()
	token, err := pkgauth.MintAccessToken(s.jwt, time.Now().UTC(), pkgauth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    jti,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint token")
	}
	if s.sessions != nil {
		if err := s.sessions.Create(ctx, jti); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register session")
		}
	}
	return &Result{User: user, Token: token}, nil
}

// EnsureAdminSeeded creates the bootstrap administrator when missing.
// The configured password hash is stored verbatim: it is minted offline and
// never travels through registration.
func EnsureAdminSeeded(ctx context.Context, tx txRunner, userRepo users.Repository, wallets wallet.Service, cfg config.ExchangeConfig) (*models.User, error) {
	if cfg.AdminEmail == "" || cfg.AdminUsername == "" || cfg.AdminPasswordHash == "" {
		return nil, nil
	}

	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	existing, err := userRepo.GetByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !pkgdb.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check admin user")
	}

	admin := &models.User{
		Email:        email,
		Username:     strings.TrimSpace(cfg.AdminUsername),
		PasswordHash: cfg.AdminPasswordHash,
		Role:         enums.UserRoleAdmin,
		IsActive:     true,
	}

	err = tx.WithTx(ctx, func(txDB *gorm.DB) error {
		if err := userRepo.WithTx(txDB).Create(ctx, admin); err != nil {
			if pkgdb.IsUniqueViolation(err) {
				return pkgerrors.New(pkgerrors.CodeConflict, "admin username already taken")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create admin user")
		}
		if _, err := wallets.CreateForUser(ctx, txDB, admin.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cfg.AdminCredit.IsPositive() {
		if _, err := wallets.AdminCredit(ctx, admin.ID, cfg.AdminCredit, "bootstrap credit"); err != nil {
			return nil, err
		}
	}
	return admin, nil
}
