package auth

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/forecastlabs/openbook-backend/internal/testutil"
	"github.com/forecastlabs/openbook-backend/internal/users"
	"github.com/forecastlabs/openbook-backend/internal/wallet"
	pkgauth "github.com/forecastlabs/openbook-backend/pkg/auth"
	"github.com/forecastlabs/openbook-backend/pkg/config"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
	pkgerrors "github.com/forecastlabs/openbook-backend/pkg/errors"
	"github.com/forecastlabs/openbook-backend/pkg/security"
)

var testJWT = config.JWTConfig{
	Secret:            "test-secret",
	Issuer:            "openbook-test",
	ExpirationMinutes: 60,
}

type harness struct {
	db      *gorm.DB
	svc     Service
	users   users.Repository
	wallets wallet.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	runner := testutil.Runner{DB: db}

	userRepo := users.NewRepository(db)
	wallets, err := wallet.NewService(wallet.NewRepository(db), runner)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Users:   userRepo,
		Wallets: wallets,
		Tx:      runner,
		JWT:     testJWT,
	})
	require.NoError(t, err)

	return &harness{db: db, svc: svc, users: userRepo, wallets: wallets}
}

func TestRegister_CreatesUserWalletAndToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.svc.Register(ctx, "Alice@Example.com", "alice", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", result.User.Email)
	require.Equal(t, enums.UserRoleUser, result.User.Role)
	require.True(t, result.User.IsActive)
	require.NotEqual(t, "s3cret-pass", result.User.PasswordHash)

	claims, err := pkgauth.ParseAccessToken(testJWT, result.Token)
	require.NoError(t, err)
	require.Equal(t, result.User.ID, claims.UserID)
	require.Equal(t, enums.UserRoleUser, claims.Role)

	w, err := h.wallets.Get(ctx, result.User.ID)
	require.NoError(t, err)
	require.True(t, w.Balance.IsZero())
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Register(ctx, "alice@example.com", "alice", "s3cret-pass")
	require.NoError(t, err)

	_, err = h.svc.Register(ctx, "alice@example.com", "alice2", "s3cret-pass")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestRegister_ShortPasswordRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Register(context.Background(), "alice@example.com", "alice", "short")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestLogin_Flow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Register(ctx, "alice@example.com", "alice", "s3cret-pass")
	require.NoError(t, err)

	result, err := h.svc.Login(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)

	_, err = h.svc.Login(ctx, "alice@example.com", "wrong-pass")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))

	_, err = h.svc.Login(ctx, "nobody@example.com", "s3cret-pass")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
}

func TestLogin_DeactivatedUserForbidden(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.svc.Register(ctx, "alice@example.com", "alice", "s3cret-pass")
	require.NoError(t, err)
	require.NoError(t, h.users.UpdateActive(ctx, result.User.ID, false))

	_, err = h.svc.Login(ctx, "alice@example.com", "s3cret-pass")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestEnsureAdminSeeded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	runner := testutil.Runner{DB: h.db}

	hash, err := security.HashPassword("admin-pass-123")
	require.NoError(t, err)

	cfg := config.ExchangeConfig{
		AdminEmail:        "root@example.com",
		AdminUsername:     "root",
		AdminPasswordHash: hash,
		AdminCredit:       decimal.NewFromInt(1000),
	}

	admin, err := EnsureAdminSeeded(ctx, runner, h.users, h.wallets, cfg)
	require.NoError(t, err)
	require.NotNil(t, admin)
	require.Equal(t, enums.UserRoleAdmin, admin.Role)

	w, err := h.wallets.Get(ctx, admin.ID)
	require.NoError(t, err)
	require.True(t, w.Balance.Equal(decimal.NewFromInt(1000)))

	// Seeding again is a no-op.
	again, err := EnsureAdminSeeded(ctx, runner, h.users, h.wallets, cfg)
	require.NoError(t, err)
	require.Equal(t, admin.ID, again.ID)
	w, err = h.wallets.Get(ctx, admin.ID)
	require.NoError(t, err)
	require.True(t, w.Balance.Equal(decimal.NewFromInt(1000)))

	result, err := h.svc.Login(ctx, "root@example.com", "admin-pass-123")
	require.NoError(t, err)
	require.Equal(t, enums.UserRoleAdmin, result.User.Role)
}
