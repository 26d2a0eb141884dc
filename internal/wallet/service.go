package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	pkgdb "github.com/forecastlabs/openbook-backend/pkg/db"
	"github.com/forecastlabs/openbook-backend/pkg/db/models"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
	pkgerrors "github.com/forecastlabs/openbook-backend/pkg/errors"
	"github.com/forecastlabs/openbook-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes every operation that may move money through a wallet.
// Balance writes always travel with an appended ledger entry inside one
// database transaction, keeping the balance_before/balance_after chain
// contiguous.
type Service interface {
	CreateForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error)
	Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error)
	Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error)
	AdminCredit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (*models.Wallet, error)
	DeductForTrade(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, marketID uuid.UUID) (*models.WalletTransaction, error)
	AddFromTrade(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, marketID uuid.UUID) (*models.WalletTransaction, error)
	SettlePosition(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, marketID uuid.UUID) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, page pagination.Params) (pagination.Page[models.WalletTransaction], error)
	ListAll(ctx context.Context, page pagination.Params) (pagination.Page[models.Wallet], error)
	Audit(ctx context.Context, userID uuid.UUID) (AuditReport, error)
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService wires a wallet service with the provided repository and runner.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) CreateForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	wallet := &models.Wallet{
		UserID:        userID,
		Balance:       decimal.Zero,
		FrozenBalance: decimal.Zero,
	}
	if err := s.repo.WithTx(tx).Create(ctx, wallet); err != nil {
		if pkgdb.IsUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "wallet already exists for user")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	return wallet, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

func (s *service) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "deposit amount must be positive")
	}
	return s.applyOwnTx(ctx, userID, amount, enums.TxKindDeposit, nil, "deposit")
}

func (s *service) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "withdraw amount must be positive")
	}
	return s.applyOwnTx(ctx, userID, amount.Neg(), enums.TxKindWithdraw, nil, "withdrawal")
}

func (s *service) AdminCredit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (*models.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "credit amount must be positive")
	}
	if description == "" {
		description = "admin credit"
	}
	return s.applyOwnTx(ctx, userID, amount, enums.TxKindRefund, nil, description)
}

func (s *service) DeductForTrade(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, marketID uuid.UUID) (*models.WalletTransaction, error) {
	_, entry, err := s.apply(ctx, tx, userID, amount.Neg(), enums.TxKindTrade, &marketID, "trade debit")
	return entry, err
}

func (s *service) AddFromTrade(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, marketID uuid.UUID) (*models.WalletTransaction, error) {
	_, entry, err := s.apply(ctx, tx, userID, amount, enums.TxKindTrade, &marketID, "trade credit")
	return entry, err
}

func (s *service) SettlePosition(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, marketID uuid.UUID) (*models.WalletTransaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "settlement amount must be positive")
	}
	_, entry, err := s.apply(ctx, tx, userID, amount, enums.TxKindSettlement, &marketID, "market settlement payout")
	return entry, err
}

func (s *service) applyOwnTx(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, kind enums.TxKind, ref *uuid.UUID, description string) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var applyErr error
		wallet, _, applyErr = s.apply(ctx, tx, userID, amount, kind, ref, description)
		return applyErr
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// apply is the single funds-movement primitive: a locked read of the wallet
// row, the non-negative balance check, the balance write, and the ledger
// append, all on the supplied transaction.
func (s *service) apply(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, kind enums.TxKind, ref *uuid.UUID, description string) (*models.Wallet, *models.WalletTransaction, error) {
	if tx == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet mutation requires a transaction")
	}
	if amount.IsZero() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be non-zero")
	}
	if !kind.IsValid() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction kind %q", kind))
	}

	repo := s.repo.WithTx(tx)

	wallet, err := repo.GetByUserIDForUpdate(ctx, userID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}

	before := wallet.Balance
	after := before.Add(amount)
	if after.IsNegative() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds").
			WithDetails(map[string]any{"balance": before, "requested": amount.Abs()})
	}

	if err := repo.UpdateBalance(ctx, wallet.ID, after); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance")
	}

	entry := &models.WalletTransaction{
		WalletID:      wallet.ID,
		Kind:          kind,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   description,
		ReferenceID:   ref,
	}
	if err := repo.AppendTransaction(ctx, entry); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
	}

	wallet.Balance = after
	return wallet, entry, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, page pagination.Params) (pagination.Page[models.WalletTransaction], error) {
	var out pagination.Page[models.WalletTransaction]

	wallet, err := s.Get(ctx, userID)
	if err != nil {
		return out, err
	}

	page = page.Normalize()
	entries, total, err := s.repo.ListTransactions(ctx, wallet.ID, page)
	if err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return pagination.Page[models.WalletTransaction]{
		Items: entries,
		Page:  page.Page,
		Limit: page.Limit,
		Total: total,
	}, nil
}

func (s *service) ListAll(ctx context.Context, page pagination.Params) (pagination.Page[models.Wallet], error) {
	var out pagination.Page[models.Wallet]
	page = page.Normalize()
	wallets, total, err := s.repo.ListAll(ctx, page)
	if err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallets")
	}
	return pagination.Page[models.Wallet]{
		Items: wallets,
		Page:  page.Page,
		Limit: page.Limit,
		Total: total,
	}, nil
}

// AuditReport is the result of replaying a wallet's ledger chain.
type AuditReport struct {
	WalletID     uuid.UUID `json:"wallet_id"`
	Entries      int       `json:"entries"`
	ChainIntact  bool      `json:"chain_intact"`
	BalanceMatch bool      `json:"balance_match"`
}

// Audit verifies that every ledger entry satisfies
// balance_after == balance_before + amount, that consecutive entries join
// exactly, and that the wallet balance equals the final balance_after.
func (s *service) Audit(ctx context.Context, userID uuid.UUID) (AuditReport, error) {
	wallet, err := s.Get(ctx, userID)
	if err != nil {
		return AuditReport{}, err
	}

	entries, err := s.repo.ListTransactionsAsc(ctx, wallet.ID)
	if err != nil {
		return AuditReport{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger")
	}

	report := AuditReport{
		WalletID:     wallet.ID,
		Entries:      len(entries),
		ChainIntact:  true,
		BalanceMatch: true,
	}

	var audit error
	for i, entry := range entries {
		if !entry.BalanceAfter.Equal(entry.BalanceBefore.Add(entry.Amount)) {
			report.ChainIntact = false
			audit = multierr.Append(audit, fmt.Errorf("entry %s: balance_after != balance_before + amount", entry.ID))
		}
		if i > 0 && !entry.BalanceBefore.Equal(entries[i-1].BalanceAfter) {
			report.ChainIntact = false
			audit = multierr.Append(audit, fmt.Errorf("entry %s: chain break after %s", entry.ID, entries[i-1].ID))
		}
	}

	if len(entries) > 0 && !wallet.Balance.Equal(entries[len(entries)-1].BalanceAfter) {
		report.BalanceMatch = false
		audit = multierr.Append(audit, fmt.Errorf("wallet %s: balance diverges from ledger tail", wallet.ID))
	}
	if len(entries) == 0 && !wallet.Balance.IsZero() {
		report.BalanceMatch = false
		audit = multierr.Append(audit, fmt.Errorf("wallet %s: non-zero balance with empty ledger", wallet.ID))
	}

	if audit != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeInternal, audit, "ledger audit failed")
	}
	return report, nil
}
