package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamecredit-platform/internal/apperr"
	"gamecredit-platform/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrClientNotFound    = fmt.Errorf("%w: client", apperr.ErrNotFound)
	ErrInvalidArgument   = fmt.Errorf("%w: invalid argument", apperr.ErrValidation)
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", apperr.ErrConflict)
)

// Repository is the persistence contract for ledger reads and manual adjustments.
// Methods join the transaction carried by ctx when called inside WithinTx.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	ClientExists(ctx context.Context, clientID string) (bool, error)
	// LockWalletOwner serializes money writes for one client (SELECT ... FOR UPDATE).
	LockWalletOwner(ctx context.Context, clientID string) error
	ListTransactions(ctx context.Context, clientID string) ([]Transaction, error)
	FindTransactionByIdempotency(ctx context.Context, key string) (Transaction, bool, error)
	InsertTransaction(ctx context.Context, t Transaction) error
}

// Service answers wallet questions from the ledger and records admin adjustments.
// Balances are never cached; every read re-aggregates confirmed rows.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Summary is the wallet view returned to the API layer.
type Summary struct {
	ClientID string `json:"client_id"`
	Balances
	Recent []Transaction `json:"recent_transactions"`
}

const recentLimit = 20

// GetWalletSummary aggregates the client's ledger. A negative raw balance is returned
// as ErrNegativeBalance together with the clamped snapshot.
func (s *Service) GetWalletSummary(ctx context.Context, clientID string) (Summary, error) {
	if strings.TrimSpace(clientID) == "" {
		return Summary{}, ErrInvalidArgument
	}
	ok, err := s.repo.ClientExists(ctx, clientID)
	if err != nil {
		return Summary{}, err
	}
	if !ok {
		return Summary{}, ErrClientNotFound
	}
	rows, err := s.repo.ListTransactions(ctx, clientID)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{ClientID: clientID, Balances: ComputeBalances(rows)}
	if len(rows) > recentLimit {
		out.Recent = rows[:recentLimit]
	} else {
		out.Recent = rows
	}
	if err := out.Balances.Check(); err != nil {
		logger.From(ctx).Error("wallet invariant violated", "client_id", clientID, "err", err)
		return out, err
	}
	return out, nil
}

type AdjustRequest struct {
	ClientID string          `json:"client_id"`
	Wallet   WalletType      `json:"wallet_type"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason"`
	// IdempotencyKey makes retries of the same adjustment safe.
	IdempotencyKey string `json:"idempotency_key"`
	AdminUserID    string `json:"-"`
}

// AdjustWallet writes a confirmed ADJUST or BONUS_ADJUST row. Negative amounts are
// allowed but may not take the wallet below zero.
func (s *Service) AdjustWallet(ctx context.Context, req AdjustRequest) (Transaction, Balances, error) {
	if strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.Reason) == "" {
		return Transaction{}, Balances{}, ErrInvalidArgument
	}
	if req.Amount.IsZero() {
		return Transaction{}, Balances{}, ErrInvalidArgument
	}
	var typ Type
	switch req.Wallet {
	case WalletReal:
		typ = TypeAdjust
	case WalletBonus:
		typ = TypeBonusAdjust
	default:
		return Transaction{}, Balances{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	var outTx Transaction
	var outBal Balances

	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockWalletOwner(ctx, req.ClientID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return ErrClientNotFound
			}
			return err
		}

		if req.IdempotencyKey != "" {
			if existing, ok, err := s.repo.FindTransactionByIdempotency(ctx, req.IdempotencyKey); err != nil {
				return err
			} else if ok {
				if existing.ClientID != req.ClientID {
					return fmt.Errorf("%w: idempotency key reused for another client", apperr.ErrConflict)
				}
				outTx = existing
				rows, err := s.repo.ListTransactions(ctx, req.ClientID)
				if err != nil {
					return err
				}
				outBal = ComputeBalances(rows)
				return nil
			}
		}

		rows, err := s.repo.ListTransactions(ctx, req.ClientID)
		if err != nil {
			return err
		}
		current := ComputeBalances(rows)
		if req.Amount.IsNegative() && current.Available(req.Wallet).Add(req.Amount).IsNegative() {
			return ErrInsufficientFunds
		}

		entry := Transaction{
			ID:             uuid.NewString(),
			ClientID:       req.ClientID,
			Type:           typ,
			Amount:         req.Amount,
			WalletType:     req.Wallet,
			Status:         StatusConfirmed,
			Source:         SourceAdmin,
			IdempotencyKey: StringPtr(req.IdempotencyKey),
			Reason:         req.Reason,
			Metadata:       adminMetadata(req.AdminUserID),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.InsertTransaction(ctx, entry); err != nil {
			return err
		}
		outTx = entry
		outBal = ComputeBalances(append(rows, entry))
		return nil
	})
	return outTx, outBal, err
}

func adminMetadata(adminUserID string) string {
	if adminUserID == "" {
		return ""
	}
	return fmt.Sprintf(`{"admin_user_id":%q}`, adminUserID)
}
