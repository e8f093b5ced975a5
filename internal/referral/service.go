package referral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamecredit-platform/internal/apperr"
	"gamecredit-platform/internal/ledger"
	"gamecredit-platform/internal/settings"
	"gamecredit-platform/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrClientNotFound   = fmt.Errorf("%w: client", apperr.ErrNotFound)
	ErrReferralNotFound = fmt.Errorf("%w: referral", apperr.ErrNotFound)
	ErrInvalidArgument  = fmt.Errorf("%w: invalid argument", apperr.ErrValidation)
	ErrUnknownCode      = fmt.Errorf("%w: invalid referral code", apperr.ErrValidation)
	ErrReferralDisabled = fmt.Errorf("%w: referral system is disabled", apperr.ErrValidation)
	ErrReferralLocked   = fmt.Errorf("%w: referral code cannot be applied after first deposit", apperr.ErrConflict)
	ErrAlreadyReferred  = fmt.Errorf("%w: referral code already applied", apperr.ErrConflict)
	ErrSelfReferral     = fmt.Errorf("%w: cannot use own referral code", apperr.ErrConflict)
	ErrCircularReferral = fmt.Errorf("%w: circular referrals are not allowed", apperr.ErrConflict)
)

// Repository is the persistence contract for clients, referral records and the
// ledger rows the engine writes. Lookups return an error wrapping
// apperr.ErrNotFound when nothing matches.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	InsertClient(ctx context.Context, c Client) error
	GetClient(ctx context.Context, clientID string) (Client, error)
	GetClientByCode(ctx context.Context, code string) (Client, error)
	// LockClient reads the client row FOR UPDATE.
	LockClient(ctx context.Context, clientID string) (Client, error)
	UpdateClient(ctx context.Context, c Client) error
	SetClientIP(ctx context.Context, clientID, ip string) error

	InsertReferral(ctx context.Context, r Record) error
	GetReferralByReferred(ctx context.Context, referredID string) (Record, error)
	UpdateReferral(ctx context.Context, r Record) error
	ListReferralsByReferrer(ctx context.Context, referrerID string) ([]Record, error)

	InsertTransaction(ctx context.Context, t ledger.Transaction) error
	// SumTransactions adds up confirmed rows of one type; an empty source matches any.
	SumTransactions(ctx context.Context, clientID string, typ ledger.Type, source string) (decimal.Decimal, error)
}

// Service runs the referral protocols. Counter mutations happen with the affected
// client rows locked in ascending client_id order.
type Service struct {
	repo     Repository
	settings settings.Provider
	clock    func() time.Time
	newCode  func() (string, error)
}

func NewService(repo Repository, provider settings.Provider) *Service {
	return &Service{repo: repo, settings: provider, clock: time.Now, newCode: GenerateCode}
}

type RegisterRequest struct {
	ClientID     string `json:"client_id"`
	DisplayName  string `json:"display_name"`
	ReferralCode string `json:"referral_code"`
	IP           string `json:"-"`
}

const codeAttempts = 5

// RegisterClient creates a wallet owner with a fresh referral code. A referral code
// supplied at signup is applied in the same transaction.
func (s *Service) RegisterClient(ctx context.Context, req RegisterRequest) (Client, error) {
	if strings.TrimSpace(req.DisplayName) == "" {
		return Client{}, ErrInvalidArgument
	}
	id := strings.TrimSpace(req.ClientID)
	if id == "" {
		id = uuid.NewString()
	}

	var out Client
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		code, err := s.uniqueCode(ctx)
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		c := Client{
			ID:           id,
			DisplayName:  strings.TrimSpace(req.DisplayName),
			ReferralCode: code,
			SignupIP:     req.IP,
			LastIP:       req.IP,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.InsertClient(ctx, c); err != nil {
			return err
		}
		if strings.TrimSpace(req.ReferralCode) != "" {
			if _, err := s.ApplyReferralCode(ctx, ApplyRequest{ClientID: id, Code: req.ReferralCode, IP: req.IP}); err != nil {
				return err
			}
		}
		out, err = s.repo.GetClient(ctx, id)
		return err
	})
	if err != nil {
		return Client{}, err
	}
	logger.From(ctx).Info("client registered", "client_id", out.ID, "referred", out.ReferredByCode != nil)
	return out, nil
}

func (s *Service) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		_, err = s.repo.GetClientByCode(ctx, code)
		if errors.Is(err, apperr.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errors.New("referral: could not allocate a unique code")
}

type ApplyRequest struct {
	ClientID string `json:"-"`
	Code     string `json:"referral_code"`
	IP       string `json:"-"`
}

// ApplyReferralCode binds a client to the owner of code. It can succeed once per
// client and never after the client's first confirmed deposit.
func (s *Service) ApplyReferralCode(ctx context.Context, req ApplyRequest) (Record, error) {
	code := NormalizeCode(req.Code)
	if strings.TrimSpace(req.ClientID) == "" || code == "" {
		return Record{}, ErrInvalidArgument
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return Record{}, err
	}
	if !cfg.ReferralSystemEnabled {
		return Record{}, ErrReferralDisabled
	}

	var out Record
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		applicant, err := s.getClient(ctx, req.ClientID)
		if err != nil {
			return err
		}
		if err := checkApplicable(applicant); err != nil {
			return err
		}
		referrer, err := s.repo.GetClientByCode(ctx, code)
		if errors.Is(err, apperr.ErrNotFound) {
			return ErrUnknownCode
		}
		if err != nil {
			return err
		}
		if referrer.ID == applicant.ID {
			return ErrSelfReferral
		}

		applicant, referrer, err = s.lockPair(ctx, applicant.ID, referrer.ID)
		if err != nil {
			return err
		}
		if err := checkApplicable(applicant); err != nil {
			return err
		}
		// A -> B -> A
		if referrer.ReferredByCode != nil {
			upstream, err := s.repo.GetClientByCode(ctx, *referrer.ReferredByCode)
			switch {
			case err == nil && upstream.ID == applicant.ID:
				return ErrCircularReferral
			case err != nil && !errors.Is(err, apperr.ErrNotFound):
				return err
			}
		}

		now := s.clock().UTC()
		applicant.ReferredByCode = &code
		if req.IP != "" {
			applicant.LastIP = req.IP
		}
		applicant.UpdatedAt = now
		if err := s.repo.UpdateClient(ctx, applicant); err != nil {
			return err
		}

		rec := Record{
			ID:            uuid.NewString(),
			ReferrerID:    referrer.ID,
			ReferredID:    applicant.ID,
			Code:          code,
			Status:        StatusPending,
			TotalDeposits: decimal.Zero,
			ReferredIP:    req.IP,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.InsertReferral(ctx, rec); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return ErrAlreadyReferred
			}
			return err
		}

		referrer.ReferralCount++
		referrer.UpdatedAt = now
		if err := s.repo.UpdateClient(ctx, referrer); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	logger.From(ctx).Info("referral code applied", "client_id", out.ReferredID, "referrer_client_id", out.ReferrerID)
	return out, nil
}

func checkApplicable(c Client) error {
	if c.ReferralLocked {
		return ErrReferralLocked
	}
	if c.ReferredByCode != nil {
		return ErrAlreadyReferred
	}
	return nil
}

// OnDepositConfirmed runs the deposit protocol for one confirmed deposit. It joins
// the caller's transaction (order confirmation) when ctx carries one.
//
// The deposit itself is never blocked: fraud only stops the referral from
// becoming valid and paying out.
func (s *Service) OnDepositConfirmed(ctx context.Context, clientID string, amount decimal.Decimal) (DepositOutcome, error) {
	if strings.TrimSpace(clientID) == "" || !amount.IsPositive() {
		return DepositOutcome{}, ErrInvalidArgument
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return DepositOutcome{}, err
	}

	out := DepositOutcome{ClientID: clientID}
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		seen, err := s.getClient(ctx, clientID)
		if err != nil {
			return err
		}
		referrer, err := s.resolveReferrer(ctx, cfg, seen)
		if err != nil {
			return err
		}

		var locked, ref Client
		if referrer == nil {
			if locked, err = s.repo.LockClient(ctx, clientID); err != nil {
				return s.notFound(err)
			}
		} else if locked, ref, err = s.lockPair(ctx, clientID, referrer.ID); err != nil {
			return err
		}

		// A code applied after the unlocked read shows up only in the locked row.
		if !sameCode(seen.ReferredByCode, locked.ReferredByCode) {
			if referrer, err = s.resolveReferrer(ctx, cfg, locked); err != nil {
				return err
			}
			if referrer != nil {
				if ref, err = s.repo.LockClient(ctx, referrer.ID); err != nil {
					return s.notFound(err)
				}
			}
		}

		if err := s.lockReferral(ctx, locked, &out); err != nil {
			return err
		}
		if referrer == nil {
			return nil
		}
		return s.creditReferrer(ctx, cfg, locked, ref, amount, &out)
	})
	if err != nil {
		return DepositOutcome{}, err
	}
	return out, nil
}

// resolveReferrer returns the owner of c's referred_by_code, or nil when there is
// nothing to credit.
func (s *Service) resolveReferrer(ctx context.Context, cfg settings.Settings, c Client) (*Client, error) {
	if !cfg.ReferralSystemEnabled || c.ReferredByCode == nil {
		return nil, nil
	}
	r, err := s.repo.GetClientByCode(ctx, *c.ReferredByCode)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.ID == c.ID {
		return nil, nil
	}
	return &r, nil
}

func sameCode(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Service) lockReferral(ctx context.Context, c Client, out *DepositOutcome) error {
	if c.ReferralLocked {
		return nil
	}
	c.ReferralLocked = true
	c.UpdatedAt = s.clock().UTC()
	if err := s.repo.UpdateClient(ctx, c); err != nil {
		return err
	}
	out.Locked = true
	return nil
}

func (s *Service) creditReferrer(ctx context.Context, cfg settings.Settings, referred, referrer Client, amount decimal.Decimal, out *DepositOutcome) error {
	rec, err := s.repo.GetReferralByReferred(ctx, referred.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.ReferrerID != referrer.ID {
		logger.From(ctx).Warn("referral record does not match referred_by_code",
			"client_id", referred.ID, "record_referrer", rec.ReferrerID, "code_owner", referrer.ID)
		return nil
	}
	out.ReferrerID = referrer.ID

	now := s.clock().UTC()
	referrerChanged := false

	if rec.Status == StatusPending {
		fr := CheckFraud(cfg.AntiFraud, referrer, referred, now)
		if fr.ShouldReject || (fr.IsSuspicious && cfg.AntiFraud.AutoFlagSuspicious) {
			rec.IsSuspicious = true
			rec.FraudFlags = fr.Flags
			out.Flags = fr.Flags
		}
		if fr.ShouldReject {
			rec.Status = StatusFraud
			out.Fraud = true
			logger.From(ctx).Warn("referral rejected as fraud",
				"client_id", referred.ID, "referrer_client_id", referrer.ID, "flags", strings.Join(fr.Flags, ","))
		} else {
			rec.Status = StatusValid
			rec.ValidatedAt = &now
			referrer.ValidReferralCount++
			referrerChanged = true
			out.BecameValid = true

			if cfg.BonusSystemEnabled {
				tx, err := s.payMilestone(ctx, cfg, &referrer, now)
				if err != nil {
					return err
				}
				out.Milestone = tx
			}
		}
	}

	rec.TotalDeposits = rec.TotalDeposits.Add(amount)
	rec.UpdatedAt = now
	if err := s.repo.UpdateReferral(ctx, rec); err != nil {
		return err
	}
	if referrerChanged {
		referrer.UpdatedAt = now
		if err := s.repo.UpdateClient(ctx, referrer); err != nil {
			return err
		}
	}

	// only a fraud verdict stops commission; suspected records still earn
	if rec.Status == StatusFraud {
		return nil
	}
	tx, err := s.payCommission(ctx, cfg, referrer, referred, amount, now)
	if err != nil {
		return err
	}
	out.Commission = tx
	return nil
}

// payCommission credits the referrer's real wallet with the tier percentage of amount.
func (s *Service) payCommission(ctx context.Context, cfg settings.Settings, referrer, referred Client, amount decimal.Decimal, now time.Time) (*ledger.Transaction, error) {
	idx := TierFor(cfg.Tiers, referrer.ValidReferralCount)
	if idx < 0 {
		return nil, nil
	}
	pct := cfg.Tiers[idx].CommissionPct
	earned := Commission(amount, pct)
	if !earned.IsPositive() {
		return nil, nil
	}

	meta, err := json.Marshal(map[string]string{
		"referred_client_id": referred.ID,
		"deposit_amount":     amount.String(),
		"percentage":         pct.String(),
	})
	if err != nil {
		return nil, err
	}
	tx := ledger.Transaction{
		ID:         uuid.NewString(),
		ClientID:   referrer.ID,
		Type:       ledger.TypeReferralEarn,
		Amount:     earned,
		WalletType: ledger.WalletReal,
		Status:     ledger.StatusConfirmed,
		Source:     ledger.SourceReferralCommission,
		Reason:     fmt.Sprintf("Referral earnings from %s deposit", displayName(referred)),
		Metadata:   string(meta),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// payMilestone credits whatever milestone bonus is still owed at the referrer's
// current count. What was already paid is read back from the ledger, so editing
// the milestone table never pays the same amount twice.
func (s *Service) payMilestone(ctx context.Context, cfg settings.Settings, referrer *Client, now time.Time) (*ledger.Transaction, error) {
	paid, err := s.repo.SumTransactions(ctx, referrer.ID, ledger.TypeBonusEarn, ledger.SourceReferralMilestone)
	if err != nil {
		return nil, err
	}
	due := UnclaimedBonus(cfg.Milestones, referrer.ValidReferralCount, paid)
	if !due.IsPositive() {
		return nil, nil
	}
	tx := ledger.Transaction{
		ID:         uuid.NewString(),
		ClientID:   referrer.ID,
		Type:       ledger.TypeBonusEarn,
		Amount:     due,
		WalletType: ledger.WalletBonus,
		Status:     ledger.StatusConfirmed,
		Source:     ledger.SourceReferralMilestone,
		Reason:     fmt.Sprintf("Referral milestone bonus (%d valid referrals)", referrer.ValidReferralCount),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}
	referrer.BonusClaims++
	logger.From(ctx).Info("milestone bonus credited",
		"client_id", referrer.ID, "amount", due.StringFixed(2), "valid_referrals", referrer.ValidReferralCount)
	return &tx, nil
}

// UpdateReferralStatus is the admin correction path. Moving a record into valid
// counts it for the referrer (and pays any milestone now reached); moving it out
// of valid is the only way the valid count goes down.
func (s *Service) UpdateReferralStatus(ctx context.Context, referredID string, status Status) (Record, error) {
	if strings.TrimSpace(referredID) == "" || !status.Valid() {
		return Record{}, ErrInvalidArgument
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return Record{}, err
	}

	var out Record
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		rec, err := s.repo.GetReferralByReferred(ctx, referredID)
		if errors.Is(err, apperr.ErrNotFound) {
			return ErrReferralNotFound
		}
		if err != nil {
			return err
		}
		referrer, _, err := s.lockPair(ctx, rec.ReferrerID, rec.ReferredID)
		if err != nil {
			return err
		}
		// re-read under the referred client's lock
		if rec, err = s.repo.GetReferralByReferred(ctx, referredID); err != nil {
			return err
		}
		if rec.Status == status {
			out = rec
			return nil
		}

		now := s.clock().UTC()
		switch {
		case status == StatusValid:
			referrer.ValidReferralCount++
			if rec.ValidatedAt == nil {
				rec.ValidatedAt = &now
			}
			if cfg.BonusSystemEnabled {
				if _, err := s.payMilestone(ctx, cfg, &referrer, now); err != nil {
					return err
				}
			}
		case rec.Status == StatusValid && referrer.ValidReferralCount > 0:
			referrer.ValidReferralCount--
		}

		rec.Status = status
		rec.UpdatedAt = now
		if err := s.repo.UpdateReferral(ctx, rec); err != nil {
			return err
		}
		referrer.UpdatedAt = now
		if err := s.repo.UpdateClient(ctx, referrer); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// RecordIP remembers the last address a client was seen from (anti-fraud input).
func (s *Service) RecordIP(ctx context.Context, clientID, ip string) error {
	if clientID == "" || ip == "" {
		return nil
	}
	return s.notFound(s.repo.SetClientIP(ctx, clientID, ip))
}

func (s *Service) GetClient(ctx context.Context, clientID string) (Client, error) {
	return s.getClient(ctx, clientID)
}

func (s *Service) getClient(ctx context.Context, clientID string) (Client, error) {
	c, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return Client{}, s.notFound(err)
	}
	return c, nil
}

// lockPair locks both clients in ascending client_id order and returns them in
// argument order.
func (s *Service) lockPair(ctx context.Context, a, b string) (Client, Client, error) {
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	cFirst, err := s.repo.LockClient(ctx, first)
	if err != nil {
		return Client{}, Client{}, s.notFound(err)
	}
	cSecond, err := s.repo.LockClient(ctx, second)
	if err != nil {
		return Client{}, Client{}, s.notFound(err)
	}
	if first == a {
		return cFirst, cSecond, nil
	}
	return cSecond, cFirst, nil
}

func (s *Service) notFound(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return ErrClientNotFound
	}
	return err
}

func displayName(c Client) string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return "client"
}
