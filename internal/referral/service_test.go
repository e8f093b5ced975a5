package referral

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gamecredit-platform/internal/apperr"
	"gamecredit-platform/internal/ledger"
	"gamecredit-platform/internal/settings"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc  *Service
	repo *MemoryRepo
}

func newFixture(t *testing.T, mutate func(*settings.Settings)) fixture {
	t.Helper()
	cfg := settings.Defaults()
	cfg.Tiers = []settings.Tier{
		{Number: 0, Name: "Starter", MinReferrals: 0, CommissionPct: dec("5")},
		{Number: 1, Name: "Bronze", MinReferrals: 5, CommissionPct: dec("6")},
		{Number: 2, Name: "Silver", MinReferrals: 10, CommissionPct: dec("7")},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	repo := NewMemoryRepo()
	svc := NewService(repo, settings.NewCache(settings.Static(cfg), time.Minute))
	svc.clock = func() time.Time { return testNow }

	var n int
	svc.newCode = func() (string, error) {
		n++
		return fmt.Sprintf("CODE%04d", n), nil
	}
	return fixture{svc: svc, repo: repo}
}

// seed adds an established client (older than every fraud window).
func (f fixture) seed(id, code string, valid int) Client {
	c := Client{
		ID:                 id,
		DisplayName:        id,
		ReferralCode:       code,
		ValidReferralCount: valid,
		LastIP:             "10.0.0." + id,
		CreatedAt:          testNow.Add(-72 * time.Hour),
	}
	f.repo.Put(c)
	return c
}

func (f fixture) client(t *testing.T, id string) Client {
	t.Helper()
	c, err := f.repo.GetClient(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return c
}

func rowsOf(rows []ledger.Transaction, typ ledger.Type) []ledger.Transaction {
	var out []ledger.Transaction
	for _, r := range rows {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func TestApplyReferralCode(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed("a", "AAAA1111", 0)
	f.seed("b", "BBBB2222", 0)

	rec, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "b", Code: " aaaa1111 ", IP: "192.0.2.9"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rec.Status != StatusPending || rec.ReferrerID != "a" || rec.ReferredID != "b" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	b := f.client(t, "b")
	if b.ReferredByCode == nil || *b.ReferredByCode != "AAAA1111" || b.LastIP != "192.0.2.9" {
		t.Fatalf("unexpected applicant: %+v", b)
	}
	if f.client(t, "a").ReferralCount != 1 {
		t.Fatalf("expected referrer referral_count 1")
	}
}

func TestApplyReferralCode_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("own code", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seed("a", "AAAA1111", 0)
		_, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "a", Code: "AAAA1111"})
		if !errors.Is(err, ErrSelfReferral) || !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("expected self referral conflict, got %v", err)
		}
	})

	t.Run("circular", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seed("a", "AAAA1111", 0)
		f.seed("b", "BBBB2222", 0)
		if _, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "b", Code: "AAAA1111"}); err != nil {
			t.Fatalf("apply: %v", err)
		}
		_, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "a", Code: "BBBB2222"})
		if !errors.Is(err, ErrCircularReferral) {
			t.Fatalf("expected circular referral, got %v", err)
		}
		if f.client(t, "b").ReferralCount != 0 {
			t.Fatalf("rejected application must not move counters")
		}
	})

	t.Run("locked", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seed("a", "AAAA1111", 0)
		b := f.seed("b", "BBBB2222", 0)
		b.ReferralLocked = true
		f.repo.Put(b)
		_, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "b", Code: "AAAA1111"})
		if !errors.Is(err, ErrReferralLocked) {
			t.Fatalf("expected locked, got %v", err)
		}
	})

	t.Run("already referred", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seed("a", "AAAA1111", 0)
		f.seed("b", "BBBB2222", 0)
		f.seed("c", "CCCC3333", 0)
		if _, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "c", Code: "AAAA1111"}); err != nil {
			t.Fatalf("apply: %v", err)
		}
		_, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "c", Code: "BBBB2222"})
		if !errors.Is(err, ErrAlreadyReferred) {
			t.Fatalf("expected already referred, got %v", err)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seed("a", "AAAA1111", 0)
		_, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "a", Code: "NOPE0000"})
		if !errors.Is(err, ErrUnknownCode) || !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("expected unknown code, got %v", err)
		}
	})

	t.Run("system disabled", func(t *testing.T) {
		f := newFixture(t, func(s *settings.Settings) { s.ReferralSystemEnabled = false })
		f.seed("a", "AAAA1111", 0)
		f.seed("b", "BBBB2222", 0)
		_, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "b", Code: "AAAA1111"})
		if !errors.Is(err, ErrReferralDisabled) {
			t.Fatalf("expected disabled, got %v", err)
		}
	})
}

func TestOnDepositConfirmed_MilestoneCrossing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed("r", "RRRR0000", 4)
	f.seed("x1", "XXXX0001", 0)
	f.seed("x2", "XXXX0002", 0)

	for _, id := range []string{"x1", "x2"} {
		if _, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: id, Code: "RRRR0000"}); err != nil {
			t.Fatalf("apply %s: %v", id, err)
		}
	}

	// 4 -> 5 crosses the first milestone
	out, err := f.svc.OnDepositConfirmed(ctx, "x1", dec("50"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !out.Locked || !out.BecameValid || out.Milestone == nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	bonus := rowsOf(f.repo.Rows(), ledger.TypeBonusEarn)
	if len(bonus) != 1 || !bonus[0].Amount.Equal(dec("5")) || bonus[0].WalletType != ledger.WalletBonus {
		t.Fatalf("expected exactly one 5.00 BONUS_EARN, got %+v", bonus)
	}
	r := f.client(t, "r")
	if r.ValidReferralCount != 5 || r.BonusClaims != 1 {
		t.Fatalf("expected count 5 claims 1, got %d %d", r.ValidReferralCount, r.BonusClaims)
	}

	// 5 -> 6 has no milestone
	out, err = f.svc.OnDepositConfirmed(ctx, "x2", dec("50"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if out.Milestone != nil {
		t.Fatalf("expected no milestone at 6, got %+v", out.Milestone)
	}
	if n := len(rowsOf(f.repo.Rows(), ledger.TypeBonusEarn)); n != 1 {
		t.Fatalf("expected still one BONUS_EARN, got %d", n)
	}
	r = f.client(t, "r")
	if r.ValidReferralCount != 6 || r.BonusClaims != 1 {
		t.Fatalf("expected count 6 claims 1, got %d %d", r.ValidReferralCount, r.BonusClaims)
	}
}

func TestOnDepositConfirmed_TierCommission(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed("r", "RRRR0000", 8)
	f.seed("x", "XXXX0001", 0)
	if _, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "x", Code: "RRRR0000"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// first deposit validates the referral: 8 -> 9
	if _, err := f.svc.OnDepositConfirmed(ctx, "x", dec("10")); err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	if f.client(t, "r").ValidReferralCount != 9 {
		t.Fatalf("expected 9 valid referrals")
	}

	out, err := f.svc.OnDepositConfirmed(ctx, "x", dec("100"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if out.BecameValid || out.Locked {
		t.Fatalf("second deposit must not re-validate or re-lock: %+v", out)
	}
	if out.Commission == nil || out.Commission.Amount.StringFixed(2) != "6.00" {
		t.Fatalf("expected 6.00 commission, got %+v", out.Commission)
	}
	if out.Commission.ClientID != "r" || out.Commission.Type != ledger.TypeReferralEarn || out.Commission.Status != ledger.StatusConfirmed {
		t.Fatalf("unexpected commission row: %+v", out.Commission)
	}
	if f.client(t, "r").ValidReferralCount != 9 {
		t.Fatalf("valid count must only move once per referred client")
	}
	rec, _ := f.repo.GetReferralByReferred(ctx, "x")
	if !rec.TotalDeposits.Equal(dec("110")) {
		t.Fatalf("expected total deposits 110, got %s", rec.TotalDeposits)
	}
}

func TestOnDepositConfirmed_TierAtTenthReferral(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed("r", "RRRR0000", 9)
	f.seed("x", "XXXX0001", 0)
	if _, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "x", Code: "RRRR0000"}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// 9 -> 10 unlocks Silver, and the deposit that unlocks it is paid at Silver
	out, err := f.svc.OnDepositConfirmed(ctx, "x", dec("100"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !out.BecameValid || f.client(t, "r").ValidReferralCount != 10 {
		t.Fatalf("expected referral to become the 10th valid one: %+v", out)
	}
	if out.Commission == nil || out.Commission.Amount.StringFixed(2) != "7.00" {
		t.Fatalf("expected 7.00 commission at Silver, got %+v", out.Commission)
	}
}

// staleReadRepo answers the first unlocked read of a client with an older copy,
// as if a referral code was applied between that read and the row lock.
type staleReadRepo struct {
	*MemoryRepo
	stale map[string]Client
}

func (r *staleReadRepo) GetClient(ctx context.Context, clientID string) (Client, error) {
	if c, ok := r.stale[clientID]; ok {
		delete(r.stale, clientID)
		return c, nil
	}
	return r.MemoryRepo.GetClient(ctx, clientID)
}

func TestOnDepositConfirmed_CodeAppliedAfterUnlockedRead(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed("r", "RRRR0000", 0)
	before := f.seed("x", "XXXX0001", 0)
	if _, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "x", Code: "RRRR0000"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	f.svc.repo = &staleReadRepo{MemoryRepo: f.repo, stale: map[string]Client{"x": before}}

	out, err := f.svc.OnDepositConfirmed(ctx, "x", dec("100"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !out.Locked || !out.BecameValid || out.ReferrerID != "r" || out.Commission == nil {
		t.Fatalf("locked row must decide the referral path: %+v", out)
	}
	rec, _ := f.repo.GetReferralByReferred(ctx, "x")
	if rec.Status != StatusValid || !rec.TotalDeposits.Equal(dec("100")) {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if f.client(t, "r").ValidReferralCount != 1 {
		t.Fatalf("referrer must count the referral")
	}
	if n := len(rowsOf(f.repo.Rows(), ledger.TypeReferralEarn)); n != 1 {
		t.Fatalf("expected one REFERRAL_EARN, got %d", n)
	}
}

func TestOnDepositConfirmed_SuspectedStillEarnsCommission(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed("r", "RRRR0000", 0)
	f.seed("x", "XXXX0001", 0)
	if _, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "x", Code: "RRRR0000"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := f.svc.OnDepositConfirmed(ctx, "x", dec("10")); err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	if _, err := f.svc.UpdateReferralStatus(ctx, "x", StatusSuspected); err != nil {
		t.Fatalf("mark suspected: %v", err)
	}

	out, err := f.svc.OnDepositConfirmed(ctx, "x", dec("100"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if out.Commission == nil || out.Commission.Amount.StringFixed(2) != "5.00" {
		t.Fatalf("suspected referral keeps earning, got %+v", out.Commission)
	}
	if f.client(t, "r").ValidReferralCount != 0 {
		t.Fatalf("suspected record must not count as valid")
	}

	if _, err := f.svc.UpdateReferralStatus(ctx, "x", StatusFraud); err != nil {
		t.Fatalf("mark fraud: %v", err)
	}
	out, err = f.svc.OnDepositConfirmed(ctx, "x", dec("100"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if out.Commission != nil {
		t.Fatalf("fraud record must not earn, got %+v", out.Commission)
	}
}

func TestOnDepositConfirmed_AutoRejectFraud(t *testing.T) {
	f := newFixture(t, func(s *settings.Settings) { s.AntiFraud.AutoRejectFraud = true })
	ctx := context.Background()
	f.seed("r", "RRRR0000", 4)
	x := f.seed("x", "XXXX0001", 0)
	x.LastIP = f.client(t, "r").LastIP
	f.repo.Put(x)

	if _, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "x", Code: "RRRR0000"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	out, err := f.svc.OnDepositConfirmed(ctx, "x", dec("50"))
	if err != nil {
		t.Fatalf("deposit must not fail on fraud: %v", err)
	}
	if !out.Fraud || out.BecameValid || !out.Locked {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if _, err := f.svc.OnDepositConfirmed(ctx, "x", dec("50")); err != nil {
		t.Fatalf("second deposit: %v", err)
	}

	if rows := f.repo.Rows(); len(rows) != 0 {
		t.Fatalf("fraud referral must pay nothing, got %+v", rows)
	}
	r := f.client(t, "r")
	if r.ValidReferralCount != 4 || r.BonusClaims != 0 {
		t.Fatalf("fraud must not move counters, got %+v", r)
	}
	rec, _ := f.repo.GetReferralByReferred(ctx, "x")
	if rec.Status != StatusFraud || !rec.IsSuspicious || len(rec.FraudFlags) == 0 || !rec.TotalDeposits.Equal(dec("100")) {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestOnDepositConfirmed_SuspiciousButNotRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed("r", "RRRR0000", 0)
	x := f.seed("x", "XXXX0001", 0)
	x.CreatedAt = testNow.Add(-10 * time.Minute)
	f.repo.Put(x)

	if _, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "x", Code: "RRRR0000"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	out, err := f.svc.OnDepositConfirmed(ctx, "x", dec("20"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !out.BecameValid || out.Commission == nil {
		t.Fatalf("suspicious referral is still valid and paid: %+v", out)
	}
	rec, _ := f.repo.GetReferralByReferred(ctx, "x")
	if rec.Status != StatusValid || !rec.IsSuspicious || len(rec.FraudFlags) != 1 || rec.FraudFlags[0] != FlagAccountTooNew {
		t.Fatalf("expected flagged valid record, got %+v", rec)
	}
}

func TestOnDepositConfirmed_Toggles(t *testing.T) {
	ctx := context.Background()

	t.Run("referral system off only locks", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seed("r", "RRRR0000", 4)
		f.seed("x", "XXXX0001", 0)
		if _, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "x", Code: "RRRR0000"}); err != nil {
			t.Fatalf("apply: %v", err)
		}
		off := settings.Defaults()
		off.ReferralSystemEnabled = false
		f.svc.settings = settings.NewCache(settings.Static(off), time.Minute)

		out, err := f.svc.OnDepositConfirmed(ctx, "x", dec("50"))
		if err != nil {
			t.Fatalf("deposit: %v", err)
		}
		if !out.Locked || out.BecameValid || len(f.repo.Rows()) != 0 {
			t.Fatalf("expected lock only, got %+v", out)
		}
		if !f.client(t, "x").ReferralLocked {
			t.Fatalf("client must be locked")
		}
	})

	t.Run("bonus system off skips milestones", func(t *testing.T) {
		f := newFixture(t, func(s *settings.Settings) { s.BonusSystemEnabled = false })
		f.seed("r", "RRRR0000", 4)
		f.seed("x", "XXXX0001", 0)
		if _, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "x", Code: "RRRR0000"}); err != nil {
			t.Fatalf("apply: %v", err)
		}
		out, err := f.svc.OnDepositConfirmed(ctx, "x", dec("50"))
		if err != nil {
			t.Fatalf("deposit: %v", err)
		}
		if out.Milestone != nil || out.Commission == nil {
			t.Fatalf("expected commission without milestone, got %+v", out)
		}
		if f.client(t, "r").ValidReferralCount != 5 {
			t.Fatalf("counter still moves with bonuses off")
		}
	})
}

func TestOnDepositConfirmed_NoReferrer(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed("x", "XXXX0001", 0)

	out, err := f.svc.OnDepositConfirmed(ctx, "x", dec("5"))
	if err != nil || !out.Locked {
		t.Fatalf("expected lock, got %+v %v", out, err)
	}
	out, err = f.svc.OnDepositConfirmed(ctx, "x", dec("5"))
	if err != nil || out.Locked {
		t.Fatalf("lock is one-way and reported once, got %+v %v", out, err)
	}
	if _, err := f.svc.OnDepositConfirmed(ctx, "ghost", dec("5")); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected client not found, got %v", err)
	}
}

func TestUpdateReferralStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed("r", "RRRR0000", 4)
	f.seed("x", "XXXX0001", 0)
	if _, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "x", Code: "RRRR0000"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := f.svc.OnDepositConfirmed(ctx, "x", dec("50")); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	rec, err := f.svc.UpdateReferralStatus(ctx, "x", StatusFraud)
	if err != nil || rec.Status != StatusFraud {
		t.Fatalf("update: %+v %v", rec, err)
	}
	if f.client(t, "r").ValidReferralCount != 4 {
		t.Fatalf("leaving valid must decrement")
	}

	if _, err := f.svc.UpdateReferralStatus(ctx, "x", StatusValid); err != nil {
		t.Fatalf("update: %v", err)
	}
	r := f.client(t, "r")
	if r.ValidReferralCount != 5 {
		t.Fatalf("entering valid must increment, got %d", r.ValidReferralCount)
	}
	if n := len(rowsOf(f.repo.Rows(), ledger.TypeBonusEarn)); n != 1 {
		t.Fatalf("milestone already paid must not be paid again, got %d rows", n)
	}

	if _, err := f.svc.UpdateReferralStatus(ctx, "nobody", StatusValid); !errors.Is(err, ErrReferralNotFound) {
		t.Fatalf("expected referral not found, got %v", err)
	}
	if _, err := f.svc.UpdateReferralStatus(ctx, "x", Status("bogus")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestRegisterClient(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed("r", "CODE0001", 0) // first generated code collides

	c, err := f.svc.RegisterClient(ctx, RegisterRequest{ClientID: "n", DisplayName: "New", ReferralCode: "code0001", IP: "198.51.100.4"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if c.ReferralCode != "CODE0002" {
		t.Fatalf("expected collision retry, got %s", c.ReferralCode)
	}
	if c.ReferredByCode == nil || *c.ReferredByCode != "CODE0001" || c.SignupIP != "198.51.100.4" {
		t.Fatalf("unexpected client: %+v", c)
	}

	if _, err := f.svc.RegisterClient(ctx, RegisterRequest{ClientID: "n", DisplayName: "Again"}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}
	if _, err := f.svc.RegisterClient(ctx, RegisterRequest{DisplayName: " "}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	// a bad code at signup rolls the whole registration back
	if _, err := f.svc.RegisterClient(ctx, RegisterRequest{ClientID: "m", DisplayName: "M", ReferralCode: "ZZZZ9999"}); !errors.Is(err, ErrUnknownCode) {
		t.Fatalf("expected unknown code, got %v", err)
	}
	if _, err := f.repo.GetClient(ctx, "m"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected rollback, got %v", err)
	}
}

func TestGetReferralSummary(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed("r", "RRRR0000", 6)
	f.seed("x", "XXXX0001", 0)
	if _, err := f.svc.ApplyReferralCode(ctx, ApplyRequest{ClientID: "x", Code: "RRRR0000"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := f.svc.OnDepositConfirmed(ctx, "x", dec("100")); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	sum, err := f.svc.GetReferralSummary(ctx, "r")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Tier.Current.Name != "Bronze" || sum.Tier.Next == nil || sum.Tier.UntilNext != 3 {
		t.Fatalf("unexpected tier: %+v", sum.Tier)
	}
	// (7-5)/(10-5)
	if !sum.Tier.ProgressToNext.Equal(dec("40")) {
		t.Fatalf("expected 40%% progress, got %s", sum.Tier.ProgressToNext)
	}
	if !sum.ReferralEarnings.Equal(dec("6")) {
		t.Fatalf("expected 6.00 earnings, got %s", sum.ReferralEarnings)
	}
	// the 5-referral milestone owed since seeding is paid when x validates
	if !sum.Milestones.Unclaimed.IsZero() {
		t.Fatalf("milestone at 5 was paid on validation, got unclaimed %s", sum.Milestones.Unclaimed)
	}
	if sum.Milestones.Next == nil || sum.Milestones.Next.ReferralsRequired != 10 || sum.Milestones.UntilNext != 3 {
		t.Fatalf("unexpected next milestone: %+v", sum.Milestones)
	}
	if len(sum.Referrals) != 1 || sum.Referrals[0].Status != StatusValid {
		t.Fatalf("unexpected referrals: %+v", sum.Referrals)
	}
}
