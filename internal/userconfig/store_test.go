package userconfig

import (
	"errors"
	"testing"

	"CastVault/internal/principal"
)

var user = principal.MustParse("0x00000000000000000000000000000000000000aa")

func TestSetSocialAmountsValidatesAgainstLimit(t *testing.T) {
	s := NewStore()

	// No limit set: any nonzero amount exceeds it.
	if err := s.SetSocialAmounts(user, 1, 0); !errors.Is(err, ErrLikeExceedsLimit) {
		t.Fatalf("got %v, want ErrLikeExceedsLimit", err)
	}

	s.SetBuyLimit(user, 100)

	if err := s.SetSocialAmounts(user, 50, 101); !errors.Is(err, ErrRecastExceedsLimit) {
		t.Fatalf("got %v, want ErrRecastExceedsLimit", err)
	}
	// Atomic rejection: the valid like amount must not have stuck.
	if cfg := s.Get(user); cfg.LikeAmount != 0 {
		t.Errorf("like amount = %d after rejected pair, want 0", cfg.LikeAmount)
	}

	if err := s.SetSocialAmounts(user, 50, 75); err != nil {
		t.Fatalf("set amounts: %v", err)
	}
	cfg := s.Get(user)
	if cfg.LikeAmount != 50 || cfg.RecastAmount != 75 {
		t.Errorf("amounts = %d/%d, want 50/75", cfg.LikeAmount, cfg.RecastAmount)
	}
}

func TestLoweringLimitDoesNotClampAmounts(t *testing.T) {
	s := NewStore()
	s.SetBuyLimit(user, 100)
	if err := s.SetSocialAmounts(user, 80, 90); err != nil {
		t.Fatalf("set amounts: %v", err)
	}

	s.SetBuyLimit(user, 10)

	// Stored amounts survive the lowered limit; only new writes validate.
	cfg := s.Get(user)
	if cfg.LikeAmount != 80 || cfg.RecastAmount != 90 {
		t.Errorf("amounts = %d/%d after limit cut, want 80/90", cfg.LikeAmount, cfg.RecastAmount)
	}
	if err := s.UpdateLike(user, 11); !errors.Is(err, ErrLikeExceedsLimit) {
		t.Fatalf("got %v, want ErrLikeExceedsLimit", err)
	}
}

func TestRestoreSocialAmountsSkipsLimitCheck(t *testing.T) {
	s := NewStore()
	s.SetBuyLimit(user, 10)

	// Replay writes back whatever the log recorded, even above the limit.
	s.RestoreSocialAmounts(user, 600, 400)

	cfg := s.Get(user)
	if cfg.LikeAmount != 600 || cfg.RecastAmount != 400 {
		t.Errorf("amounts = %d/%d, want 600/400", cfg.LikeAmount, cfg.RecastAmount)
	}
	if cfg.BuyLimit != 10 {
		t.Errorf("limit = %d, want 10", cfg.BuyLimit)
	}
}

func TestSetPreferencesValidatesAgainstNewLimit(t *testing.T) {
	s := NewStore()
	s.SetBuyLimit(user, 10)

	// Amounts above the old limit but within the new one are accepted.
	if err := s.SetPreferences(user, 200, 150, 175); err != nil {
		t.Fatalf("set preferences: %v", err)
	}
	cfg := s.Get(user)
	if cfg.BuyLimit != 200 || cfg.LikeAmount != 150 || cfg.RecastAmount != 175 {
		t.Errorf("config = %+v", cfg)
	}

	// A failing pair rolls the whole write back, limit included.
	if err := s.SetPreferences(user, 100, 150, 50); !errors.Is(err, ErrLikeExceedsLimit) {
		t.Fatalf("got %v, want ErrLikeExceedsLimit", err)
	}
	cfg = s.Get(user)
	if cfg.BuyLimit != 200 || cfg.LikeAmount != 150 || cfg.RecastAmount != 175 {
		t.Errorf("config mutated by rejected preferences: %+v", cfg)
	}
}

func TestDisableAndEnableSocial(t *testing.T) {
	s := NewStore()
	s.SetBuyLimit(user, 100)
	if err := s.SetSocialAmounts(user, 40, 60); err != nil {
		t.Fatalf("set amounts: %v", err)
	}

	s.DisableSocial(user)
	cfg := s.Get(user)
	if cfg.LikeAmount != 0 || cfg.RecastAmount != 0 {
		t.Errorf("amounts = %d/%d after disable, want 0/0", cfg.LikeAmount, cfg.RecastAmount)
	}
	if cfg.BuyLimit != 100 {
		t.Errorf("disable changed buy limit to %d", cfg.BuyLimit)
	}

	if err := s.EnableSocial(user, 40, 60); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if cfg := s.Get(user); cfg.LikeAmount != 40 {
		t.Errorf("like amount = %d after enable, want 40", cfg.LikeAmount)
	}
}

func TestAmountFor(t *testing.T) {
	s := NewStore()
	s.SetBuyLimit(user, 100)
	if err := s.SetSocialAmounts(user, 40, 0); err != nil {
		t.Fatalf("set amounts: %v", err)
	}

	if got, err := s.AmountFor(user, InteractionLike); err != nil || got != 40 {
		t.Errorf("like amount = %d, %v; want 40, nil", got, err)
	}
	if _, err := s.AmountFor(user, InteractionRecast); !errors.Is(err, ErrInteractionAmountNotSet) {
		t.Errorf("got %v, want ErrInteractionAmountNotSet", err)
	}
	if _, err := s.AmountFor(user, Interaction(9)); !errors.Is(err, ErrInvalidInteractionKind) {
		t.Errorf("got %v, want ErrInvalidInteractionKind", err)
	}
}

func TestIsReady(t *testing.T) {
	s := NewStore()

	if s.IsReady(user, 1000) {
		t.Error("ready with no limit")
	}

	s.SetBuyLimit(user, 100)
	if s.IsReady(user, 1000) {
		t.Error("ready with no social amounts")
	}

	if err := s.SetSocialAmounts(user, 40, 0); err != nil {
		t.Fatalf("set amounts: %v", err)
	}
	if s.IsReady(user, 99) {
		t.Error("ready with allowance below limit")
	}
	if !s.IsReady(user, 100) {
		t.Error("not ready with limit, amount, and allowance in place")
	}
}
