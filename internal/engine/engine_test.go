package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"CastVault/internal/access"
	"CastVault/internal/command"
	"CastVault/internal/fee"
	"CastVault/internal/ledger"
	"CastVault/internal/observability"
	"CastVault/internal/principal"
	"CastVault/internal/record"
	"CastVault/internal/routing"
	"CastVault/internal/token"
	"CastVault/internal/userconfig"
	"CastVault/internal/venue"
)

const (
	settlement = ledger.AssetID("USDC")
	output     = ledger.AssetID("DEGEN")
)

var (
	owner     = principal.MustParse("0x0000000000000000000000000000000000000001")
	backend   = principal.MustParse("0x0000000000000000000000000000000000000002")
	user      = principal.MustParse("0x0000000000000000000000000000000000000003")
	feeRcpt   = principal.MustParse("0x0000000000000000000000000000000000000004")
	custodian = principal.MustParse("0x0000000000000000000000000000000000000005")
	stranger  = principal.MustParse("0x0000000000000000000000000000000000000006")

	testTime = time.Unix(1_700_000_000, 0).UTC()

	// Prometheus collectors register globally; one set for the whole package.
	testMetrics = observability.NewMetrics()
)

type scriptedVenue struct {
	name string
	swap func(ctx context.Context, in, out ledger.AssetID, amountIn, minOut int64) (int64, error)
}

func (v *scriptedVenue) Name() string { return v.name }

func (v *scriptedVenue) TrySwap(ctx context.Context, in, out ledger.AssetID, amountIn, minOut int64) (int64, error) {
	return v.swap(ctx, in, out, amountIn, minOut)
}

// quadOutput delivers 4 output units per input unit, always above minOut.
func quadOutput() *scriptedVenue {
	return &scriptedVenue{
		name: "stub",
		swap: func(_ context.Context, _, _ ledger.AssetID, amountIn, minOut int64) (int64, error) {
			out := amountIn * 4
			if out < minOut {
				return 0, routing.ErrBelowMinOut
			}
			return out, nil
		},
	}
}

func failingVenue(name string) *scriptedVenue {
	return &scriptedVenue{
		name: name,
		swap: func(_ context.Context, _, _ ledger.AssetID, _, _ int64) (int64, error) {
			return 0, errors.New("venue down")
		},
	}
}

type testEnv struct {
	engine     *Engine
	bank       *token.MemoryBank
	pools      *venue.PoolRegistry
	persist    chan Output
	projection chan Output
}

func newTestEnv(t *testing.T, venues ...routing.Venue) *testEnv {
	t.Helper()

	registry, err := access.NewRegistry(owner)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if err := registry.Authorize(owner, backend); err != nil {
		t.Fatalf("authorize backend: %v", err)
	}

	bank := token.NewMemoryBank(settlement, custodian)
	bank.Mint(user, settlement, 1_000_000)
	bank.Approve(user, 1_000_000)

	fees, err := fee.NewEngine(feeRcpt)
	if err != nil {
		t.Fatalf("fee engine: %v", err)
	}

	pools := venue.NewPoolRegistry()
	pooled := venue.NewPooledVenue(pools)

	if len(venues) == 0 {
		venues = []routing.Venue{quadOutput()}
	}
	router := routing.NewRouter(venues, zerolog.Nop(), testMetrics)

	persist := make(chan Output, 64)
	projection := make(chan Output, 64)

	eng := New(Config{
		Settlement:     settlement,
		Self:           custodian,
		Registry:       registry,
		Configs:        userconfig.NewStore(),
		Bank:           bank,
		Fees:           fees,
		Router:         router,
		Pooled:         pooled,
		LRUCapacity:    128,
		Metrics:        testMetrics,
		Logger:         zerolog.Nop(),
		PersistChan:    persist,
		ProjectionChan: projection,
	})

	return &testEnv{
		engine:     eng,
		bank:       bank,
		pools:      pools,
		persist:    persist,
		projection: projection,
	}
}

func (env *testEnv) exec(t *testing.T, cmd command.Command) {
	t.Helper()
	if err := env.engine.Execute(context.Background(), cmd); err != nil {
		t.Fatalf("execute %s: %v", cmd.Kind(), err)
	}
}

func (env *testEnv) drain(t *testing.T) []Output {
	t.Helper()
	var outs []Output
	for {
		select {
		case o := <-env.persist:
			outs = append(outs, o)
		default:
			return outs
		}
	}
}

func (env *testEnv) setLimit(t *testing.T, limit int64) {
	t.Helper()
	env.exec(t, &command.SetBuyLimit{CommandID: uuid.New(), Caller: user, User: user, Limit: limit, Timestamp: testTime})
	env.drain(t)
}

func directBuy(amount, minOut int64) *command.DirectBuy {
	return &command.DirectBuy{
		CommandID:   uuid.New(),
		Caller:      backend,
		User:        user,
		OutputAsset: output,
		UsdcAmount:  amount,
		MinOut:      minOut,
		Timestamp:   testTime,
	}
}

func balance(t *testing.T, bank *token.MemoryBank, p principal.Principal, asset ledger.AssetID) int64 {
	t.Helper()
	bal, err := bank.BalanceOf(context.Background(), p, asset)
	if err != nil {
		t.Fatalf("balance of %s: %v", asset, err)
	}
	return bal
}

func TestDirectBuyHappyPath(t *testing.T) {
	env := newTestEnv(t)
	env.setLimit(t, 10_000)

	env.exec(t, directBuy(1000, 1))
	outs := env.drain(t)

	if len(outs) != 2 {
		t.Fatalf("got %d outputs, want 2 (purchase + fee)", len(outs))
	}

	purchase, ok := outs[0].Envelope.Payload.(*record.PurchaseExecuted)
	if !ok {
		t.Fatalf("first payload is %T, want PurchaseExecuted", outs[0].Envelope.Payload)
	}
	// gross 1000, fee 10, net 990, output 990*4
	if purchase.Fee != 10 || purchase.InputAmount != 1000 || purchase.OutputAmount != 3960 {
		t.Errorf("purchase = %+v", purchase)
	}
	if purchase.Social {
		t.Error("direct buy marked social")
	}
	if outs[0].Batch == nil {
		t.Error("journal batch missing on first output")
	}
	if outs[1].Batch != nil {
		t.Error("journal batch duplicated on second output")
	}
	if _, ok := outs[1].Envelope.Payload.(*record.FeeCollected); !ok {
		t.Errorf("second payload is %T, want FeeCollected", outs[1].Envelope.Payload)
	}

	if got := env.engine.ClaimBalance(user, output); got != 3960 {
		t.Errorf("claims = %d, want 3960", got)
	}
	if got := balance(t, env.bank, user, settlement); got != 999_000 {
		t.Errorf("user wallet = %d, want 999000", got)
	}
	if got := balance(t, env.bank, feeRcpt, settlement); got != 10 {
		t.Errorf("fee recipient wallet = %d, want 10", got)
	}
}

func TestDirectBuyRequiresBackend(t *testing.T) {
	env := newTestEnv(t)
	env.setLimit(t, 10_000)

	cmd := directBuy(1000, 1)
	cmd.Caller = stranger
	err := env.engine.Execute(context.Background(), cmd)
	if !errors.Is(err, ErrNotAuthorizedBackend) {
		t.Fatalf("got %v, want ErrNotAuthorizedBackend", err)
	}
	if outs := env.drain(t); len(outs) != 0 {
		t.Errorf("rejected command emitted %d outputs", len(outs))
	}
}

func TestBuyLimitEnforcement(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.Execute(context.Background(), directBuy(100, 1)); !errors.Is(err, ErrUserLimitNotSet) {
		t.Fatalf("got %v, want ErrUserLimitNotSet", err)
	}

	env.setLimit(t, 500)
	if err := env.engine.Execute(context.Background(), directBuy(501, 1)); !errors.Is(err, ErrExceedsLimit) {
		t.Fatalf("got %v, want ErrExceedsLimit", err)
	}

	// At the limit is allowed.
	env.exec(t, directBuy(500, 1))
}

func TestBuyInsufficientAllowance(t *testing.T) {
	env := newTestEnv(t)
	env.setLimit(t, 10_000)
	env.bank.Approve(user, 100)

	err := env.engine.Execute(context.Background(), directBuy(1000, 1))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("got %v, want ErrInsufficientAllowance", err)
	}
	if got := balance(t, env.bank, user, settlement); got != 1_000_000 {
		t.Errorf("user wallet = %d, want untouched 1000000", got)
	}
}

func TestRoutingFailureRefundsGross(t *testing.T) {
	env := newTestEnv(t, failingVenue("a"), failingVenue("b"))
	env.setLimit(t, 10_000)

	err := env.engine.Execute(context.Background(), directBuy(1000, 1))
	if !errors.Is(err, ErrAllRoutesFailed) {
		t.Fatalf("got %v, want ErrAllRoutesFailed", err)
	}

	// Gross refunded in full: no fee retained, no claims credited.
	if got := balance(t, env.bank, user, settlement); got != 1_000_000 {
		t.Errorf("user wallet = %d, want 1000000 after refund", got)
	}
	if got := balance(t, env.bank, feeRcpt, settlement); got != 0 {
		t.Errorf("fee recipient wallet = %d, want 0", got)
	}
	if got := env.engine.ClaimBalance(user, output); got != 0 {
		t.Errorf("claims = %d, want 0", got)
	}
	if outs := env.drain(t); len(outs) != 0 {
		t.Errorf("failed buy emitted %d outputs", len(outs))
	}
}

func TestSocialBuy(t *testing.T) {
	env := newTestEnv(t)
	env.exec(t, &command.SetPreferences{
		CommandID: uuid.New(), Caller: user, User: user,
		Limit: 10_000, LikeAmount: 200, RecastAmount: 0, Timestamp: testTime,
	})
	env.drain(t)

	social := func(interaction uint8) *command.SocialBuy {
		return &command.SocialBuy{
			CommandID: uuid.New(), Caller: backend, User: user,
			OutputAsset: output, Interaction: interaction, MinOut: 1, Timestamp: testTime,
		}
	}

	env.exec(t, social(uint8(userconfig.InteractionLike)))
	outs := env.drain(t)
	purchase := outs[0].Envelope.Payload.(*record.PurchaseExecuted)
	if purchase.InputAmount != 200 || !purchase.Social {
		t.Errorf("social purchase = %+v, want input 200 social", purchase)
	}

	if err := env.engine.Execute(context.Background(), social(uint8(userconfig.InteractionRecast))); !errors.Is(err, ErrInteractionAmountNotSet) {
		t.Fatalf("got %v, want ErrInteractionAmountNotSet", err)
	}
	if err := env.engine.Execute(context.Background(), social(9)); !errors.Is(err, ErrInvalidInteractionKind) {
		t.Fatalf("got %v, want ErrInvalidInteractionKind", err)
	}
}

func TestDuplicateCommandSkipped(t *testing.T) {
	env := newTestEnv(t)

	cmd := &command.SetBuyLimit{CommandID: uuid.New(), Caller: user, User: user, Limit: 500, Timestamp: testTime}
	env.exec(t, cmd)
	if outs := env.drain(t); len(outs) != 1 {
		t.Fatalf("first apply emitted %d outputs, want 1", len(outs))
	}

	// Same command id again, even with a different payload: dropped.
	replay := &command.SetBuyLimit{CommandID: cmd.CommandID, Caller: user, User: user, Limit: 9999, Timestamp: testTime}
	env.exec(t, replay)
	if outs := env.drain(t); len(outs) != 0 {
		t.Errorf("duplicate emitted %d outputs", len(outs))
	}
	if got := env.engine.UserConfig(user).BuyLimit; got != 500 {
		t.Errorf("limit = %d, want 500 (replay ignored)", got)
	}
}

func TestReentrantCallBlocked(t *testing.T) {
	var inner error
	var env *testEnv

	reentrant := &scriptedVenue{
		name: "reentrant",
		swap: func(ctx context.Context, _, _ ledger.AssetID, _, _ int64) (int64, error) {
			inner = env.engine.Execute(ctx, &command.Withdraw{
				CommandID: uuid.New(), Caller: user, Asset: output, Amount: 1, Timestamp: testTime,
			})
			return 0, inner
		},
	}
	env = newTestEnv(t, reentrant)
	env.setLimit(t, 10_000)

	err := env.engine.Execute(context.Background(), directBuy(1000, 1))
	if !errors.Is(inner, ErrReentrancyBlocked) {
		t.Fatalf("inner = %v, want ErrReentrancyBlocked", inner)
	}
	if !errors.Is(err, ErrAllRoutesFailed) {
		t.Fatalf("outer = %v, want ErrAllRoutesFailed", err)
	}
	if got := balance(t, env.bank, user, settlement); got != 1_000_000 {
		t.Errorf("user wallet = %d, want refunded 1000000", got)
	}
}

func TestSmartSwap(t *testing.T) {
	env := newTestEnv(t)
	env.setLimit(t, 10_000)
	env.exec(t, directBuy(1000, 1)) // claims: 3960 DEGEN
	env.drain(t)

	swap := &command.SmartSwap{
		CommandID: uuid.New(), Caller: backend, User: user,
		InputAsset: output, OutAsset: settlement, Amount: 3960, MinOut: 1, Timestamp: testTime,
	}
	env.exec(t, swap)
	outs := env.drain(t)

	swapped := outs[0].Envelope.Payload.(*record.BalanceSwapped)
	if swapped.AmountIn != 3960 || swapped.AmountOut != 3960*4 {
		t.Errorf("swapped = %+v", swapped)
	}
	if got := env.engine.ClaimBalance(user, output); got != 0 {
		t.Errorf("input claims = %d, want 0", got)
	}
	if got := env.engine.ClaimBalance(user, settlement); got != 3960*4 {
		t.Errorf("output claims = %d, want %d", got, 3960*4)
	}

	over := &command.SmartSwap{
		CommandID: uuid.New(), Caller: backend, User: user,
		InputAsset: output, OutAsset: settlement, Amount: 1, MinOut: 1, Timestamp: testTime,
	}
	if err := env.engine.Execute(context.Background(), over); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}

	unauth := &command.SmartSwap{
		CommandID: uuid.New(), Caller: stranger, User: user,
		InputAsset: settlement, OutAsset: output, Amount: 1, MinOut: 1, Timestamp: testTime,
	}
	if err := env.engine.Execute(context.Background(), unauth); !errors.Is(err, ErrNotAuthorizedBackend) {
		t.Fatalf("got %v, want ErrNotAuthorizedBackend", err)
	}
}

func TestPooledSwap(t *testing.T) {
	env := newTestEnv(t)
	env.setLimit(t, 10_000)
	env.exec(t, directBuy(1000, 1)) // claims: 3960 DEGEN
	env.drain(t)

	env.pools.AddPool(&venue.Pool{
		AssetA: output, AssetB: settlement,
		ReserveA: 10_000, ReserveB: 10_000, FeeBps: 0,
	})

	swap := &command.PooledSwap{
		CommandID: uuid.New(), Caller: user,
		MarketKey: venue.MarketKey(output, settlement), InputAsset: output,
		Amount: 3960, MinOut: 1, Timestamp: testTime,
	}
	env.exec(t, swap)
	outs := env.drain(t)

	// 10000 - 100000000/13960 = 2837
	swapped := outs[0].Envelope.Payload.(*record.BalanceSwapped)
	if swapped.AmountOut != 2837 || swapped.OutAsset != settlement {
		t.Errorf("swapped = %+v, want 2837 USDC", swapped)
	}
	if got := env.engine.ClaimBalance(user, settlement); got != 2837 {
		t.Errorf("output claims = %d, want 2837", got)
	}

	noMarket := &command.PooledSwap{
		CommandID: uuid.New(), Caller: user,
		MarketKey: "NOPE/USDC", InputAsset: settlement,
		Amount: 100, MinOut: 1, Timestamp: testTime,
	}
	if err := env.engine.Execute(context.Background(), noMarket); !errors.Is(err, ErrInsufficientBalance) && !errors.Is(err, ErrAllRoutesFailed) {
		t.Fatalf("got %v, want balance or routing rejection", err)
	}
}

func TestWithdraw(t *testing.T) {
	env := newTestEnv(t)
	env.setLimit(t, 10_000)
	env.exec(t, directBuy(1000, 1)) // claims: 3960 DEGEN
	env.drain(t)

	// Custody must actually hold the venue output for the push to settle.
	env.bank.Mint(custodian, output, 3960)

	over := &command.Withdraw{CommandID: uuid.New(), Caller: user, Asset: output, Amount: 3961, Timestamp: testTime}
	if err := env.engine.Execute(context.Background(), over); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}

	env.exec(t, &command.Withdraw{CommandID: uuid.New(), Caller: user, Asset: output, Amount: 3960, Timestamp: testTime})
	outs := env.drain(t)

	wd := outs[0].Envelope.Payload.(*record.WithdrawalExecuted)
	if wd.Amount != 3960 || wd.Asset != output {
		t.Errorf("withdrawal = %+v", wd)
	}
	if got := env.engine.ClaimBalance(user, output); got != 0 {
		t.Errorf("claims = %d, want 0", got)
	}
	if got := balance(t, env.bank, user, output); got != 3960 {
		t.Errorf("user wallet = %d, want 3960", got)
	}
}

func TestConfigAccessControl(t *testing.T) {
	env := newTestEnv(t)

	// Stranger cannot set another user's limit.
	bad := &command.SetBuyLimit{CommandID: uuid.New(), Caller: stranger, User: user, Limit: 500, Timestamp: testTime}
	if err := env.engine.Execute(context.Background(), bad); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("got %v, want ErrNotOwner", err)
	}

	// The owner can.
	env.exec(t, &command.SetBuyLimit{CommandID: uuid.New(), Caller: owner, User: user, Limit: 500, Timestamp: testTime})
	if got := env.engine.UserConfig(user).BuyLimit; got != 500 {
		t.Errorf("limit = %d, want 500", got)
	}
}

func TestSetPreferencesRollsBackOnRejection(t *testing.T) {
	env := newTestEnv(t)
	env.setLimit(t, 1000)
	env.exec(t, &command.SetSocialAmounts{
		CommandID: uuid.New(), Caller: user, User: user,
		LikeAmount: 100, RecastAmount: 200, Timestamp: testTime,
	})
	env.drain(t)

	// New limit would be fine but the recast amount exceeds it; nothing changes.
	err := env.engine.Execute(context.Background(), &command.SetPreferences{
		CommandID: uuid.New(), Caller: user, User: user,
		Limit: 150, LikeAmount: 100, RecastAmount: 200, Timestamp: testTime,
	})
	if !errors.Is(err, ErrRecastExceedsLimit) {
		t.Fatalf("got %v, want ErrRecastExceedsLimit", err)
	}
	cfg := env.engine.UserConfig(user)
	if cfg.BuyLimit != 1000 || cfg.LikeAmount != 100 || cfg.RecastAmount != 200 {
		t.Errorf("config = %+v, want untouched", cfg)
	}
	if outs := env.drain(t); len(outs) != 0 {
		t.Errorf("rejected preferences emitted %d outputs", len(outs))
	}
}

func TestDisableSocialKeepsLimit(t *testing.T) {
	env := newTestEnv(t)
	env.exec(t, &command.SetPreferences{
		CommandID: uuid.New(), Caller: user, User: user,
		Limit: 1000, LikeAmount: 50, RecastAmount: 60, Timestamp: testTime,
	})
	env.drain(t)

	env.exec(t, &command.DisableSocial{CommandID: uuid.New(), Caller: user, User: user, Timestamp: testTime})
	outs := env.drain(t)

	changed := outs[0].Envelope.Payload.(*record.SocialAmountsChanged)
	if changed.LikeAmount != 0 || changed.RecastAmount != 0 {
		t.Errorf("record = %+v, want zeroed amounts", changed)
	}
	cfg := env.engine.UserConfig(user)
	if cfg.BuyLimit != 1000 || cfg.LikeAmount != 0 || cfg.RecastAmount != 0 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestBackendLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.setLimit(t, 10_000)

	second := principal.MustParse("0x0000000000000000000000000000000000000007")

	// Not yet authorized.
	cmd := directBuy(100, 1)
	cmd.Caller = second
	if err := env.engine.Execute(context.Background(), cmd); !errors.Is(err, ErrNotAuthorizedBackend) {
		t.Fatalf("got %v, want ErrNotAuthorizedBackend", err)
	}

	env.exec(t, &command.AuthorizeBackend{CommandID: uuid.New(), Caller: owner, Backend: second, Timestamp: testTime})
	env.drain(t)

	cmd = directBuy(100, 1)
	cmd.Caller = second
	env.exec(t, cmd)
	env.drain(t)

	// Deauthorization takes effect on the next command.
	env.exec(t, &command.DeauthorizeBackend{CommandID: uuid.New(), Caller: owner, Backend: second, Timestamp: testTime})
	env.drain(t)

	cmd = directBuy(100, 1)
	cmd.Caller = second
	if err := env.engine.Execute(context.Background(), cmd); !errors.Is(err, ErrNotAuthorizedBackend) {
		t.Fatalf("got %v, want ErrNotAuthorizedBackend after deauthorization", err)
	}

	// Non-owner cannot manage the set.
	grab := &command.AuthorizeBackend{CommandID: uuid.New(), Caller: stranger, Backend: stranger, Timestamp: testTime}
	if err := env.engine.Execute(context.Background(), grab); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("got %v, want ErrNotOwner", err)
	}
}

func TestOwnershipTransfer(t *testing.T) {
	env := newTestEnv(t)
	newOwner := principal.MustParse("0x0000000000000000000000000000000000000008")

	env.exec(t, &command.TransferOwnership{CommandID: uuid.New(), Caller: owner, NewOwner: newOwner, Timestamp: testTime})
	outs := env.drain(t)

	transferred := outs[0].Envelope.Payload.(*record.OwnershipTransferred)
	if transferred.PreviousOwner != owner || transferred.NewOwner != newOwner {
		t.Errorf("record = %+v", transferred)
	}

	// Old owner lost privileges immediately.
	stale := &command.AuthorizeBackend{CommandID: uuid.New(), Caller: owner, Backend: stranger, Timestamp: testTime}
	if err := env.engine.Execute(context.Background(), stale); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("got %v, want ErrNotOwner for old owner", err)
	}

	env.exec(t, &command.AuthorizeBackend{CommandID: uuid.New(), Caller: newOwner, Backend: stranger, Timestamp: testTime})
}

func TestSetFeeRecipient(t *testing.T) {
	env := newTestEnv(t)
	env.setLimit(t, 10_000)

	newRcpt := principal.MustParse("0x0000000000000000000000000000000000000009")

	notOwner := &command.SetFeeRecipient{CommandID: uuid.New(), Caller: stranger, Recipient: newRcpt, Timestamp: testTime}
	if err := env.engine.Execute(context.Background(), notOwner); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("got %v, want ErrNotOwner", err)
	}

	zero := &command.SetFeeRecipient{CommandID: uuid.New(), Caller: owner, Recipient: principal.Zero, Timestamp: testTime}
	if err := env.engine.Execute(context.Background(), zero); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("got %v, want ErrInvalidRecipient", err)
	}

	env.exec(t, &command.SetFeeRecipient{CommandID: uuid.New(), Caller: owner, Recipient: newRcpt, Timestamp: testTime})
	env.drain(t)

	// Subsequent buys pay the new recipient.
	env.exec(t, directBuy(1000, 1))
	if got := balance(t, env.bank, newRcpt, settlement); got != 10 {
		t.Errorf("new recipient wallet = %d, want 10", got)
	}
	if got := balance(t, env.bank, feeRcpt, settlement); got != 0 {
		t.Errorf("old recipient wallet = %d, want 0", got)
	}
}

func TestSweepFeesPaysWalletSurplus(t *testing.T) {
	env := newTestEnv(t)
	env.setLimit(t, 10_000)
	env.exec(t, directBuy(1000, 1))
	env.drain(t)

	// The vault wallet holds the 990 the venue leg never pulled; no user has
	// a settlement claim, so all of it is surplus.
	env.exec(t, &command.SweepFees{CommandID: uuid.New(), Caller: owner, Timestamp: testTime})
	outs := env.drain(t)

	swept := outs[0].Envelope.Payload.(*record.FeesSwept)
	if swept.Amount != 990 {
		t.Errorf("swept = %+v, want amount 990", swept)
	}
	if outs[0].Batch != nil {
		t.Error("sweep booked a batch; no claim account moves")
	}
	// 10 from the buy-time fee plus the swept surplus.
	if got := balance(t, env.bank, feeRcpt, settlement); got != 1000 {
		t.Errorf("recipient wallet = %d, want 1000", got)
	}

	// A second sweep finds nothing but still commits.
	env.exec(t, &command.SweepFees{CommandID: uuid.New(), Caller: owner, Timestamp: testTime})
	outs = env.drain(t)
	if swept := outs[0].Envelope.Payload.(*record.FeesSwept); swept.Amount != 0 {
		t.Errorf("second sweep = %+v, want zero amount", swept)
	}

	notOwner := &command.SweepFees{CommandID: uuid.New(), Caller: stranger, Timestamp: testTime}
	if err := env.engine.Execute(context.Background(), notOwner); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("got %v, want ErrNotOwner", err)
	}
}

func TestEmergencyWithdrawDrainsWalletHoldings(t *testing.T) {
	env := newTestEnv(t)
	env.setLimit(t, 10_000)
	env.exec(t, directBuy(1000, 1)) // vault wallet holds 990 USDC after the fee
	env.drain(t)

	over := &command.EmergencyWithdraw{CommandID: uuid.New(), Caller: owner, Asset: settlement, Amount: 991, Timestamp: testTime}
	if err := env.engine.Execute(context.Background(), over); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	zero := &command.EmergencyWithdraw{CommandID: uuid.New(), Caller: owner, Asset: settlement, Amount: 0, Timestamp: testTime}
	if err := env.engine.Execute(context.Background(), zero); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance for zero amount", err)
	}
	notOwner := &command.EmergencyWithdraw{CommandID: uuid.New(), Caller: stranger, Asset: settlement, Amount: 1, Timestamp: testTime}
	if err := env.engine.Execute(context.Background(), notOwner); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("got %v, want ErrNotOwner", err)
	}

	env.exec(t, &command.EmergencyWithdraw{CommandID: uuid.New(), Caller: owner, Asset: settlement, Amount: 400, Timestamp: testTime})
	outs := env.drain(t)

	drained := outs[0].Envelope.Payload.(*record.EmergencyWithdrawal)
	if drained.Amount != 400 || drained.Asset != settlement {
		t.Errorf("drained = %+v, want 400 USDC", drained)
	}
	if outs[0].Batch != nil {
		t.Error("emergency drain booked a batch")
	}
	if got := balance(t, env.bank, owner, settlement); got != 400 {
		t.Errorf("owner wallet = %d, want 400", got)
	}
	// The claim book is untouched; reconciliation happens out of band.
	if got := env.engine.ClaimBalance(user, output); got != 3960 {
		t.Errorf("claims = %d, want untouched 3960", got)
	}
}

func TestSequenceIsMonotonicAcrossCommands(t *testing.T) {
	env := newTestEnv(t)
	env.exec(t, &command.SetBuyLimit{CommandID: uuid.New(), Caller: user, User: user, Limit: 10_000, Timestamp: testTime})
	env.exec(t, directBuy(1000, 1)) // two records
	env.exec(t, &command.SetBuyLimit{CommandID: uuid.New(), Caller: user, User: user, Limit: 20_000, Timestamp: testTime})

	outs := env.drain(t)
	if len(outs) != 4 {
		t.Fatalf("got %d outputs, want 4", len(outs))
	}
	for i, o := range outs {
		if o.Envelope.Sequence != int64(i) {
			t.Errorf("output %d has sequence %d", i, o.Envelope.Sequence)
		}
	}
	if got := env.engine.Sequence(); got != 4 {
		t.Errorf("next sequence = %d, want 4", got)
	}
}

func TestIsReady(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ready, err := env.engine.IsReady(ctx, user)
	if err != nil || ready {
		t.Fatalf("unconfigured user ready=%v err=%v", ready, err)
	}

	env.exec(t, &command.SetPreferences{
		CommandID: uuid.New(), Caller: user, User: user,
		Limit: 1000, LikeAmount: 50, RecastAmount: 0, Timestamp: testTime,
	})
	env.drain(t)

	ready, err = env.engine.IsReady(ctx, user)
	if err != nil || !ready {
		t.Fatalf("configured user ready=%v err=%v", ready, err)
	}

	env.bank.Approve(user, 999) // below the limit
	ready, err = env.engine.IsReady(ctx, user)
	if err != nil || ready {
		t.Fatalf("under-approved user ready=%v err=%v", ready, err)
	}
}

func TestRehydrateRebuildsState(t *testing.T) {
	env := newTestEnv(t)
	env.exec(t, &command.SetBuyLimit{CommandID: uuid.New(), Caller: user, User: user, Limit: 10_000, Timestamp: testTime})
	env.exec(t, directBuy(1000, 1))
	newOwner := principal.MustParse("0x000000000000000000000000000000000000000a")
	env.exec(t, &command.TransferOwnership{CommandID: uuid.New(), Caller: owner, NewOwner: newOwner, Timestamp: testTime})

	outs := env.drain(t)
	var journals []ledger.Journal
	var envs []*record.Envelope
	for _, o := range outs {
		if o.Batch != nil {
			journals = append(journals, o.Batch.Journals...)
		}
		envs = append(envs, o.Envelope)
	}

	fresh := newTestEnv(t)
	if err := fresh.engine.Rehydrate(journals, envs); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}

	if got := fresh.engine.ClaimBalance(user, output); got != 3960 {
		t.Errorf("claims = %d, want 3960", got)
	}
	if got := fresh.engine.UserConfig(user).BuyLimit; got != 10_000 {
		t.Errorf("limit = %d, want 10000", got)
	}
	if got, want := fresh.engine.Sequence(), env.engine.Sequence(); got != want {
		t.Errorf("sequence = %d, want %d", got, want)
	}

	// The replayed ownership transfer must be effective.
	fresh.exec(t, &command.AuthorizeBackend{CommandID: uuid.New(), Caller: newOwner, Backend: stranger, Timestamp: testTime})
	stale := &command.AuthorizeBackend{CommandID: uuid.New(), Caller: owner, Backend: stranger, Timestamp: testTime}
	if err := fresh.engine.Execute(context.Background(), stale); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("got %v, want ErrNotOwner for pre-transfer owner", err)
	}
}

func TestRehydrateAcceptsAmountsAboveLoweredLimit(t *testing.T) {
	env := newTestEnv(t)

	// A partial update validates only the changed amount, so lowering the
	// limit can leave the other amount above it. That history must replay.
	env.exec(t, &command.SetBuyLimit{CommandID: uuid.New(), Caller: user, User: user, Limit: 1000, Timestamp: testTime})
	env.exec(t, &command.SetSocialAmounts{
		CommandID: uuid.New(), Caller: user, User: user,
		LikeAmount: 600, RecastAmount: 300, Timestamp: testTime,
	})
	env.exec(t, &command.SetBuyLimit{CommandID: uuid.New(), Caller: user, User: user, Limit: 500, Timestamp: testTime})
	env.exec(t, &command.UpdateRecast{CommandID: uuid.New(), Caller: user, User: user, Amount: 400, Timestamp: testTime})

	outs := env.drain(t)
	var envs []*record.Envelope
	for _, o := range outs {
		envs = append(envs, o.Envelope)
	}

	fresh := newTestEnv(t)
	if err := fresh.engine.Rehydrate(nil, envs); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}

	cfg := fresh.engine.UserConfig(user)
	if cfg.BuyLimit != 500 || cfg.LikeAmount != 600 || cfg.RecastAmount != 400 {
		t.Errorf("config = %+v, want {500 600 400}", cfg)
	}
	if got, want := fresh.engine.Sequence(), env.engine.Sequence(); got != want {
		t.Errorf("sequence = %d, want %d", got, want)
	}
}

func TestSingleVenueHelperIsInternalOnly(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.SwapViaSingleVenue(context.Background(), stranger, quadOutput(), settlement, output, 100, 1)
	if !errors.Is(err, ErrInternalOnly) {
		t.Fatalf("got %v, want ErrInternalOnly", err)
	}

	out, err := env.engine.SwapViaSingleVenue(context.Background(), custodian, quadOutput(), settlement, output, 100, 1)
	if err != nil || out != 400 {
		t.Fatalf("got out=%d err=%v, want 400", out, err)
	}
}
