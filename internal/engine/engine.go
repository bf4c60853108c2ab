package engine

import (
	"context"
	"fmt"
	"time"

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

// Output is what the engine emits per committed record: the envelope plus the
// journal batch that backed it (nil for state-only records). CommandKind is
// the kind string of the producing command, used by persistence to rebuild
// composite dedup keys.
type Output struct {
	Envelope    *record.Envelope
	Batch       *ledger.Batch
	CommandKind string
}

// Config wires the engine's collaborators.
type Config struct {
	StartSequence  int64
	Settlement     ledger.AssetID
	Self           principal.Principal // the vault's own identity
	Registry       *access.Registry
	Configs        *userconfig.Store
	Bank           token.Bank
	Fees           *fee.Engine
	Router         *routing.Router
	Pooled         *venue.PooledVenue
	DBChecker      DBIdempotencyChecker
	LRUCapacity    int
	Metrics        *observability.Metrics
	Logger         zerolog.Logger
	PersistChan    chan<- Output
	ProjectionChan chan<- Output
}

// Engine is the single-threaded command processor. One command is applied
// fully before the next is consumed; a command either commits every effect
// (external transfers, journal batch, records) or none.
type Engine struct {
	sequence   int64
	settlement ledger.AssetID
	self       principal.Principal

	registry *access.Registry
	configs  *userconfig.Store
	bank     token.Bank
	fees     *fee.Engine
	router   *routing.Router
	pooled   *venue.PooledVenue

	tracker    *ledger.BalanceTracker
	journalGen *ledger.JournalGenerator
	validator  *ledger.InvariantValidator

	idempotency *IdempotencyChecker
	metrics     *observability.Metrics
	log         zerolog.Logger

	persistChan    chan<- Output
	projectionChan chan<- Output

	// Reentrancy guard: set for the duration of Execute. A venue or token
	// callback that re-enters the engine is rejected.
	executing bool
}

func New(cfg Config) *Engine {
	tracker := ledger.NewBalanceTracker()
	capacity := cfg.LRUCapacity
	if capacity <= 0 {
		capacity = 1_000_000
	}

	return &Engine{
		sequence:       cfg.StartSequence,
		settlement:     cfg.Settlement,
		self:           cfg.Self,
		registry:       cfg.Registry,
		configs:        cfg.Configs,
		bank:           cfg.Bank,
		fees:           cfg.Fees,
		router:         cfg.Router,
		pooled:         cfg.Pooled,
		tracker:        tracker,
		journalGen:     ledger.NewJournalGenerator(tracker),
		validator:      ledger.NewInvariantValidator(tracker),
		idempotency:    NewIdempotencyChecker(capacity, cfg.DBChecker, cfg.Metrics),
		metrics:        cfg.Metrics,
		log:            cfg.Logger,
		persistChan:    cfg.PersistChan,
		projectionChan: cfg.ProjectionChan,
	}
}

// Execute is the main processing pipeline.
func (e *Engine) Execute(ctx context.Context, cmd command.Command) error {
	start := time.Now()
	kind := cmd.Kind().String()
	key := cmd.IdempotencyKey()

	// Step 1: reentrancy guard. Checked before anything else so a nested call
	// can never observe or mutate mid-command state.
	if e.executing {
		e.reject(kind, ErrReentrancyBlocked)
		return ErrReentrancyBlocked
	}
	e.executing = true
	defer func() { e.executing = false }()

	// Step 2: idempotency check (two-tier)
	if e.idempotency.IsDuplicate(kind, key) {
		if e.metrics != nil {
			e.metrics.CommandsRejected.WithLabelValues(kind, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: dispatch. Handlers validate, perform external transfers with
	// compensation on failure, and return the journal batch plus records.
	batch, recs, err := e.dispatch(ctx, cmd)
	if err != nil {
		e.reject(kind, err)
		return fmt.Errorf("%s rejected: %w", kind, err)
	}

	// Step 4: validate and apply the batch
	if batch != nil && len(batch.Journals) > 0 {
		if err := e.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := e.tracker.ApplyBatch(batch); err != nil {
			panic(fmt.Sprintf("FATAL: batch apply failed after external transfers: %v", err))
		}
		if err := e.validator.ValidateBatchEffects(batch); err != nil {
			panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
		}
		if e.metrics != nil {
			for _, j := range batch.Journals {
				e.metrics.JournalsBooked.WithLabelValues(j.JournalType.String()).Inc()
			}
		}
	}

	// Step 5: emit outputs. Persist channel is a BLOCKING send (backpressure,
	// no record loss); projection channel is NON-BLOCKING with drop, workers
	// rebuild from the log if they fall behind.
	for i, rec := range recs {
		envelope := &record.Envelope{
			Sequence:       e.sequence,
			Type:           rec.RecordType(),
			IdempotencyKey: key,
			Timestamp:      cmd.Time(),
			Payload:        rec,
		}
		out := Output{Envelope: envelope, CommandKind: kind}
		if i == 0 {
			out.Batch = batch
		}
		e.sequence++

		select {
		case e.persistChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- out
		}

		select {
		case e.projectionChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.WithLabelValues("all").Inc()
			}
		}
	}

	// Step 6: mark processed
	e.idempotency.MarkProcessed(kind, key)

	if e.metrics != nil {
		e.metrics.CommandsApplied.WithLabelValues(kind).Inc()
		e.metrics.CommandDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		e.metrics.CoreSequence.Set(float64(e.sequence))
	}

	return nil
}

func (e *Engine) reject(kind string, err error) {
	if e.metrics != nil {
		e.metrics.CommandsRejected.WithLabelValues(kind, rejectReason(err)).Inc()
	}
	e.log.Debug().Err(err).Str("command", kind).Msg("command rejected")
}

func (e *Engine) dispatch(ctx context.Context, cmd command.Command) (*ledger.Batch, []record.Record, error) {
	switch c := cmd.(type) {
	case *command.DirectBuy:
		return e.handleDirectBuy(ctx, c)
	case *command.SocialBuy:
		return e.handleSocialBuy(ctx, c)
	case *command.SmartSwap:
		return e.handleSmartSwap(ctx, c)
	case *command.PooledSwap:
		return e.handlePooledSwap(ctx, c)
	case *command.Withdraw:
		return e.handleWithdraw(ctx, c)
	case *command.SetBuyLimit:
		return e.handleSetBuyLimit(c)
	case *command.SetSocialAmounts:
		return e.handleSetSocialAmounts(c)
	case *command.SetPreferences:
		return e.handleSetPreferences(c)
	case *command.DisableSocial:
		return e.handleDisableSocial(c)
	case *command.UpdateLike:
		return e.handleUpdateLike(c)
	case *command.UpdateRecast:
		return e.handleUpdateRecast(c)
	case *command.AuthorizeBackend:
		return e.handleAuthorizeBackend(c)
	case *command.DeauthorizeBackend:
		return e.handleDeauthorizeBackend(c)
	case *command.TransferOwnership:
		return e.handleTransferOwnership(c)
	case *command.SetFeeRecipient:
		return e.handleSetFeeRecipient(c)
	case *command.SweepFees:
		return e.handleSweepFees(ctx, c)
	case *command.EmergencyWithdraw:
		return e.handleEmergencyWithdraw(ctx, c)
	default:
		return nil, nil, fmt.Errorf("unknown command type: %T", cmd)
	}
}

// --- Buys ---

func (e *Engine) handleDirectBuy(ctx context.Context, c *command.DirectBuy) (*ledger.Batch, []record.Record, error) {
	if !e.registry.IsAuthorized(c.Caller) {
		return nil, nil, ErrNotAuthorizedBackend
	}
	return e.executeBuy(ctx, c.IdempotencyKey(), c.User, c.OutputAsset, c.UsdcAmount, c.MinOut, false, c.Time())
}

func (e *Engine) handleSocialBuy(ctx context.Context, c *command.SocialBuy) (*ledger.Batch, []record.Record, error) {
	if !e.registry.IsAuthorized(c.Caller) {
		return nil, nil, ErrNotAuthorizedBackend
	}
	amount, err := e.configs.AmountFor(c.User, userconfig.Interaction(c.Interaction))
	if err != nil {
		return nil, nil, err
	}
	return e.executeBuy(ctx, c.IdempotencyKey(), c.User, c.OutputAsset, amount, c.MinOut, true, c.Time())
}

// executeBuy runs the shared purchase path: validate, pull gross, route net,
// settle fee, book, record. The fee moves only after routing succeeds, so a
// routing failure is compensated with a single gross refund.
func (e *Engine) executeBuy(
	ctx context.Context,
	key string,
	user principal.Principal,
	outputAsset ledger.AssetID,
	gross int64,
	minOut int64,
	social bool,
	ts time.Time,
) (*ledger.Batch, []record.Record, error) {
	cfg := e.configs.Get(user)
	if cfg.BuyLimit == 0 {
		return nil, nil, ErrUserLimitNotSet
	}
	if gross > cfg.BuyLimit {
		return nil, nil, ErrExceedsLimit
	}

	feeAmount, err := fee.Compute(gross)
	if err != nil {
		return nil, nil, err
	}
	net := gross - feeAmount

	allowance, err := e.bank.Allowance(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("allowance lookup: %w", err)
	}
	if allowance < gross {
		return nil, nil, token.ErrInsufficientAllowance
	}

	// Validation done; external effects start here.
	if err := e.bank.Pull(ctx, user, gross); err != nil {
		return nil, nil, fmt.Errorf("settlement pull: %w", err)
	}

	venueName, amountOut, err := e.router.Swap(ctx, e.settlement, outputAsset, net, minOut)
	if err != nil {
		// Compensate: the gross pull is the only effect so far.
		if refundErr := e.bank.Push(ctx, user, e.settlement, gross); refundErr != nil {
			panic(fmt.Sprintf("FATAL: refund after routing failure failed: %v", refundErr))
		}
		return nil, nil, err
	}

	if feeAmount > 0 {
		if err := e.bank.Push(ctx, e.fees.Recipient(), e.settlement, feeAmount); err != nil {
			// The swap already executed; custody must hold the fee. A failure
			// here means token state diverged from the book.
			panic(fmt.Sprintf("FATAL: fee settlement failed after swap execution: %v", err))
		}
	}

	batch, err := e.journalGen.GeneratePurchase(key, e.sequence, user, e.settlement, outputAsset, gross, feeAmount, net, amountOut, ts.UnixMicro())
	if err != nil {
		panic(fmt.Sprintf("FATAL: purchase booking failed after execution: %v", err))
	}

	recs := []record.Record{
		&record.PurchaseExecuted{
			User:         user,
			OutputAsset:  outputAsset,
			InputAmount:  gross,
			OutputAmount: amountOut,
			Fee:          feeAmount,
			Venue:        venueName,
			Social:       social,
		},
	}
	if feeAmount > 0 {
		recs = append(recs, &record.FeeCollected{
			Recipient: e.fees.Recipient(),
			Asset:     e.settlement,
			Amount:    feeAmount,
		})
		if e.metrics != nil {
			e.metrics.FeesCollected.WithLabelValues("buy").Add(float64(feeAmount))
		}
	}
	return batch, recs, nil
}

// --- Swaps ---

func (e *Engine) handleSmartSwap(ctx context.Context, c *command.SmartSwap) (*ledger.Batch, []record.Record, error) {
	if !e.registry.IsAuthorized(c.Caller) {
		return nil, nil, ErrNotAuthorizedBackend
	}
	if e.tracker.GetClaimBalance(c.User, c.InputAsset) < c.Amount {
		return nil, nil, ErrInsufficientBalance
	}

	venueName, amountOut, err := e.router.Swap(ctx, c.InputAsset, c.OutAsset, c.Amount, c.MinOut)
	if err != nil {
		return nil, nil, err
	}

	batch, err := e.journalGen.GenerateClaimSwap(c.IdempotencyKey(), e.sequence, c.User, c.InputAsset, c.OutAsset, c.Amount, amountOut, c.Timestamp.UnixMicro())
	if err != nil {
		panic(fmt.Sprintf("FATAL: claim swap booking failed after execution: %v", err))
	}

	return batch, []record.Record{&record.BalanceSwapped{
		User:      c.User,
		InAsset:   c.InputAsset,
		OutAsset:  c.OutAsset,
		AmountIn:  c.Amount,
		AmountOut: amountOut,
		Venue:     venueName,
	}}, nil
}

func (e *Engine) handlePooledSwap(ctx context.Context, c *command.PooledSwap) (*ledger.Batch, []record.Record, error) {
	// User-initiated: the caller swaps their own claims, no backend required.
	if e.tracker.GetClaimBalance(c.Caller, c.InputAsset) < c.Amount {
		return nil, nil, ErrInsufficientBalance
	}

	outAsset, amountOut, err := e.pooled.SwapByKey(ctx, c.MarketKey, c.InputAsset, c.Amount, c.MinOut)
	if err != nil {
		e.log.Debug().Err(err).Str("market", c.MarketKey).Msg("pooled swap declined")
		return nil, nil, routing.ErrAllRoutesFailed
	}

	batch, err := e.journalGen.GenerateClaimSwap(c.IdempotencyKey(), e.sequence, c.Caller, c.InputAsset, outAsset, c.Amount, amountOut, c.Timestamp.UnixMicro())
	if err != nil {
		panic(fmt.Sprintf("FATAL: pooled swap booking failed after execution: %v", err))
	}

	return batch, []record.Record{&record.BalanceSwapped{
		User:      c.Caller,
		InAsset:   c.InputAsset,
		OutAsset:  outAsset,
		AmountIn:  c.Amount,
		AmountOut: amountOut,
		Venue:     "pooled",
	}}, nil
}

// SwapViaSingleVenue is the internal helper behind the router's per-venue
// attempts. Only the engine's own identity may call it.
func (e *Engine) SwapViaSingleVenue(ctx context.Context, caller principal.Principal, v routing.Venue, in, out ledger.AssetID, amountIn, minOut int64) (int64, error) {
	if caller != e.self {
		return 0, ErrInternalOnly
	}
	return v.TrySwap(ctx, in, out, amountIn, minOut)
}

// --- Withdrawals ---

func (e *Engine) handleWithdraw(ctx context.Context, c *command.Withdraw) (*ledger.Batch, []record.Record, error) {
	if c.Amount <= 0 {
		return nil, nil, ErrInsufficientBalance
	}
	if e.tracker.GetClaimBalance(c.Caller, c.Asset) < c.Amount {
		return nil, nil, ErrInsufficientBalance
	}

	if err := e.bank.Push(ctx, c.Caller, c.Asset, c.Amount); err != nil {
		return nil, nil, fmt.Errorf("withdrawal push: %w", err)
	}

	batch, err := e.journalGen.GenerateWithdrawal(c.IdempotencyKey(), e.sequence, c.Caller, c.Asset, c.Amount, c.Timestamp.UnixMicro())
	if err != nil {
		panic(fmt.Sprintf("FATAL: withdrawal booking failed after push: %v", err))
	}

	return batch, []record.Record{&record.WithdrawalExecuted{
		User:   c.Caller,
		Asset:  c.Asset,
		Amount: c.Amount,
	}}, nil
}

// --- User configuration ---

func (e *Engine) selfOrOwner(caller, user principal.Principal) error {
	if caller != user && !e.registry.IsOwner(caller) {
		return ErrNotOwner
	}
	return nil
}

func (e *Engine) handleSetBuyLimit(c *command.SetBuyLimit) (*ledger.Batch, []record.Record, error) {
	if err := e.selfOrOwner(c.Caller, c.User); err != nil {
		return nil, nil, err
	}
	e.configs.SetBuyLimit(c.User, c.Limit)
	return nil, []record.Record{&record.BuyLimitChanged{User: c.User, Limit: c.Limit}}, nil
}

func (e *Engine) handleSetSocialAmounts(c *command.SetSocialAmounts) (*ledger.Batch, []record.Record, error) {
	if err := e.selfOrOwner(c.Caller, c.User); err != nil {
		return nil, nil, err
	}
	if err := e.configs.SetSocialAmounts(c.User, c.LikeAmount, c.RecastAmount); err != nil {
		return nil, nil, err
	}
	return nil, []record.Record{&record.SocialAmountsChanged{User: c.User, LikeAmount: c.LikeAmount, RecastAmount: c.RecastAmount}}, nil
}

func (e *Engine) handleSetPreferences(c *command.SetPreferences) (*ledger.Batch, []record.Record, error) {
	if err := e.selfOrOwner(c.Caller, c.User); err != nil {
		return nil, nil, err
	}
	if err := e.configs.SetPreferences(c.User, c.Limit, c.LikeAmount, c.RecastAmount); err != nil {
		return nil, nil, err
	}
	return nil, []record.Record{
		&record.BuyLimitChanged{User: c.User, Limit: c.Limit},
		&record.SocialAmountsChanged{User: c.User, LikeAmount: c.LikeAmount, RecastAmount: c.RecastAmount},
	}, nil
}

func (e *Engine) handleDisableSocial(c *command.DisableSocial) (*ledger.Batch, []record.Record, error) {
	if err := e.selfOrOwner(c.Caller, c.User); err != nil {
		return nil, nil, err
	}
	e.configs.DisableSocial(c.User)
	return nil, []record.Record{&record.SocialAmountsChanged{User: c.User, LikeAmount: 0, RecastAmount: 0}}, nil
}

func (e *Engine) handleUpdateLike(c *command.UpdateLike) (*ledger.Batch, []record.Record, error) {
	if err := e.selfOrOwner(c.Caller, c.User); err != nil {
		return nil, nil, err
	}
	if err := e.configs.UpdateLike(c.User, c.Amount); err != nil {
		return nil, nil, err
	}
	cfg := e.configs.Get(c.User)
	return nil, []record.Record{&record.SocialAmountsChanged{User: c.User, LikeAmount: cfg.LikeAmount, RecastAmount: cfg.RecastAmount}}, nil
}

func (e *Engine) handleUpdateRecast(c *command.UpdateRecast) (*ledger.Batch, []record.Record, error) {
	if err := e.selfOrOwner(c.Caller, c.User); err != nil {
		return nil, nil, err
	}
	if err := e.configs.UpdateRecast(c.User, c.Amount); err != nil {
		return nil, nil, err
	}
	cfg := e.configs.Get(c.User)
	return nil, []record.Record{&record.SocialAmountsChanged{User: c.User, LikeAmount: cfg.LikeAmount, RecastAmount: cfg.RecastAmount}}, nil
}

// --- Admin ---

func (e *Engine) handleAuthorizeBackend(c *command.AuthorizeBackend) (*ledger.Batch, []record.Record, error) {
	if err := e.registry.Authorize(c.Caller, c.Backend); err != nil {
		return nil, nil, err
	}
	return nil, []record.Record{&record.BackendAuthorized{Backend: c.Backend}}, nil
}

func (e *Engine) handleDeauthorizeBackend(c *command.DeauthorizeBackend) (*ledger.Batch, []record.Record, error) {
	if err := e.registry.Deauthorize(c.Caller, c.Backend); err != nil {
		return nil, nil, err
	}
	return nil, []record.Record{&record.BackendDeauthorized{Backend: c.Backend}}, nil
}

func (e *Engine) handleTransferOwnership(c *command.TransferOwnership) (*ledger.Batch, []record.Record, error) {
	prev := e.registry.Owner()
	if err := e.registry.TransferOwnership(c.Caller, c.NewOwner); err != nil {
		return nil, nil, err
	}
	return nil, []record.Record{&record.OwnershipTransferred{PreviousOwner: prev, NewOwner: c.NewOwner}}, nil
}

func (e *Engine) handleSetFeeRecipient(c *command.SetFeeRecipient) (*ledger.Batch, []record.Record, error) {
	if !e.registry.IsOwner(c.Caller) {
		return nil, nil, ErrNotOwner
	}
	prev := e.fees.Recipient()
	if err := e.fees.SetRecipient(c.Recipient); err != nil {
		return nil, nil, err
	}
	return nil, []record.Record{&record.FeeRecipientChanged{PreviousRecipient: prev, NewRecipient: c.Recipient}}, nil
}

// handleSweepFees pays out settlement tokens the vault holds beyond what
// backs user settlement claims. The surplus accumulates at the wallet level
// (rounding dust, venue over-delivery), so the sweep reads the bank and is
// not journaled: no claim account moves.
func (e *Engine) handleSweepFees(ctx context.Context, c *command.SweepFees) (*ledger.Batch, []record.Record, error) {
	if !e.registry.IsOwner(c.Caller) {
		return nil, nil, ErrNotOwner
	}

	held, err := e.bank.BalanceOf(ctx, e.self, e.settlement)
	if err != nil {
		return nil, nil, fmt.Errorf("fee sweep balance: %w", err)
	}
	surplus := held - e.tracker.TotalUserClaims(e.settlement)
	if surplus <= 0 {
		// Nothing to sweep; still committed under the idempotency key.
		return nil, []record.Record{&record.FeesSwept{Recipient: e.fees.Recipient(), Asset: e.settlement, Amount: 0}}, nil
	}

	if err := e.bank.Push(ctx, e.fees.Recipient(), e.settlement, surplus); err != nil {
		return nil, nil, fmt.Errorf("fee sweep push: %w", err)
	}

	return nil, []record.Record{&record.FeesSwept{Recipient: e.fees.Recipient(), Asset: e.settlement, Amount: surplus}}, nil
}

// handleEmergencyWithdraw drains up to the vault's wallet balance of one
// asset to the owner. It deliberately ignores the claim book: in a recovery
// the owner may drain tokens that back user claims, and those claims stay on
// the book to be made whole out of band. Not journaled for the same reason.
func (e *Engine) handleEmergencyWithdraw(ctx context.Context, c *command.EmergencyWithdraw) (*ledger.Batch, []record.Record, error) {
	if !e.registry.IsOwner(c.Caller) {
		return nil, nil, ErrNotOwner
	}
	if c.Amount <= 0 {
		return nil, nil, ErrInsufficientBalance
	}

	held, err := e.bank.BalanceOf(ctx, e.self, c.Asset)
	if err != nil {
		return nil, nil, fmt.Errorf("emergency balance: %w", err)
	}
	if c.Amount > held {
		return nil, nil, ErrInsufficientBalance
	}

	if err := e.bank.Push(ctx, c.Caller, c.Asset, c.Amount); err != nil {
		return nil, nil, fmt.Errorf("emergency push: %w", err)
	}

	return nil, []record.Record{&record.EmergencyWithdrawal{Owner: c.Caller, Asset: c.Asset, Amount: c.Amount}}, nil
}

// --- Read surface (side-effect free) ---

// ClaimBalance returns a user's claim balance for an asset.
func (e *Engine) ClaimBalance(user principal.Principal, asset ledger.AssetID) int64 {
	return e.tracker.GetClaimBalance(user, asset)
}

// UserConfig returns the user's limit and social amounts.
func (e *Engine) UserConfig(user principal.Principal) userconfig.Config {
	return e.configs.Get(user)
}

// IsBackendAuthorized reports whether p may trigger buys.
func (e *Engine) IsBackendAuthorized(p principal.Principal) bool {
	return e.registry.IsAuthorized(p)
}

// IsReady reports whether social buys can execute for the user right now.
func (e *Engine) IsReady(ctx context.Context, user principal.Principal) (bool, error) {
	allowance, err := e.bank.Allowance(ctx, user)
	if err != nil {
		return false, err
	}
	return e.configs.IsReady(user, allowance), nil
}

// Sequence returns the next global sequence the engine will assign.
func (e *Engine) Sequence() int64 {
	return e.sequence
}

// WarmLRU loads recent idempotency keys into the LRU cache on restart.
func (e *Engine) WarmLRU(keys []string) {
	e.idempotency.lru.WarmFromKeys(keys)
}

// Balances returns a snapshot of the ledger book, for rebuild checks.
func (e *Engine) Balances() map[ledger.AccountKey]int64 {
	return e.tracker.Snapshot()
}
