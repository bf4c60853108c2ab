package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"CastVault/internal/principal"
)

// JournalGenerator creates balanced journal batches from engine commands.
// One batch per command; the engine assigns the global sequence.
type JournalGenerator struct {
	balanceTracker *BalanceTracker
}

func NewJournalGenerator(tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		balanceTracker: tracker,
	}
}

func (jg *JournalGenerator) newBatch(commandRef string, sequence, timestamp int64, capacity int) *Batch {
	return &Batch{
		BatchID:    uuid.New(),
		CommandRef: commandRef,
		Sequence:   sequence,
		Timestamp:  timestamp,
		Journals:   make([]Journal, 0, capacity),
	}
}

func (jg *JournalGenerator) appendJournal(b *Batch, debit, credit AccountKey, asset AssetID, amount int64, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		CommandRef:    b.CommandRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Asset:         asset,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GeneratePurchase books a completed buy: gross settlement pulled from the
// user's wallet into custody, the fee paid out, the net leg swapped through a
// venue, and the venue output credited to the user's claim balance.
//
//	external:wallets --gross--> system:custody        (settlement)
//	system:custody   --fee----> external:fees         (settlement)
//	system:custody   --net----> external:venues       (settlement)
//	external:venues  --output-> system:custody        (output asset)
//	system:custody   --output-> user:claims           (output asset)
func (jg *JournalGenerator) GeneratePurchase(
	commandRef string,
	sequence int64,
	user principal.Principal,
	settlementAsset AssetID,
	outputAsset AssetID,
	grossAmount int64,
	feeAmount int64,
	netAmount int64,
	outputAmount int64,
	timestamp int64,
) (*Batch, error) {
	if grossAmount != feeAmount+netAmount {
		return nil, fmt.Errorf("purchase legs do not balance: gross=%d fee=%d net=%d", grossAmount, feeAmount, netAmount)
	}

	batch := jg.newBatch(commandRef, sequence, timestamp, 5)

	jg.appendJournal(batch,
		NewCustodyAccountKey(settlementAsset),
		NewExternalAccountKey(SubTypeExternalWallets, settlementAsset),
		settlementAsset, grossAmount, JournalTypePurchasePull)

	if feeAmount > 0 {
		jg.appendJournal(batch,
			NewExternalAccountKey(SubTypeExternalFees, settlementAsset),
			NewCustodyAccountKey(settlementAsset),
			settlementAsset, feeAmount, JournalTypeFeeCollect)
	}

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalVenues, settlementAsset),
		NewCustodyAccountKey(settlementAsset),
		settlementAsset, netAmount, JournalTypeSwapOut)

	jg.appendJournal(batch,
		NewCustodyAccountKey(outputAsset),
		NewExternalAccountKey(SubTypeExternalVenues, outputAsset),
		outputAsset, outputAmount, JournalTypeSwapIn)

	jg.appendJournal(batch,
		NewClaimsAccountKey(user, outputAsset),
		NewCustodyAccountKey(outputAsset),
		outputAsset, outputAmount, JournalTypeClaimCredit)

	return batch, nil
}

// GenerateClaimSwap books a swap of a user's earned claim balance into another
// asset. Pre-check: the user must hold the full input amount as claims.
func (jg *JournalGenerator) GenerateClaimSwap(
	commandRef string,
	sequence int64,
	user principal.Principal,
	inAsset AssetID,
	outAsset AssetID,
	amountIn int64,
	amountOut int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientClaim(user, inAsset, amountIn); err != nil {
		return nil, fmt.Errorf("claim swap pre-check failed: %w", err)
	}

	batch := jg.newBatch(commandRef, sequence, timestamp, 4)

	jg.appendJournal(batch,
		NewCustodyAccountKey(inAsset),
		NewClaimsAccountKey(user, inAsset),
		inAsset, amountIn, JournalTypeClaimDebit)

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalVenues, inAsset),
		NewCustodyAccountKey(inAsset),
		inAsset, amountIn, JournalTypeSwapOut)

	jg.appendJournal(batch,
		NewCustodyAccountKey(outAsset),
		NewExternalAccountKey(SubTypeExternalVenues, outAsset),
		outAsset, amountOut, JournalTypeSwapIn)

	jg.appendJournal(batch,
		NewClaimsAccountKey(user, outAsset),
		NewCustodyAccountKey(outAsset),
		outAsset, amountOut, JournalTypeClaimCredit)

	return batch, nil
}

// GenerateWithdrawal books a withdrawal: the claim is released and the tokens
// leave custody for the user's wallet. Pre-check: sufficient claim balance.
func (jg *JournalGenerator) GenerateWithdrawal(
	commandRef string,
	sequence int64,
	user principal.Principal,
	asset AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientClaim(user, asset, amount); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}

	batch := jg.newBatch(commandRef, sequence, timestamp, 2)

	jg.appendJournal(batch,
		NewCustodyAccountKey(asset),
		NewClaimsAccountKey(user, asset),
		asset, amount, JournalTypeClaimDebit)

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalWallets, asset),
		NewCustodyAccountKey(asset),
		asset, amount, JournalTypeWithdrawal)

	return batch, nil
}
