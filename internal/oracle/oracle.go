package oracle

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
)

// BalanceOracle answers whether an address holds value on the given chains.
type BalanceOracle interface {
	Check(ctx context.Context, address string, chains []model.Chain) (*CheckResult, error)
}

// CheckResult aggregates what the balance sources report for one address.
// ChainsChecked lists only chains a source actually answered for.
type CheckResult struct {
	BalanceUSD    decimal.Decimal
	Coins         map[string]decimal.Decimal
	ChainsChecked []model.Chain
	Nonce         uint64
}

func NewCheckResult() *CheckResult {
	return &CheckResult{Coins: make(map[string]decimal.Decimal)}
}

// HasValue reports whether the result classifies the wallet as found:
// positive aggregate valuation or any transaction history.
func (r *CheckResult) HasValue() bool {
	return r.BalanceUSD.IsPositive() || r.Nonce > 0
}

// Merge folds other into r: valuations sum, per-symbol amounts add, nonce
// takes the maximum, chains union preserving first-seen order.
func (r *CheckResult) Merge(other *CheckResult) {
	if other == nil {
		return
	}
	r.BalanceUSD = r.BalanceUSD.Add(other.BalanceUSD)
	if r.Coins == nil {
		r.Coins = make(map[string]decimal.Decimal, len(other.Coins))
	}
	for sym, amt := range other.Coins {
		r.Coins[sym] = r.Coins[sym].Add(amt)
	}
	if other.Nonce > r.Nonce {
		r.Nonce = other.Nonce
	}
	for _, chain := range other.ChainsChecked {
		if !containsChain(r.ChainsChecked, chain) {
			r.ChainsChecked = append(r.ChainsChecked, chain)
		}
	}
}

func containsChain(chains []model.Chain, c model.Chain) bool {
	for _, existing := range chains {
		if existing == c {
			return true
		}
	}
	return false
}
